package audio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// buildWAVHeader assembles a minimal RIFF/WAVE header for the given byte
// rate and data size. The audio payload itself is irrelevant for probing.
func buildWAVHeader(byteRate, dataSize uint32) []byte {
	var buf bytes.Buffer

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))  // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1))  // channels
	binary.Write(&buf, binary.LittleEndian, uint32(8000))
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, uint16(2))  // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16)) // bits per sample

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)

	return buf.Bytes()
}

func TestDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wav")
	// 32000 bytes at 16000 bytes/sec is exactly two seconds
	if err := os.WriteFile(path, buildWAVHeader(16000, 32000), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	d, err := Duration(path)
	if err != nil {
		t.Fatalf("Duration failed: %v", err)
	}
	if d != 2*time.Second {
		t.Errorf("Expected 2s, got %v", d)
	}
}

func TestDurationSkipsUnknownChunks(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	buf.WriteString("WAVE")

	// A LIST chunk before fmt, with an odd size to exercise pad alignment
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(5))
	buf.Write([]byte{1, 2, 3, 4, 5, 0})

	header := buildWAVHeader(16000, 16000)
	buf.Write(header[12:]) // fmt and data chunks only

	path := filepath.Join(t.TempDir(), "list.wav")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	d, err := Duration(path)
	if err != nil {
		t.Fatalf("Duration failed: %v", err)
	}
	if d != time.Second {
		t.Errorf("Expected 1s, got %v", d)
	}
}

func TestDurationRejectsNonWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.mp3")
	if err := os.WriteFile(path, []byte("ID3 definitely not a wav"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := Duration(path); err == nil {
		t.Error("Expected an error for non-WAV input")
	}
}

func TestDurationMissingFile(t *testing.T) {
	if _, err := Duration(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestEstimateSpokenDuration(t *testing.T) {
	if d := EstimateSpokenDuration(""); d != 0 {
		t.Errorf("Empty text should estimate 0, got %v", d)
	}

	// Five words at 2.5 words/sec is two seconds
	d := EstimateSpokenDuration("one two three four five")
	if d != 2*time.Second {
		t.Errorf("Expected 2s, got %v", d)
	}
}

func TestConcatReader(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.bin")
	second := filepath.Join(dir, "b.bin")
	if err := os.WriteFile(first, []byte("hello "), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	if err := os.WriteFile(second, []byte("world"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	r := NewConcatReader(first, filepath.Join(dir, "missing.bin"), second)
	defer r.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if out.String() != "hello world" {
		t.Errorf("Expected concatenated content, got %q", out.String())
	}
}
