package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Duration reads a WAV file header and returns the duration of its audio
// data. Only PCM-style WAV containers are understood; anything else is an
// error so callers can fall back to an estimate.
func Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	return readWAVDuration(f)
}

// readWAVDuration walks the RIFF chunk list for the "fmt " and "data"
// chunks and derives the duration from byte rate and data size.
func readWAVDuration(r io.Reader) (time.Duration, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return 0, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return 0, fmt.Errorf("not a WAV file")
	}

	var byteRate uint32
	var dataSize uint32
	haveFmt, haveData := false, false

	for !(haveFmt && haveData) {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return 0, fmt.Errorf("failed to read chunk header: %w", err)
		}

		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			fmtChunk := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, fmtChunk); err != nil {
				return 0, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if len(fmtChunk) < 16 {
				return 0, fmt.Errorf("fmt chunk too short: %d bytes", len(fmtChunk))
			}
			byteRate = binary.LittleEndian.Uint32(fmtChunk[8:12])
			haveFmt = true
		case "data":
			dataSize = chunkSize
			haveData = true
			// No need to read the audio payload itself
			if !haveFmt {
				if err := skip(r, int64(chunkSize)); err != nil {
					return 0, err
				}
			}
		default:
			// Chunks are word-aligned; odd sizes carry a pad byte
			padded := int64(chunkSize)
			if chunkSize%2 == 1 {
				padded++
			}
			if err := skip(r, padded); err != nil {
				return 0, err
			}
		}
	}

	if !haveFmt || !haveData {
		return 0, fmt.Errorf("missing fmt or data chunk")
	}
	if byteRate == 0 {
		return 0, fmt.Errorf("invalid byte rate")
	}

	seconds := float64(dataSize) / float64(byteRate)
	return time.Duration(seconds * float64(time.Second)), nil
}

func skip(r io.Reader, n int64) error {
	if s, ok := r.(io.Seeker); ok {
		if _, err := s.Seek(n, io.SeekCurrent); err != nil {
			return fmt.Errorf("failed to seek past chunk: %w", err)
		}
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, n); err != nil && err != io.EOF {
		return fmt.Errorf("failed to skip chunk: %w", err)
	}
	return nil
}

// Speaking rate used when no audio file exists for a synthesized reply.
const wordsPerSecond = 2.5

// EstimateSpokenDuration approximates how long a line of text takes to say.
// Used as the playback timer for synthesized agent replies that have no
// backing audio file.
func EstimateSpokenDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	seconds := float64(words) / wordsPerSecond
	return time.Duration(seconds * float64(time.Second))
}
