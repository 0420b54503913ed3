package audio

import (
	"io"
	"os"
)

// ConcatReader streams a sequence of audio files back to back, presenting
// them as one continuous stream. Files that cannot be opened are skipped so
// a missing segment never stalls the stream, matching the sequencer's
// skip-on-error playback policy.
type ConcatReader struct {
	paths   []string
	index   int
	current io.ReadCloser
}

// NewConcatReader creates a reader over the given files in order
func NewConcatReader(paths ...string) *ConcatReader {
	return &ConcatReader{paths: paths}
}

// Read implements io.Reader
func (c *ConcatReader) Read(p []byte) (int, error) {
	for {
		if c.current == nil {
			if c.index >= len(c.paths) {
				return 0, io.EOF
			}
			f, err := os.Open(c.paths[c.index])
			c.index++
			if err != nil {
				// Skip unreadable segments
				continue
			}
			c.current = f
		}

		n, err := c.current.Read(p)
		if err == io.EOF {
			c.current.Close()
			c.current = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Close implements io.Closer
func (c *ConcatReader) Close() error {
	if c.current != nil {
		err := c.current.Close()
		c.current = nil
		return err
	}
	return nil
}
