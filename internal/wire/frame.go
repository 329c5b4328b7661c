package wire

import (
	"bufio"
	"fmt"
	"io"
)

// ReadFrame reads one NUL-terminated message from r, stripping the
// terminator before returning.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	data, err := r.ReadBytes(0)
	if err != nil {
		return nil, fmt.Errorf("wire: read frame: %w", err)
	}
	return data[:len(data)-1], nil
}

// WriteFrame writes body followed by a single NUL terminator byte.
func WriteFrame(w io.Writer, body []byte) error {
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return fmt.Errorf("wire: write frame terminator: %w", err)
	}
	return nil
}
