package mbox

import (
	"errors"
	"fmt"
	"io"

	mboxlib "github.com/emersion/go-mbox"
)

// Each calls fn with the raw bytes of every message in the archive read
// from r, in order. An error returned by fn stops the iteration and is
// returned unchanged.
func Each(r io.Reader, fn func(idx int, raw []byte) error) error {
	reader := mboxlib.NewReader(r)

	for idx := 0; ; idx++ {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return fmt.Errorf("message %d read: %w", idx, err)
		}

		if err := fn(idx, raw); err != nil {
			return err
		}
	}
}

// CountMessages counts the messages in the archive read from r.
func CountMessages(r io.Reader) (int, error) {
	reader := mboxlib.NewReader(r)

	count := 0
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return count, err
		}

		// A message that cannot be drained still counts.
		_, _ = io.Copy(io.Discard, msgReader)
		count++
	}
}
