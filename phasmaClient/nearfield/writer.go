package nearfield

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// WriterChannel is a headless channel: Publish prints the payload to w and
// Read takes one line from r.
type WriterChannel struct {
	mu     sync.Mutex
	w      io.Writer
	r      *bufio.Reader
	active bool
}

var _ Channel = (*WriterChannel)(nil)

// NewWriterChannel creates a channel over w and r. r may be nil when the
// channel only publishes.
func NewWriterChannel(w io.Writer, r io.Reader) *WriterChannel {
	c := &WriterChannel{w: w}
	if r != nil {
		c.r = bufio.NewReader(r)
	}
	return c
}

func (c *WriterChannel) Publish(_ context.Context, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return ErrBusy
	}
	if _, err := fmt.Fprintln(c.w, payload); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	c.active = true
	return nil
}

func (c *WriterChannel) Release(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	return nil
}

// Read returns the next non-empty line. It gives up when ctx is done, leaving
// the pending line read in the background.
func (c *WriterChannel) Read(ctx context.Context) (string, error) {
	if c.r == nil {
		return "", errors.New("channel has no input")
	}

	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		for {
			line, err := c.r.ReadString('\n')
			line = strings.TrimSpace(line)
			if line != "" || err != nil {
				if line != "" {
					err = nil
				}
				done <- result{line, err}
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.line, res.err
	}
}
