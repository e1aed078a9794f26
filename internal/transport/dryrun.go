package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// WriterConn is the dry-run link: every chunk is hex dumped to a writer
// instead of a radio. It never produces notify data, so state queries run
// into their normal timeout path.
type WriterConn struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
	done   chan struct{}
}

func NewWriterConn(w io.Writer) *WriterConn {
	return &WriterConn{w: w, done: make(chan struct{})}
}

func (c *WriterConn) WriteChunk(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("dry-run connection closed")
	}
	_, err := fmt.Fprintf(c.w, "-> % X\n", data)
	return err
}

func (c *WriterConn) Subscribe(fn func(data []byte)) error {
	return nil
}

func (c *WriterConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *WriterConn) Disconnected() <-chan struct{} {
	return c.done
}

// DialWriter builds a Dialer for dry-run sessions.
func DialWriter(w io.Writer) Dialer {
	return func(ctx context.Context, address string, opts Options) (Conn, error) {
		return NewWriterConn(w), nil
	}
}
