// Package transport owns the link to one printer: connecting, chunked frame
// writes and notify responses. Session is safe for use from multiple
// goroutines but carries no printing logic of its own.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nantokaworks/catstrip/internal/shared/logger"
	"github.com/nantokaworks/catstrip/internal/status"
	"go.uber.org/zap"
)

// State is the connection lifecycle of a Session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	ErrNotConnected           = errors.New("printer not connected")
	ErrCharacteristicNotFound = errors.New("printer characteristics not found")
)

// ConnectError wraps a failed connection attempt.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	if e.Address == "" {
		return fmt.Sprintf("connect failed: %v", e.Err)
	}
	return fmt.Sprintf("connect to %s failed: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Conn is one established link. Implementations: BLE and the dry-run writer.
type Conn interface {
	WriteChunk(data []byte) error
	Subscribe(fn func(data []byte)) error
	Close() error
	Disconnected() <-chan struct{}
}

// Dialer establishes a Conn. An empty address means "find any printer".
type Dialer func(ctx context.Context, address string, opts Options) (Conn, error)

// Options tune the link behavior.
type Options struct {
	ChunkSize      int           // bytes per GATT write
	ChunkDelay     time.Duration // pause between chunks of one frame
	ConnectTimeout time.Duration
	StabilizeWait  time.Duration // settle time after connecting
	NameFilter     string        // extra advertised-name filter for discovery
}

// DefaultOptions are safe for the GB01 family.
func DefaultOptions() Options {
	return Options{
		ChunkSize:      200,
		ChunkDelay:     20 * time.Millisecond,
		ConnectTimeout: 15 * time.Second,
		StabilizeWait:  500 * time.Millisecond,
	}
}

// Session owns at most one Conn and serializes all writes to it.
type Session struct {
	dial Dialer
	opts Options

	state atomic.Int32

	wmu sync.Mutex // one frame on the wire at a time

	mu     sync.Mutex
	conn   Conn
	notify func([]byte)
}

func NewSession(dial Dialer, opts Options) *Session {
	if opts.ChunkSize < 1 {
		opts.ChunkSize = DefaultOptions().ChunkSize
	}
	return &Session{dial: dial, opts: opts}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	old := State(s.state.Swap(int32(st)))
	if old != st {
		logger.Debug("Printer session state changed",
			zap.String("from", old.String()),
			zap.String("to", st.String()))
	}
}

// Connect dials the printer and waits for the link to settle. Connecting
// while connected is a no-op. A failed or cancelled attempt leaves the
// session disconnected; the error state is reserved for faults of an
// established link. Cancellation comes back as the context error, any other
// dial failure as a *ConnectError.
func (s *Session) Connect(ctx context.Context, address string) error {
	if s.State() == StateConnected {
		return nil
	}

	// A send failure leaves the dead conn in place. Swap it out and close
	// it before dialing so its watcher stays quiet.
	s.mu.Lock()
	stale := s.conn
	s.conn = nil
	s.mu.Unlock()
	if stale != nil {
		_ = stale.Close()
	}

	s.setState(StateConnecting)
	logger.Info("Connecting to printer", zap.String("address", address))

	dialCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	conn, err := s.dial(dialCtx, address, s.opts)
	if err != nil {
		s.setState(StateDisconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ConnectError{Address: address, Err: err}
	}

	// BLE接続直後はパラメータネゴシエーション完了を待つ
	if err := sleepCtx(ctx, s.opts.StabilizeWait); err != nil {
		_ = conn.Close()
		s.setState(StateDisconnected)
		return err
	}

	if err := conn.Subscribe(s.dispatchNotify); err != nil {
		logger.Warn("Notify subscription unavailable, state queries will time out", zap.Error(err))
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.setState(StateConnected)
	status.SetPrinterConnected(true)
	logger.Info("Printer connected", zap.String("address", address))

	go s.watch(conn)
	return nil
}

// watch turns an unexpected link loss into the error state. A deliberate
// Disconnect swaps the conn out first, so the watcher goes quiet.
func (s *Session) watch(conn Conn) {
	<-conn.Disconnected()

	s.mu.Lock()
	current := s.conn == conn
	if current {
		s.conn = nil
	}
	s.mu.Unlock()

	if current {
		s.setState(StateError)
		status.SetPrinterConnected(false)
		logger.Warn("Printer connection lost")
	}
}

// Disconnect closes the link. Safe to call in any state.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.setState(StateDisconnected)
	status.SetPrinterConnected(false)
	if conn == nil {
		return nil
	}
	logger.Info("Disconnecting printer")
	return conn.Close()
}

// Send writes one frame, split into chunks with the configured delay in
// between. The context is checked before every chunk. Concurrent calls take
// turns; chunks of different frames never interleave.
func (s *Session) Send(ctx context.Context, frame []byte) error {
	if s.State() != StateConnected {
		return ErrNotConnected
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	for off := 0; off < len(frame); off += s.opts.ChunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := off + s.opts.ChunkSize
		if end > len(frame) {
			end = len(frame)
		}
		if err := conn.WriteChunk(frame[off:end]); err != nil {
			s.setState(StateError)
			status.SetPrinterConnected(false)
			return fmt.Errorf("frame write failed: %w", err)
		}
		if end < len(frame) {
			if err := sleepCtx(ctx, s.opts.ChunkDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

// Query sends a frame and waits for one notify response. A missing response
// within the timeout is not a failure: the result is just nil.
func (s *Session) Query(ctx context.Context, frame []byte, timeout time.Duration) ([]byte, error) {
	ch := make(chan []byte, 1)
	s.mu.Lock()
	s.notify = func(data []byte) {
		select {
		case ch <- data:
		default:
		}
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.notify = nil
		s.mu.Unlock()
	}()

	if err := s.Send(ctx, frame); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case data := <-ch:
		return data, nil
	case <-timer.C:
		logger.Debug("No notify response within window", zap.Duration("timeout", timeout))
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) dispatchNotify(data []byte) {
	logger.Debug("Notify received", zap.Int("bytes", len(data)))
	s.mu.Lock()
	fn := s.notify
	s.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
