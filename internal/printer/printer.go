// Package printer drives a print job over an established transport session:
// device setup, row streaming with pacing, paper feed and teardown. One job
// at a time; progress goes out on a channel, cancellation comes in through
// the context or Abort.
package printer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nantokaworks/catstrip/internal/protocol"
	"github.com/nantokaworks/catstrip/internal/shared/logger"
	"github.com/nantokaworks/catstrip/internal/transport"
)

var (
	ErrBusy       = errors.New("printer: a job is already in progress")
	ErrAborted    = errors.New("printer: job aborted")
	ErrImageWidth = errors.New("printer: image width must match the print head")
	ErrNoStrips   = errors.New("printer: nothing to print")
)

// Phase names the stage a job is in.
type Phase int

const (
	PhaseInit Phase = iota
	PhasePrinting
	PhaseFeeding
	PhaseFinishing
	PhaseDone
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhasePrinting:
		return "printing"
	case PhaseFeeding:
		return "feeding"
	case PhaseFinishing:
		return "finishing"
	case PhaseDone:
		return "done"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Progress is informational only. Err is set on the terminal error report
// and nowhere else.
type Progress struct {
	Phase      Phase
	Percent    int
	CurrentRow int
	TotalRows  int
	Message    string
	Err        error
}

// Options tune one print job. Zero values fall back to the defaults,
// except GapLines where zero simply means no gap rows.
type Options struct {
	Energy       uint16        // thermal strength, device units
	RowDelay     time.Duration // pause after each bitmap row
	FeedLines    uint8         // paper advance after the last row
	GapLines     int           // blank rows between strips
	InitDelay    time.Duration // settling pause between setup commands
	StateTimeout time.Duration // how long to wait for a dev-state notify
}

// DefaultOptions returns the values that work on stock GB01 hardware. The
// delays are not cosmetic: the firmware needs the settling time, and rows
// sent without pacing overrun the head buffer.
func DefaultOptions() Options {
	return Options{
		Energy:       0x2EE0,
		RowDelay:     15 * time.Millisecond,
		FeedLines:    72,
		GapLines:     12,
		InitDelay:    20 * time.Millisecond,
		StateTimeout: 500 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Energy == 0 {
		o.Energy = def.Energy
	}
	if o.RowDelay == 0 {
		o.RowDelay = def.RowDelay
	}
	if o.FeedLines == 0 {
		o.FeedLines = def.FeedLines
	}
	if o.GapLines < 0 {
		o.GapLines = 0
	}
	if o.InitDelay == 0 {
		o.InitDelay = def.InitDelay
	}
	if o.StateTimeout == 0 {
		o.StateTimeout = def.StateTimeout
	}
	return o
}

// Printer runs print jobs on a single session.
type Printer struct {
	session *transport.Session

	printing atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

func New(session *transport.Session) *Printer {
	return &Printer{session: session}
}

// Print streams a single dithered image. The image must be exactly the
// print-head width. The returned channel reports progress and closes when
// the job ends; drain it or poll it, either is fine.
func (p *Printer) Print(ctx context.Context, img *image.Gray, opts Options) (<-chan Progress, error) {
	return p.PrintStrips(ctx, []*image.Gray{img}, opts)
}

// PrintStrips streams several strips as one continuous job with blank gap
// rows between them. Validation happens before any byte reaches the device.
func (p *Printer) PrintStrips(ctx context.Context, strips []*image.Gray, opts Options) (<-chan Progress, error) {
	if len(strips) == 0 {
		return nil, ErrNoStrips
	}
	for i, s := range strips {
		if s == nil || s.Bounds().Empty() {
			return nil, fmt.Errorf("%w: strip %d is empty", ErrNoStrips, i)
		}
		if w := s.Bounds().Dx(); w != protocol.Width {
			return nil, fmt.Errorf("%w: strip %d is %dpx, want %d", ErrImageWidth, i, w, protocol.Width)
		}
	}
	if p.session.State() != transport.StateConnected {
		return nil, transport.ErrNotConnected
	}
	if !p.printing.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}

	opts = opts.withDefaults()
	jobCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	ch := make(chan Progress, 1)
	go p.run(jobCtx, strips, opts, ch)
	return ch, nil
}

// Abort cancels the job in flight, if any. The in-flight transport call is
// never interrupted; the job stops before the next one.
func (p *Printer) Abort() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
}

// Printing reports whether a job is currently running.
func (p *Printer) Printing() bool {
	return p.printing.Load()
}

func (p *Printer) run(ctx context.Context, strips []*image.Gray, opts Options, ch chan Progress) {
	job := uuid.New().String()
	started := time.Now()

	defer func() {
		p.mu.Lock()
		if p.cancel != nil {
			p.cancel()
			p.cancel = nil
		}
		p.mu.Unlock()
		p.printing.Store(false)
		close(ch)
	}()

	total := opts.GapLines * (len(strips) - 1)
	for _, s := range strips {
		total += s.Bounds().Dy()
	}
	logger.Info("print job started",
		zap.String("job", job),
		zap.Int("strips", len(strips)),
		zap.Int("rows", total),
		zap.Uint16("energy", opts.Energy))

	row := 0
	fail := func(err error) {
		if errors.Is(err, context.Canceled) {
			err = ErrAborted
		}
		if errors.Is(err, ErrAborted) {
			logger.Warn("print job aborted", zap.String("job", job), zap.Int("row", row))
		} else {
			logger.Error("print job failed", zap.String("job", job), zap.Int("row", row), zap.Error(err))
		}
		publish(ch, Progress{
			Phase:      PhaseError,
			Percent:    percent(row, total),
			CurrentRow: row,
			TotalRows:  total,
			Message:    err.Error(),
			Err:        err,
		})
	}

	// Send one command and give the firmware its settling time. The
	// cancellation check sits before the write so an abort never cuts a
	// frame in half.
	step := func(frame []byte, delay time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.session.Send(ctx, frame); err != nil {
			return err
		}
		if delay > 0 {
			return sleep(ctx, delay)
		}
		return nil
	}

	publish(ch, Progress{Phase: PhaseInit, TotalRows: total, Message: "preparing printer"})
	if err := p.queryState(ctx, job, opts.StateTimeout); err != nil {
		fail(err)
		return
	}
	if err := sleep(ctx, opts.InitDelay); err != nil {
		fail(err)
		return
	}
	for _, frame := range [][]byte{
		protocol.SetQuality200DPI(),
		protocol.SetEnergy(opts.Energy),
		protocol.ApplyEnergy(),
		protocol.LatticeStart(),
	} {
		if err := step(frame, opts.InitDelay); err != nil {
			fail(err)
			return
		}
	}

	// Rows count as sent the moment the frame is on the wire, so an abort
	// during the pacing delay still reports an accurate CurrentRow.
	sendRow := func(frame []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.session.Send(ctx, frame); err != nil {
			return err
		}
		row++
		publish(ch, Progress{
			Phase:      PhasePrinting,
			Percent:    percent(row, total),
			CurrentRow: row,
			TotalRows:  total,
		})
		return sleep(ctx, opts.RowDelay)
	}

	publish(ch, Progress{Phase: PhasePrinting, TotalRows: total, Message: "printing"})
	for i, strip := range strips {
		b := strip.Bounds()
		for y := 0; y < b.Dy(); y++ {
			frame, err := protocol.EncodeRow(rowPixels(strip, y))
			if err != nil {
				fail(err)
				return
			}
			if err := sendRow(frame); err != nil {
				fail(err)
				return
			}
		}
		if i == len(strips)-1 {
			continue
		}
		for g := 0; g < opts.GapLines; g++ {
			if err := sendRow(protocol.BlankRow()); err != nil {
				fail(err)
				return
			}
		}
	}

	publish(ch, Progress{Phase: PhaseFeeding, Percent: percent(row, total), CurrentRow: row, TotalRows: total, Message: "feeding paper"})
	if err := step(protocol.FeedPaper(opts.FeedLines), opts.InitDelay); err != nil {
		fail(err)
		return
	}

	publish(ch, Progress{Phase: PhaseFinishing, Percent: percent(row, total), CurrentRow: row, TotalRows: total, Message: "finishing"})
	for i := 0; i < 3; i++ {
		if err := step(protocol.SetPaper(), opts.InitDelay); err != nil {
			fail(err)
			return
		}
	}
	if err := step(protocol.LatticeEnd(), opts.InitDelay); err != nil {
		fail(err)
		return
	}
	if err := p.queryState(ctx, job, opts.StateTimeout); err != nil {
		fail(err)
		return
	}

	logger.Info("print job done",
		zap.String("job", job),
		zap.Int("rows", total),
		zap.Duration("took", time.Since(started)))
	publish(ch, Progress{Phase: PhaseDone, Percent: 100, CurrentRow: total, TotalRows: total, Message: "done"})
}

// queryState asks for the device status and logs anything the printer
// complains about. No answer within the timeout is fine; the command doubles
// as a wake-up on some firmware revisions.
func (p *Printer) queryState(ctx context.Context, job string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := p.session.Query(ctx, protocol.GetDevState(), timeout)
	if err != nil {
		return err
	}
	if data == nil {
		logger.Debug("no dev-state response", zap.String("job", job))
		return nil
	}
	st, err := protocol.ParseDevState(data)
	if err != nil {
		logger.Debug("unreadable dev-state response", zap.String("job", job), zap.Error(err))
		return nil
	}
	if !st.OK() {
		logger.Warn("printer reports a problem", zap.String("job", job), zap.String("state", st.String()))
	}
	return nil
}

// publish keeps only the latest value when nobody is draining the channel.
// The channel has capacity 1, so the terminal report always lands.
func publish(ch chan Progress, pr Progress) {
	for {
		select {
		case ch <- pr:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func percent(row, total int) int {
	if total <= 0 {
		return 0
	}
	return int(float64(row)/float64(total)*100 + 0.5)
}

func rowPixels(img *image.Gray, y int) []uint8 {
	b := img.Bounds()
	off := img.PixOffset(b.Min.X, b.Min.Y+y)
	return img.Pix[off : off+b.Dx()]
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
