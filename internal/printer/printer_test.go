package printer

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/nantokaworks/catstrip/internal/protocol"
	"github.com/nantokaworks/catstrip/internal/transport"
)

// devStateOK is the notify frame for a printer with nothing to complain
// about: payload [0x00], crc8([0x00]) = 0x00.
var devStateOK = []byte{0x51, 0x78, 0xA3, 0x00, 0x01, 0x00, 0x00, 0x00, 0xFF}

type recorderConn struct {
	mu       sync.Mutex
	frames   [][]byte
	notifyFn func([]byte)
	done     chan struct{}
	closed   bool
}

func newRecorderConn() *recorderConn {
	return &recorderConn{done: make(chan struct{})}
}

func (c *recorderConn) WriteChunk(data []byte) error {
	c.mu.Lock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.frames = append(c.frames, buf)
	fn := c.notifyFn
	c.mu.Unlock()

	// Answer every dev-state request like real firmware would.
	if fn != nil && len(data) > 2 && data[2] == protocol.CmdGetDevState {
		go fn(devStateOK)
	}
	return nil
}

func (c *recorderConn) Subscribe(fn func(data []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifyFn = fn
	return nil
}

func (c *recorderConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *recorderConn) Disconnected() <-chan struct{} { return c.done }

func (c *recorderConn) sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *recorderConn) opcodes() []byte {
	var ops []byte
	for _, f := range c.sent() {
		if len(f) > 2 {
			ops = append(ops, f[2])
		}
	}
	return ops
}

func newTestSession(t *testing.T, conn *recorderConn) *transport.Session {
	t.Helper()
	dial := func(ctx context.Context, address string, opts transport.Options) (transport.Conn, error) {
		return conn, nil
	}
	s := transport.NewSession(dial, transport.Options{
		ChunkSize:      200,
		ChunkDelay:     0,
		ConnectTimeout: time.Second,
		StabilizeWait:  0,
	})
	if err := s.Connect(context.Background(), ""); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	t.Cleanup(func() { _ = s.Disconnect() })
	return s
}

func fastOptions() Options {
	return Options{
		Energy:       0x2EE0,
		RowDelay:     time.Microsecond,
		FeedLines:    72,
		InitDelay:    time.Microsecond,
		StateTimeout: 50 * time.Millisecond,
	}
}

func drain(ch <-chan Progress) []Progress {
	var out []Progress
	for p := range ch {
		out = append(out, p)
	}
	return out
}

func TestPrintStripsSequence(t *testing.T) {
	conn := newRecorderConn()
	p := New(newTestSession(t, conn))

	a := whiteStrip(2)
	b := whiteStrip(3)

	opts := fastOptions()
	opts.GapLines = 2

	ch, err := p.PrintStrips(context.Background(), []*image.Gray{a, b}, opts)
	if err != nil {
		t.Fatalf("PrintStrips() error: %v", err)
	}
	progress := drain(ch)

	want := []byte{
		protocol.CmdGetDevState,
		protocol.CmdSetQuality,
		protocol.CmdSetEnergy,
		protocol.CmdApplyEnergy,
		protocol.CmdControlLattice,
		protocol.CmdDrawBitmap, protocol.CmdDrawBitmap, // strip a
		protocol.CmdDrawBitmap, protocol.CmdDrawBitmap, // gap
		protocol.CmdDrawBitmap, protocol.CmdDrawBitmap, protocol.CmdDrawBitmap, // strip b
		protocol.CmdFeedPaper,
		protocol.CmdSetPaper, protocol.CmdSetPaper, protocol.CmdSetPaper,
		protocol.CmdControlLattice,
		protocol.CmdGetDevState,
	}
	got := conn.opcodes()
	if len(got) != len(want) {
		t.Fatalf("sent %d frames, want %d: % X", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d opcode = %#02x, want %#02x (sequence % X)", i, got[i], want[i], got)
		}
	}

	// One lattice pair for the whole job.
	lattice := 0
	for _, op := range got {
		if op == protocol.CmdControlLattice {
			lattice++
		}
	}
	if lattice != 2 {
		t.Fatalf("lattice frames = %d, want 2", lattice)
	}

	// The gap rows are blank.
	frames := conn.sent()
	for _, i := range []int{7, 8} {
		payload := frames[i][6 : 6+protocol.RowBytes]
		for _, bb := range payload {
			if bb != 0 {
				t.Fatalf("gap frame %d payload not blank: % X", i, payload)
			}
		}
	}

	if len(progress) == 0 {
		t.Fatal("no progress reported")
	}
	last := progress[len(progress)-1]
	if last.Phase != PhaseDone {
		t.Fatalf("final phase = %v, want %v", last.Phase, PhaseDone)
	}
	if last.Percent != 100 {
		t.Fatalf("final percent = %d, want 100", last.Percent)
	}
	if last.TotalRows != 7 {
		t.Fatalf("TotalRows = %d, want 7", last.TotalRows)
	}
}

func TestPrintRowPayload(t *testing.T) {
	conn := newRecorderConn()
	p := New(newTestSession(t, conn))

	img := whiteStrip(1)
	img.Pix[0] = 0x00 // leftmost pixel dark

	ch, err := p.Print(context.Background(), img, fastOptions())
	if err != nil {
		t.Fatalf("Print() error: %v", err)
	}
	drain(ch)

	var rowFrame []byte
	for _, f := range conn.sent() {
		if len(f) > 2 && f[2] == protocol.CmdDrawBitmap {
			rowFrame = f
			break
		}
	}
	if rowFrame == nil {
		t.Fatal("no bitmap frame sent")
	}
	payload := rowFrame[6 : 6+protocol.RowBytes]
	if payload[0] != 0x80 {
		t.Fatalf("payload[0] = %#02x, want 0x80", payload[0])
	}
	for i := 1; i < protocol.RowBytes; i++ {
		if payload[i] != 0 {
			t.Fatalf("payload[%d] = %#02x, want 0x00", i, payload[i])
		}
	}
}

func TestPrintRejectsWrongWidth(t *testing.T) {
	conn := newRecorderConn()
	p := New(newTestSession(t, conn))

	img := image.NewGray(image.Rect(0, 0, protocol.Width-1, 10))
	if _, err := p.Print(context.Background(), img, fastOptions()); !errors.Is(err, ErrImageWidth) {
		t.Fatalf("Print() = %v, want ErrImageWidth", err)
	}
	if n := len(conn.sent()); n != 0 {
		t.Fatalf("%d frames reached the device on a rejected job", n)
	}
}

func TestPrintRejectsEmptyJob(t *testing.T) {
	conn := newRecorderConn()
	p := New(newTestSession(t, conn))

	if _, err := p.PrintStrips(context.Background(), nil, fastOptions()); !errors.Is(err, ErrNoStrips) {
		t.Fatalf("PrintStrips(nil) = %v, want ErrNoStrips", err)
	}
	if _, err := p.PrintStrips(context.Background(), []*image.Gray{}, fastOptions()); !errors.Is(err, ErrNoStrips) {
		t.Fatalf("PrintStrips(empty) = %v, want ErrNoStrips", err)
	}
}

func TestPrintRequiresConnection(t *testing.T) {
	conn := newRecorderConn()
	dial := func(ctx context.Context, address string, opts transport.Options) (transport.Conn, error) {
		return conn, nil
	}
	s := transport.NewSession(dial, transport.Options{ChunkSize: 200, ConnectTimeout: time.Second})
	p := New(s)

	if _, err := p.Print(context.Background(), whiteStrip(1), fastOptions()); !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("Print() = %v, want ErrNotConnected", err)
	}
	if len(conn.sent()) != 0 {
		t.Fatal("frames sent without a connection")
	}
}

func TestPrintBusy(t *testing.T) {
	conn := newRecorderConn()
	p := New(newTestSession(t, conn))

	opts := fastOptions()
	opts.RowDelay = time.Millisecond

	ch, err := p.PrintStrips(context.Background(), []*image.Gray{whiteStrip(300)}, opts)
	if err != nil {
		t.Fatalf("PrintStrips() error: %v", err)
	}
	if _, err := p.Print(context.Background(), whiteStrip(1), fastOptions()); !errors.Is(err, ErrBusy) {
		t.Fatalf("concurrent Print() = %v, want ErrBusy", err)
	}

	p.Abort()
	drain(ch)
	if p.Printing() {
		t.Fatal("Printing() still true after the job ended")
	}
}

func TestAbortStopsRowStream(t *testing.T) {
	conn := newRecorderConn()
	p := New(newTestSession(t, conn))

	opts := fastOptions()
	opts.RowDelay = time.Millisecond

	ch, err := p.Print(context.Background(), whiteStrip(200), opts)
	if err != nil {
		t.Fatalf("Print() error: %v", err)
	}

	var progress []Progress
	for pr := range ch {
		progress = append(progress, pr)
		if pr.Phase == PhasePrinting && pr.CurrentRow >= 50 {
			p.Abort()
		}
	}

	last := progress[len(progress)-1]
	if last.Phase != PhaseError {
		t.Fatalf("final phase = %v, want %v", last.Phase, PhaseError)
	}
	if !errors.Is(last.Err, ErrAborted) {
		t.Fatalf("final Err = %v, want ErrAborted", last.Err)
	}

	ops := conn.opcodes()
	rows := 0
	for _, op := range ops {
		switch op {
		case protocol.CmdDrawBitmap:
			rows++
		case protocol.CmdFeedPaper, protocol.CmdSetPaper:
			t.Fatalf("teardown frame %#02x sent after abort", op)
		}
	}
	if rows >= 200 {
		t.Fatalf("all %d rows were sent despite the abort", rows)
	}
	// Row frames match the reported row count: nothing went out after the
	// in-flight frame.
	if rows != last.CurrentRow {
		t.Fatalf("sent %d row frames, progress says %d", rows, last.CurrentRow)
	}
	// Only the opening lattice went out.
	lattice := 0
	for _, op := range ops {
		if op == protocol.CmdControlLattice {
			lattice++
		}
	}
	if lattice != 1 {
		t.Fatalf("lattice frames = %d, want 1", lattice)
	}
}

func TestPrintAgainAfterAbort(t *testing.T) {
	conn := newRecorderConn()
	p := New(newTestSession(t, conn))

	opts := fastOptions()
	opts.RowDelay = time.Millisecond

	ch, err := p.Print(context.Background(), whiteStrip(100), opts)
	if err != nil {
		t.Fatalf("Print() error: %v", err)
	}
	p.Abort()
	drain(ch)

	ch, err = p.Print(context.Background(), whiteStrip(2), fastOptions())
	if err != nil {
		t.Fatalf("Print() after abort error: %v", err)
	}
	progress := drain(ch)
	if last := progress[len(progress)-1]; last.Phase != PhaseDone {
		t.Fatalf("final phase = %v, want %v", last.Phase, PhaseDone)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		row, total, want int
	}{
		{0, 200, 0},
		{1, 200, 1},
		{50, 200, 25},
		{199, 200, 100},
		{200, 200, 100},
		{1, 3, 33},
		{2, 3, 67},
		{0, 0, 0},
	}
	for _, tc := range tests {
		if got := percent(tc.row, tc.total); got != tc.want {
			t.Errorf("percent(%d, %d) = %d, want %d", tc.row, tc.total, got, tc.want)
		}
	}
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseInit, "init"},
		{PhasePrinting, "printing"},
		{PhaseFeeding, "feeding"},
		{PhaseFinishing, "finishing"},
		{PhaseDone, "done"},
		{PhaseError, "error"},
		{Phase(42), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.phase.String(); got != tc.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tc.phase, got, tc.want)
		}
	}
}

func whiteStrip(rows int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, protocol.Width, rows))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	return img
}
