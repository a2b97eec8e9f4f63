package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/arm"
	"scribe/internal/arm/armtest"
	"scribe/internal/choreo"
	"scribe/internal/intent"
	"scribe/internal/session"
	"scribe/pkg/gcode"
)

type speaker struct {
	mu    sync.Mutex
	lines []string
}

func (s *speaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
	return nil
}

func (s *speaker) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

type sketcher struct {
	err error
	out string
}

func (f *sketcher) Sketch(ctx context.Context, out string) (gcode.Program, error) {
	f.out = out
	if f.err != nil {
		return nil, f.err
	}
	return gcode.Program{gcode.Lift(280)}, nil
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func setup(t *testing.T) (*Dispatcher, *armtest.Driver, *speaker) {
	t.Helper()
	drv := armtest.New()
	d := New(choreo.NewPlayer(drv).WithSleep(noSleep), session.New(session.DefaultSettings()))
	d.Settle = 0
	d.Writer.DwellUnit = 0
	sp := &speaker{}
	d.Speaker = sp
	require.NoError(t, d.Start(context.Background()))
	return d, drv, sp
}

// reference records the calls c makes on a fresh driver.
func reference(t *testing.T, c choreo.Choreography) []armtest.Call {
	t.Helper()
	drv := armtest.New()
	err := choreo.NewPlayer(drv).WithSleep(noSleep).Run(context.Background(), c, session.New(session.DefaultSettings()))
	require.NoError(t, err)
	return drv.Calls()
}

func TestStartSequence(t *testing.T) {
	d, drv, _ := setup(t)
	assert.Equal(t, []string{"clear", "enable", "mode", "state"}, drv.Ops())
	assert.True(t, d.Session().Attached())
	assert.Equal(t, 4, drv.Len())
}

func TestStartFails(t *testing.T) {
	drv := armtest.New()
	drv.FailAt, drv.FailCode = 2, 9
	d := New(choreo.NewPlayer(drv), session.New(session.DefaultSettings()))
	d.Settle = 0
	assert.EqualError(t, d.Start(context.Background()), "enable motion: code 9")
	assert.False(t, d.Session().Attached())

	drv = armtest.New()
	drv.OnCall = func(n int, _ armtest.Call) {
		if n == 4 {
			drv.SetErrorCode(31)
		}
	}
	d = New(choreo.NewPlayer(drv), session.New(session.DefaultSettings()))
	d.Settle = 0
	assert.EqualError(t, d.Start(context.Background()), "arm reports error code 31")
}

func TestWriteAB(t *testing.T) {
	d, drv, sp := setup(t)

	out, err := d.Dispatch(context.Background(), intent.Intent{Kind: intent.Write, Text: "AB"})
	require.NoError(t, err)
	assert.Equal(t, []string{"assets/gcode/Letters/A.nc", "assets/gcode/Letters/B.nc"}, out.Paths)
	assert.Equal(t, out.Paths, drv.Paths())
	assert.False(t, out.Full)
	assert.Equal(t, session.Cursor{X: 0, Y: 0}, d.Session().Cursor())
	assert.Equal(t, []string{"Start writing!"}, sp.Lines())
}

func TestWriteNeedsText(t *testing.T) {
	d, drv, _ := setup(t)
	_, err := d.Dispatch(context.Background(), intent.Intent{Kind: intent.Write, Text: "  "})
	assert.ErrorIs(t, err, ErrNothingToWrite)
	assert.Len(t, drv.Calls(), 4)
}

func TestWriteErasesFullBoardFirst(t *testing.T) {
	d, drv, sp := setup(t)
	s := d.Session()
	s.SetCursor(session.Cursor{X: 3, Y: 10})
	s.SetFull(true)

	out, err := d.Dispatch(context.Background(), intent.Intent{Kind: intent.Write, Text: "A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"assets/gcode/Letters/A.nc"}, out.Paths)

	erase := reference(t, d.Catalog.Erase())
	calls := drv.Calls()[4:]
	require.Greater(t, len(calls), len(erase))
	assert.Equal(t, erase, calls[:len(erase)])

	assert.False(t, s.Full())
	assert.Equal(t, session.Cursor{X: 0, Y: -1}, s.Cursor())
	assert.Equal(t, []string{"The board is full, erasing first.", "Start writing!"}, sp.Lines())
}

func TestWriteReportsFullBoard(t *testing.T) {
	d, _, sp := setup(t)
	d.Session().SetCursor(session.Cursor{X: 3, Y: session.Origin.Y})

	out, err := d.Dispatch(context.Background(), intent.Intent{Kind: intent.Write, Text: "HELLO WORLD AGAIN"})
	require.NoError(t, err)
	assert.True(t, out.Full)
	assert.Len(t, out.Paths, 10)
	assert.True(t, d.Session().Full())
	assert.Equal(t, "The board is full.", sp.Lines()[len(sp.Lines())-1])
}

func TestEraseClearsBoard(t *testing.T) {
	d, drv, _ := setup(t)
	s := d.Session()
	s.SetCursor(session.Cursor{X: 2, Y: 5})
	s.SetFull(true)

	_, err := d.Dispatch(context.Background(), intent.Intent{Kind: intent.Erase, Reply: "On it."})
	require.NoError(t, err)
	assert.Equal(t, reference(t, d.Catalog.Erase()), drv.Calls()[4:])
	assert.Equal(t, session.Origin, s.Cursor())
	assert.False(t, s.Full())
}

func TestPaint(t *testing.T) {
	d, drv, sp := setup(t)
	sk := &sketcher{}
	d.Sketcher = sk

	_, err := d.Dispatch(context.Background(), intent.Intent{Kind: intent.Paint})
	require.NoError(t, err)
	assert.Equal(t, choreo.PaintFile, sk.out)
	assert.Equal(t, []string{choreo.PaintFile}, drv.Paths())
	assert.Equal(t, []string{"Cheese!"}, sp.Lines())
}

func TestPaintSkipsMotionWhenCaptureFails(t *testing.T) {
	d, drv, _ := setup(t)
	d.Sketcher = &sketcher{err: errors.New("no camera")}

	_, err := d.Dispatch(context.Background(), intent.Intent{Kind: intent.Paint})
	assert.ErrorContains(t, err, "no camera")
	assert.Len(t, drv.Calls(), 4)
	assert.False(t, d.Session().Quit())

	d.Sketcher = nil
	_, err = d.Dispatch(context.Background(), intent.Intent{Kind: intent.Paint})
	assert.ErrorIs(t, err, ErrNoCamera)
}

func TestDisconnectRejectsMotionUntilRenew(t *testing.T) {
	d, drv, _ := setup(t)
	d.Sketcher = &sketcher{}
	first := d.Session().ID

	drv.Emit(arm.Event{Kind: arm.EventConn, Connected: false})

	for _, in := range []intent.Intent{
		{Kind: intent.Write, Text: "HI"},
		{Kind: intent.Erase},
		{Kind: intent.Paint},
	} {
		_, err := d.Dispatch(context.Background(), in)
		assert.ErrorIs(t, err, ErrSessionClosed, in.String())
	}
	assert.Len(t, drv.Calls(), 4)
	assert.Equal(t, "arm disconnected", d.Session().QuitReason())

	require.NoError(t, d.Renew(context.Background()))
	assert.NotEqual(t, first, d.Session().ID)

	out, err := d.Dispatch(context.Background(), intent.Intent{Kind: intent.Write, Text: "HI"})
	require.NoError(t, err)
	assert.Len(t, out.Paths, 2)
}

func TestStatusAppliesQueuedEvents(t *testing.T) {
	d, drv, _ := setup(t)
	drv.Emit(arm.Event{Kind: arm.EventConn, Connected: false})

	st := d.Status()
	assert.True(t, st.Quit)
	assert.Equal(t, "arm disconnected", st.Reason)
	assert.Len(t, drv.Calls(), 4)
}

func TestResetDetachesAndWriteReattaches(t *testing.T) {
	d, drv, _ := setup(t)

	_, err := d.Dispatch(context.Background(), intent.Intent{Kind: intent.Reset})
	require.NoError(t, err)
	assert.Equal(t, reference(t, d.Catalog.Reset()), drv.Calls()[4:])
	assert.False(t, d.Session().Attached())
	assert.Zero(t, drv.Len())

	_, err = d.Dispatch(context.Background(), intent.Intent{Kind: intent.Write, Text: "A"})
	require.NoError(t, err)
	assert.True(t, d.Session().Attached())
}

func TestQuit(t *testing.T) {
	d, drv, sp := setup(t)

	_, err := d.Dispatch(context.Background(), intent.Intent{Kind: intent.Quit})
	require.NoError(t, err)
	assert.Equal(t, reference(t, d.Catalog.Reset()), drv.Calls()[4:])
	assert.Zero(t, drv.Len())
	assert.True(t, d.Session().Quit())
	assert.Equal(t, []string{"Bye!"}, sp.Lines())

	select {
	case <-d.Done():
	default:
		t.Fatal("done not closed")
	}

	_, err = d.Dispatch(context.Background(), intent.Intent{Kind: intent.Write, Text: "A"})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestQuitAfterFaultSkipsHoming(t *testing.T) {
	d, drv, _ := setup(t)
	d.Session().Latch("arm error 3")

	_, err := d.Dispatch(context.Background(), intent.Intent{Kind: intent.Quit})
	require.NoError(t, err)
	assert.Len(t, drv.Calls(), 4)
	assert.Equal(t, "arm error 3", d.Session().QuitReason())
}

func TestChatOnlySpeaks(t *testing.T) {
	d, drv, sp := setup(t)
	_, err := d.Dispatch(context.Background(), intent.Intent{Kind: intent.Chat, Reply: "Four."})
	require.NoError(t, err)
	assert.Len(t, drv.Calls(), 4)
	assert.Equal(t, []string{"Four."}, sp.Lines())
}

func TestFailedStepLatchesQuit(t *testing.T) {
	d, drv, _ := setup(t)
	drv.FailAt, drv.FailCode = 7, 11

	_, err := d.Dispatch(context.Background(), intent.Intent{Kind: intent.Erase})
	var fault *choreo.Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, 11, fault.Code)
	assert.Len(t, drv.Calls(), 7)
	assert.True(t, d.Session().Quit())

	_, err = d.Dispatch(context.Background(), intent.Intent{Kind: intent.Erase})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestEmergencyStop(t *testing.T) {
	d, drv, _ := setup(t)
	require.NoError(t, d.EmergencyStop(context.Background()))
	assert.Equal(t, "estop", drv.Ops()[4])
	assert.True(t, d.Session().Quit())
	assert.Equal(t, "emergency stop", d.Status().Reason)
}

func TestServeSerialises(t *testing.T) {
	d, drv, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	go func() { served <- d.Serve(ctx) }()

	var wg sync.WaitGroup
	outs := make([]Outcome, 3)
	errs := make([]error, 3)
	for i, text := range []string{"A", "B", "C"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outs[i], errs[i] = d.Submit(ctx, intent.Intent{Kind: intent.Write, Text: text})
		}()
	}
	wg.Wait()

	for i := range outs {
		require.NoError(t, errs[i])
		assert.Len(t, outs[i].Paths, 1)
	}
	assert.Len(t, drv.Paths(), 3)
	assert.Equal(t, session.Cursor{X: 2, Y: -1}, d.Session().Cursor())
	assert.Empty(t, d.Status().Busy)

	require.NoError(t, d.SubmitRenew(ctx))
	assert.False(t, d.Status().Quit)

	cancel()
	assert.ErrorIs(t, <-served, context.Canceled)
}
