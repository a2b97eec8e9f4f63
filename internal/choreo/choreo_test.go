package choreo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/arm"
	"scribe/internal/arm/armtest"
	"scribe/internal/session"
)

func noSleep(context.Context, time.Duration) error { return nil }

func setup() (*Player, *armtest.Driver, *session.Session) {
	d := armtest.New()
	s := session.New(session.DefaultSettings())
	s.Attach(d)
	return NewPlayer(d).WithSleep(noSleep), d, s
}

func TestEveryChoreographyStopsAtFirstFailure(t *testing.T) {
	cat := DefaultCatalog()
	all := []Choreography{cat.Erase(), cat.Paint(PaintFile), cat.Reset()}
	for _, name := range cat.Names() {
		all = append(all, cat.Must(name))
	}

	for _, ch := range all {
		calls := countCalls(t, ch)
		for fail := 1; fail <= calls; fail++ {
			p, d, s := setup()
			d.FailAt = fail
			d.FailCode = 9

			err := p.Run(context.Background(), ch, s)

			var fault *Fault
			require.ErrorAs(t, err, &fault, "%s fail at %d", ch.Name, fail)
			assert.Equal(t, ReasonCommand, fault.Reason)
			assert.Equal(t, 9, fault.Code)
			assert.Len(t, d.Calls(), fail, "%s: no call after the failing one", ch.Name)
			assert.True(t, s.Quit())
		}
	}
}

// countCalls plays ch cleanly and returns how many driver calls it made.
func countCalls(t *testing.T, ch Choreography) int {
	t.Helper()
	p, d, s := setup()
	require.NoError(t, p.Run(context.Background(), ch, s))
	return len(d.Calls())
}

func TestQuitLatchedBeforeRun(t *testing.T) {
	p, d, s := setup()
	s.Latch("test")

	err := p.Run(context.Background(), DefaultCatalog().Must(Home), s)
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, ReasonQuit, fault.Reason)
	assert.Equal(t, 0, fault.Step)
	assert.Empty(t, d.Calls())
}

func TestDisconnectMidRunStopsAtNextStep(t *testing.T) {
	p, d, s := setup()
	d.OnCall = func(n int, _ armtest.Call) {
		if n == 2 {
			d.Emit(arm.Event{Kind: arm.EventConn, Connected: false})
		}
	}

	err := p.Run(context.Background(), DefaultCatalog().Must(GrabPen), s)
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, ReasonQuit, fault.Reason)
	assert.Equal(t, 2, fault.Step)
	assert.Len(t, d.Calls(), 2)
	assert.Equal(t, "arm disconnected", s.QuitReason())
}

func TestHeldErrorCodeAborts(t *testing.T) {
	p, d, s := setup()
	d.SetErrorCode(22)

	err := p.Run(context.Background(), DefaultCatalog().Must(Home), s)
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, ReasonArmError, fault.Reason)
	assert.Equal(t, 22, fault.Code)
	assert.True(t, s.Quit())
	assert.Empty(t, d.Calls())
}

func TestCanceledDwellDoesNotLatch(t *testing.T) {
	d := armtest.New()
	s := session.New(session.DefaultSettings())
	p := NewPlayer(d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Run(ctx, New("wait", Dwell{D: time.Hour}), s)
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, ReasonCanceled, fault.Reason)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, s.Quit())
}

func TestEraseOrder(t *testing.T) {
	p, d, s := setup()
	cat := DefaultCatalog()
	require.NoError(t, p.Run(context.Background(), cat.Erase(), s))

	var want []armtest.Call
	for _, part := range []string{Home, GrabEraser, MoveEraser, Clean, PutBackEraser, Home} {
		ref := armtest.New()
		env := Env{Driver: ref, Settings: s.Settings, Sleep: noSleep}
		for _, st := range cat.Must(part).Steps {
			_, err := st.Apply(context.Background(), env)
			require.NoError(t, err)
		}
		want = append(want, ref.Calls()...)
	}
	assert.Equal(t, want, d.Calls())

	// two strokes per lane on three lanes at wiping height
	var lanes []float64
	for _, c := range d.Calls() {
		if c.Op == "pose" && c.Values[2] == CleanHeight && c.Values[1] == cleanFar {
			lanes = append(lanes, c.Values[0])
		}
	}
	assert.Equal(t, []float64{187.2, 187.2, 224.5, 224.5, 274.5, 274.5}, lanes)
}

func TestPutBackEraserLeavesBoard(t *testing.T) {
	steps := DefaultCatalog().Must(PutBackEraser).Steps
	require.NotEmpty(t, steps)
	first, ok := steps[0].(MovePose)
	require.True(t, ok)
	assert.Equal(t, arm.Pose{282.8, -121, EraserAbove, -179.6, -0.5, -46.3}, first.Pose)
}

func TestStepDefaults(t *testing.T) {
	p, d, s := setup()
	ch := New("defaults",
		MoveJoints{Joints: homeJoints},
		MovePose{Pose: LetterOrigin, Speed: 50},
		Gripper{Width: GripPen},
		WorldOffset{Offset: arm.Pose{-40, -75}},
	)
	require.NoError(t, p.Run(context.Background(), ch, s))

	calls := d.Calls()
	require.Len(t, calls, 5)
	assert.Equal(t, arm.Motion{Speed: 20, Acc: 500, Wait: false, Radius: NoBlend}, calls[0].Motion)
	assert.Equal(t, arm.Motion{Speed: 50, Acc: 2000, Wait: true, Radius: NoBlend}, calls[1].Motion)
	assert.Equal(t, []float64{GripPen, DefaultGripperSpeed}, calls[2].Values)
	assert.Equal(t, "offset", calls[3].Op)
	assert.Equal(t, "state", calls[4].Op)
}

func TestFaultMessage(t *testing.T) {
	f := &Fault{Choreography: "erase", Step: 3, Code: 9, Reason: ReasonCommand}
	assert.Equal(t, "erase aborted at step 3: command (code 9)", f.Error())
}
