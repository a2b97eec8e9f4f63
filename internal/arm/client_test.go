package arm

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/armsim"
)

func dialSim(t *testing.T) (*Client, *armsim.Sim) {
	t.Helper()
	sim := armsim.New()
	srv := httptest.NewServer(sim)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c, err := Dial(ctx, ClientConfig{Url: "ws" + strings.TrimPrefix(srv.URL, "http"), Reconn: 1})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, sim
}

func TestDialFetchesVersion(t *testing.T) {
	c, _ := dialSim(t)
	assert.Equal(t, Version{1, 11, 6}, c.Version())
}

func TestCommandsOnWire(t *testing.T) {
	c, sim := dialSim(t)
	ctx := context.Background()

	code, err := c.SetPosition(ctx, Pose{238.3, 226.4, 355, -179.8, -0.5, -46.3}, Motion{Speed: 100, Acc: 2000, Wait: true})
	require.NoError(t, err)
	assert.Equal(t, CodeOK, code)

	code, err = c.SetGripper(ctx, 420, 5000, true, true)
	require.NoError(t, err)
	assert.Equal(t, CodeOK, code)

	code, err = c.RunMotionFile(ctx, "assets/gcode/Letters/A.nc", 1000)
	require.NoError(t, err)
	assert.Equal(t, CodeOK, code)

	cmds := sim.Commands()
	require.Len(t, cmds, 3)
	assert.Equal(t, "SET:POSE:100:2000:1:0:238.3:226.4:355:-179.8:-0.5:-46.3", cmds[0].String())
	assert.Equal(t, "SET:GRIPPER:420:5000:1:1", cmds[1].String())
	assert.Equal(t, "RUN:GCODE:assets/gcode/Letters/A.nc:1000", cmds[2].String())
}

func TestRejectedCommandCode(t *testing.T) {
	c, sim := dialSim(t)
	sim.FailAt(2, 9)

	code, err := c.SetMode(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, CodeOK, code)

	code, err = c.SetState(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 9, code)
}

func TestUnsendablePath(t *testing.T) {
	c, sim := dialSim(t)

	code, err := c.RunMotionFile(context.Background(), "my file:1.nc", 1000)
	assert.Error(t, err)
	assert.Equal(t, CodeRejected, code)
	assert.Empty(t, sim.Commands())
}

func TestEventsReachCallbacks(t *testing.T) {
	c, sim := dialSim(t)

	got := make(chan Event, 4)
	c.Register(EventError, func(ev Event) { got <- ev })
	c.Register(EventState, func(ev Event) { got <- ev })

	sim.Push("ERROR", "22", "0")
	select {
	case ev := <-got:
		assert.Equal(t, EventError, ev.Kind)
		assert.Equal(t, 22, ev.ErrorCode)
	case <-time.After(time.Second):
		t.Fatal("no error event")
	}
	assert.Equal(t, 22, c.ErrorCode())

	_, err := c.EmergencyStop(context.Background())
	require.NoError(t, err)
	select {
	case ev := <-got:
		assert.Equal(t, EventState, ev.Kind)
		assert.Equal(t, StateStopped, ev.State)
	case <-time.After(time.Second):
		t.Fatal("no state event")
	}

	_, err = c.ClearErrors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, c.ErrorCode())
}

func TestLinkDropEmitsDisconnect(t *testing.T) {
	c, sim := dialSim(t)

	got := make(chan Event, 4)
	c.Register(EventConn, func(ev Event) { got <- ev })

	sim.Drop()

	select {
	case ev := <-got:
		assert.False(t, ev.Connected)
	case <-time.After(2 * time.Second):
		t.Fatal("no disconnect event")
	}
	select {
	case ev := <-got:
		assert.True(t, ev.Connected)
	case <-time.After(3 * time.Second):
		t.Fatal("no reconnect event")
	}
}

func TestEmergencyStopDuringWaitedMotion(t *testing.T) {
	c, sim := dialSim(t)
	release := sim.Hold("POSE")
	defer release()

	moved := make(chan int, 1)
	go func() {
		code, _ := c.SetPosition(context.Background(), Pose{238.3, 226.4, 355, -179.8, -0.5, -46.3}, Motion{Speed: 100, Acc: 2000, Wait: true})
		moved <- code
	}()
	require.Eventually(t, func() bool { return len(sim.Commands()) == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	code, err := c.EmergencyStop(ctx)
	require.NoError(t, err)
	assert.Equal(t, CodeOK, code)

	cmds := sim.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, "STOP:EMERGENCY", cmds[1].String())

	select {
	case <-moved:
		t.Fatal("motion answered before the bridge released it")
	default:
	}

	release()
	select {
	case code := <-moved:
		assert.Equal(t, CodeOK, code)
	case <-time.After(time.Second):
		t.Fatal("motion never answered")
	}
}
