package ipc

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h Handler) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "s.sock")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, path, h) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	require.Eventually(t, func() bool {
		_, err := SendCommand(context.Background(), path, ControlMessage{Cmd: "ping"})
		return err == nil
	}, time.Second, 10*time.Millisecond)
	return path
}

func TestRoundTrip(t *testing.T) {
	path := serve(t, func(ctx context.Context, msg ControlMessage) Reply {
		switch msg.Cmd {
		case CmdWrite:
			return Reply{Ok: true, Intent: "write", Paths: []string{"assets/gcode/Letters/" + msg.Text + ".nc"}}
		case CmdStatus:
			return Reply{Ok: true, Status: &Status{Session: "abc", Row: 1, Col: 4}}
		case "ping":
			return Reply{Ok: true}
		}
		return Fail(errors.New("unknown command"))
	})

	r, err := SendCommand(context.Background(), path, ControlMessage{Cmd: CmdWrite, Text: "A"})
	require.NoError(t, err)
	assert.True(t, r.Ok)
	assert.Equal(t, []string{"assets/gcode/Letters/A.nc"}, r.Paths)

	r, err = SendCommand(context.Background(), path, ControlMessage{Cmd: CmdStatus})
	require.NoError(t, err)
	require.NotNil(t, r.Status)
	assert.Equal(t, Status{Session: "abc", Row: 1, Col: 4}, *r.Status)

	r, err = SendCommand(context.Background(), path, ControlMessage{Cmd: "dance"})
	require.NoError(t, err)
	assert.False(t, r.Ok)
	assert.Equal(t, "unknown command", r.Error)
}

func TestSendTimesOut(t *testing.T) {
	release := make(chan struct{})
	path := serve(t, func(ctx context.Context, msg ControlMessage) Reply {
		if msg.Cmd == CmdWrite {
			<-release
		}
		return Reply{Ok: true}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := SendCommand(ctx, path, ControlMessage{Cmd: CmdWrite, Text: "A"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNoDaemon(t *testing.T) {
	_, err := SendCommand(context.Background(), filepath.Join(t.TempDir(), "none.sock"), ControlMessage{Cmd: CmdStatus})
	assert.Error(t, err)
}
