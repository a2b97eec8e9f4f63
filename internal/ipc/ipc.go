// Package ipc carries control requests from scribe-ctl to the daemon as one
// JSON request and one JSON reply per unix socket connection.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
)

const SocketPath = "/tmp/scribe.sock"

const (
	CmdTrigger = "trigger"
	CmdSay     = "say"
	CmdWrite   = "write"
	CmdErase   = "erase"
	CmdPaint   = "paint"
	CmdReset   = "reset"
	CmdQuit    = "quit"
	CmdStop    = "stop"
	CmdStatus  = "status"
	CmdRenew   = "renew"
)

type ControlMessage struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text,omitempty"`
}

type Status struct {
	Session  string `json:"session"`
	Quit     bool   `json:"quit"`
	Reason   string `json:"reason,omitempty"`
	Row      int    `json:"row"`
	Col      int    `json:"col"`
	Full     bool   `json:"full"`
	Attached bool   `json:"attached"`
	Busy     string `json:"busy,omitempty"`
}

type Reply struct {
	Ok      bool     `json:"ok"`
	Error   string   `json:"error,omitempty"`
	Intent  string   `json:"intent,omitempty"`
	Paths   []string `json:"paths,omitempty"`
	Skipped string   `json:"skipped,omitempty"`
	Full    bool     `json:"full,omitempty"`
	Status  *Status  `json:"status,omitempty"`
}

func Fail(err error) Reply {
	return Reply{Error: err.Error()}
}

type Handler func(ctx context.Context, msg ControlMessage) Reply

// Serve accepts connections on path until ctx is done. Each connection is
// handled on its own goroutine.
func Serve(ctx context.Context, path string, handler Handler) error {
	os.Remove(path)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", path)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer os.Remove(path)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Warn("Failed to accept", "err", err)
			continue
		}
		go handleConn(ctx, conn, handler)
	}
}

func handleConn(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		log.Warn("Bad control message", "err", err)
		return
	}
	log.Debug("Control message", "cmd", msg.Cmd)

	reply := handler(ctx, msg)
	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		log.Warn("Failed to reply", "cmd", msg.Cmd, "err", err)
	}
}

// SendCommand delivers msg and waits for the daemon's reply. Long commands
// such as write only reply once the arm is done.
func SendCommand(ctx context.Context, path string, msg ControlMessage) (Reply, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return Reply{}, fmt.Errorf("send %s: %w", msg.Cmd, err)
	}

	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		return Reply{}, fmt.Errorf("read reply: %w", err)
	}
	return reply, nil
}
