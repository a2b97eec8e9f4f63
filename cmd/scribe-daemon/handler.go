package main

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"

	"scribe/internal/dispatch"
	"scribe/internal/intent"
	"scribe/internal/ipc"
	"scribe/internal/nlu"
)

type daemon struct {
	disp  *dispatch.Dispatcher
	cls   *nlu.Classifier
	voice *voice
}

var direct = map[string]intent.Kind{
	ipc.CmdWrite: intent.Write,
	ipc.CmdErase: intent.Erase,
	ipc.CmdPaint: intent.Paint,
	ipc.CmdReset: intent.Reset,
	ipc.CmdQuit:  intent.Quit,
}

func (d *daemon) handle(ctx context.Context, msg ipc.ControlMessage) ipc.Reply {
	if kind, ok := direct[msg.Cmd]; ok {
		return d.submit(ctx, intent.Intent{Kind: kind, Text: msg.Text})
	}

	switch msg.Cmd {
	case ipc.CmdTrigger:
		if d.voice == nil {
			return ipc.Fail(errors.New("voice is disabled"))
		}
		text, err := d.voice.listen(ctx)
		if err != nil {
			log.Error("Failed to listen", "err", err)
			return ipc.Fail(err)
		}
		return d.say(ctx, text)
	case ipc.CmdSay:
		return d.say(ctx, msg.Text)
	case ipc.CmdStop:
		if err := d.disp.EmergencyStop(ctx); err != nil {
			return ipc.Fail(err)
		}
		return ipc.Reply{Ok: true}
	case ipc.CmdStatus:
		return ipc.Reply{Ok: true, Status: status(d.disp.Status())}
	case ipc.CmdRenew:
		if err := d.disp.SubmitRenew(ctx); err != nil {
			return ipc.Fail(err)
		}
		return ipc.Reply{Ok: true, Status: status(d.disp.Status())}
	}

	log.Warn("Unknown command", "cmd", msg.Cmd)
	return ipc.Fail(fmt.Errorf("unknown command %q", msg.Cmd))
}

// say classifies free text and dispatches the result.
func (d *daemon) say(ctx context.Context, text string) ipc.Reply {
	in, err := d.cls.Classify(ctx, text)
	if err != nil {
		return ipc.Fail(err)
	}
	return d.submit(ctx, in)
}

func (d *daemon) submit(ctx context.Context, in intent.Intent) ipc.Reply {
	out, err := d.disp.Submit(ctx, in)
	r := ipc.Reply{
		Ok:      err == nil,
		Intent:  in.Kind.String(),
		Paths:   out.Paths,
		Skipped: string(out.Skipped),
		Full:    out.Full,
	}
	if err != nil {
		log.Error("Failed to dispatch", "intent", in, "err", err)
		r.Error = err.Error()
	}
	return r
}

func status(st dispatch.Status) *ipc.Status {
	return &ipc.Status{
		Session:  st.Session.String(),
		Quit:     st.Quit,
		Reason:   st.Reason,
		Row:      st.Cursor.X,
		Col:      st.Cursor.Y,
		Full:     st.Full,
		Attached: st.Attached,
		Busy:     st.Busy,
	}
}
