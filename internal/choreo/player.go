package choreo

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"time"

	"scribe/internal/arm"
	"scribe/internal/session"
)

type Reason int

const (
	// ReasonQuit: the session latched quit before the step.
	ReasonQuit Reason = iota
	// ReasonArmError: the driver held a nonzero error code before the step.
	ReasonArmError
	// ReasonCommand: the step itself returned a nonzero code.
	ReasonCommand
	// ReasonTransport: the step could not be delivered or answered.
	ReasonTransport
	ReasonCanceled
)

func (r Reason) String() string {
	switch r {
	case ReasonQuit:
		return "quit"
	case ReasonArmError:
		return "arm-error"
	case ReasonCommand:
		return "command"
	case ReasonTransport:
		return "transport"
	case ReasonCanceled:
		return "canceled"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Fault reports where a choreography stopped.
type Fault struct {
	Choreography string
	Step         int
	Code         int
	Reason       Reason
	Cause        error
}

func (f *Fault) Error() string {
	msg := fmt.Sprintf("%s aborted at step %d: %s", f.Choreography, f.Step, f.Reason)
	if f.Code != arm.CodeOK {
		msg += fmt.Sprintf(" (code %d)", f.Code)
	}
	if f.Cause != nil {
		msg += ": " + f.Cause.Error()
	}
	return msg
}

func (f *Fault) Unwrap() error {
	return f.Cause
}

type Player struct {
	driver arm.Driver
	sleep  func(context.Context, time.Duration) error
}

func NewPlayer(d arm.Driver) *Player {
	return &Player{driver: d, sleep: Sleep}
}

// WithSleep replaces the function used by dwell steps.
func (p *Player) WithSleep(f func(context.Context, time.Duration) error) *Player {
	p.sleep = f
	return p
}

func (p *Player) Driver() arm.Driver {
	return p.driver
}

// Run executes c step by step. Queued arm events are applied before every
// step; a latched quit, a held error code or any nonzero step code stops the
// run and is returned as a *Fault. Faults other than a cancelled ctx latch
// quit on s.
func (p *Player) Run(ctx context.Context, c Choreography, s *session.Session) error {
	env := Env{Driver: p.driver, Settings: s.Settings, Sleep: p.sleep}

	log.Debug("Playing choreography", "name", c.Name, "steps", len(c.Steps), "session", s.ID)
	for i, step := range c.Steps {
		if s.Drain() {
			return &Fault{Choreography: c.Name, Step: i, Reason: ReasonQuit, Cause: errors.New(s.QuitReason())}
		}
		if code := p.driver.ErrorCode(); code != arm.CodeOK {
			s.Latch(fmt.Sprintf("arm error %d", code))
			return &Fault{Choreography: c.Name, Step: i, Code: code, Reason: ReasonArmError}
		}

		code, err := step.Apply(ctx, env)
		if err != nil {
			if ctx.Err() != nil {
				return &Fault{Choreography: c.Name, Step: i, Reason: ReasonCanceled, Cause: err}
			}
			s.Latch(fmt.Sprintf("%s: %v", step, err))
			return &Fault{Choreography: c.Name, Step: i, Code: code, Reason: ReasonTransport, Cause: err}
		}
		if code != arm.CodeOK {
			s.Latch(fmt.Sprintf("%s returned %d", step, code))
			return &Fault{Choreography: c.Name, Step: i, Code: code, Reason: ReasonCommand}
		}
	}
	return nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
