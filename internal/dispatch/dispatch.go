// Package dispatch turns intents into choreographies. All motion goes
// through a single worker so that at most one choreography runs at a time.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scribe/internal/arm"
	"scribe/internal/choreo"
	"scribe/internal/intent"
	"scribe/internal/lettering"
	"scribe/internal/session"
	"scribe/pkg/gcode"
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrNoCamera       = errors.New("painting is not available")
	ErrStopped        = errors.New("dispatcher stopped")
	ErrNothingToWrite = errors.New("nothing to write")
)

const queueSize = 8

type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Sketcher captures a frame and writes it as a motion file to out.
type Sketcher interface {
	Sketch(ctx context.Context, out string) (gcode.Program, error)
}

type Outcome struct {
	Intent  intent.Intent
	Session uuid.UUID
	Paths   []string
	Skipped []rune
	Full    bool
}

type Status struct {
	Session  uuid.UUID
	Quit     bool
	Reason   string
	Cursor   session.Cursor
	Full     bool
	Attached bool
	Busy     string
}

type job struct {
	ctx  context.Context
	run  func(ctx context.Context) (Outcome, error)
	done chan result
}

type result struct {
	out Outcome
	err error
}

type Dispatcher struct {
	Player   *choreo.Player
	Catalog  *choreo.Catalog
	Writer   *lettering.Writer
	Sketcher Sketcher
	Speaker  Speaker
	// PaintFile is where Paint writes the motion file, as the bridge sees it.
	PaintFile string
	// Settle is the pause after the startup sequence.
	Settle time.Duration

	mu   sync.Mutex
	sess *session.Session
	busy string

	jobs     chan job
	quit     chan struct{}
	quitOnce sync.Once
}

func New(p *choreo.Player, s *session.Session) *Dispatcher {
	cat := choreo.DefaultCatalog()
	return &Dispatcher{
		Player:    p,
		Catalog:   cat,
		Writer:    lettering.NewWriter(p, cat),
		PaintFile: choreo.PaintFile,
		Settle:    time.Second,
		sess:      s,
		jobs:      make(chan job, queueSize),
		quit:      make(chan struct{}),
	}
}

func (d *Dispatcher) Session() *session.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sess
}

// Done is closed once a Quit intent has been handled.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.quit
}

// Start readies the arm and attaches the session callbacks: clear errors,
// enable motion, position mode, ready state.
func (d *Dispatcher) Start(ctx context.Context) error {
	drv := d.Player.Driver()
	s := d.Session()

	steps := []struct {
		name string
		call func() (int, error)
	}{
		{"clear errors", func() (int, error) { return drv.ClearErrors(ctx) }},
		{"enable motion", func() (int, error) { return drv.EnableMotion(ctx, true) }},
		{"set mode", func() (int, error) { return drv.SetMode(ctx, 0) }},
		{"set state", func() (int, error) { return drv.SetState(ctx, 0) }},
	}
	for _, st := range steps {
		code, err := st.call()
		if err != nil {
			return fmt.Errorf("%s: %w", st.name, err)
		}
		if code != arm.CodeOK {
			return fmt.Errorf("%s: code %d", st.name, code)
		}
	}
	if code := drv.ErrorCode(); code != arm.CodeOK {
		return fmt.Errorf("arm reports error code %d", code)
	}

	s.Attach(drv)
	log.Info("Arm ready", "session", s.ID, "firmware", drv.Version().String())

	if d.Settle > 0 {
		return choreo.Sleep(ctx, d.Settle)
	}
	return nil
}

// Renew replaces a closed session with a fresh one and runs Start again.
func (d *Dispatcher) Renew(ctx context.Context) error {
	old := d.Session()
	old.Detach()

	s := session.New(old.Settings)
	s.MinFirmware = old.MinFirmware

	d.mu.Lock()
	d.sess = s
	d.mu.Unlock()

	log.Info("Session renewed", "old", old.ID, "session", s.ID)
	return d.Start(ctx)
}

// Status applies queued arm events before reporting, so a fault shows up
// without waiting for the next motion.
func (d *Dispatcher) Status() Status {
	s := d.Session()
	quit := s.Drain()
	d.mu.Lock()
	busy := d.busy
	d.mu.Unlock()
	return Status{
		Session:  s.ID,
		Quit:     quit,
		Reason:   s.QuitReason(),
		Cursor:   s.Cursor(),
		Full:     s.Full(),
		Attached: s.Attached(),
		Busy:     busy,
	}
}

// EmergencyStop halts the arm at once, without waiting for the running
// choreography, and latches quit.
func (d *Dispatcher) EmergencyStop(ctx context.Context) error {
	s := d.Session()
	s.Latch("emergency stop")
	code, err := d.Player.Driver().EmergencyStop(ctx)
	if err != nil {
		return fmt.Errorf("emergency stop: %w", err)
	}
	if code != arm.CodeOK {
		return fmt.Errorf("emergency stop: code %d", code)
	}
	return nil
}

// Dispatch runs in on the calling goroutine. Serve and Submit are
// the serialised path.
func (d *Dispatcher) Dispatch(ctx context.Context, in intent.Intent) (Outcome, error) {
	s := d.Session()
	out := Outcome{Intent: in, Session: s.ID}

	if in.Kind.Moves() || in.Kind == intent.Reset {
		if s.Drain() {
			return out, fmt.Errorf("%w: %s", ErrSessionClosed, s.QuitReason())
		}
		if !s.Attached() {
			s.Attach(d.Player.Driver())
		}
	}

	log.Info("Dispatching", "intent", in, "session", s.ID)
	switch in.Kind {
	case intent.Write:
		return d.write(ctx, s, in, out)
	case intent.Erase:
		return out, d.erase(ctx, s, in.Reply)
	case intent.Paint:
		return out, d.paint(ctx, s, in.Reply)
	case intent.Reset:
		d.say(ctx, in.Reply, "Going home.")
		err := d.Player.Run(ctx, d.Catalog.Reset(), s)
		s.Detach()
		return out, err
	case intent.Quit:
		return out, d.stop(ctx, s, in.Reply)
	case intent.Chat:
		d.say(ctx, in.Reply, "")
		return out, nil
	}
	return out, fmt.Errorf("unhandled intent %s", in.Kind)
}

func (d *Dispatcher) write(ctx context.Context, s *session.Session, in intent.Intent, out Outcome) (Outcome, error) {
	if strings.TrimSpace(in.Text) == "" {
		return out, ErrNothingToWrite
	}
	if s.Full() {
		if err := d.erase(ctx, s, "The board is full, erasing first."); err != nil {
			return out, err
		}
	}

	d.say(ctx, in.Reply, "Start writing!")
	res, err := d.Writer.Write(ctx, s, in.Text)
	out.Paths, out.Skipped, out.Full = res.Paths, res.Skipped, res.Full
	if err != nil {
		return out, err
	}
	if res.Full {
		d.say(ctx, "", "The board is full.")
	}
	return out, nil
}

func (d *Dispatcher) erase(ctx context.Context, s *session.Session, reply string) error {
	d.say(ctx, reply, "Start erasing!")
	if err := d.Player.Run(ctx, d.Catalog.Erase(), s); err != nil {
		return err
	}
	s.ClearBoard()
	return nil
}

func (d *Dispatcher) paint(ctx context.Context, s *session.Session, reply string) error {
	if d.Sketcher == nil {
		return ErrNoCamera
	}
	d.say(ctx, reply, "Cheese!")
	if _, err := d.Sketcher.Sketch(ctx, d.PaintFile); err != nil {
		return fmt.Errorf("paint: %w", err)
	}
	return d.Player.Run(ctx, d.Catalog.Paint(d.PaintFile), s)
}

// stop re-homes the arm if it still can, releases the callbacks and latches
// quit for good.
func (d *Dispatcher) stop(ctx context.Context, s *session.Session, reply string) error {
	var err error
	if !s.Drain() {
		if !s.Attached() {
			s.Attach(d.Player.Driver())
		}
		err = d.Player.Run(ctx, d.Catalog.Reset(), s)
	}
	s.Detach()
	s.Latch("quit requested")
	d.say(ctx, reply, "Bye!")
	d.quitOnce.Do(func() { close(d.quit) })
	return err
}

func (d *Dispatcher) say(ctx context.Context, reply, fallback string) {
	text := reply
	if text == "" {
		text = fallback
	}
	if text == "" || d.Speaker == nil {
		return
	}
	if err := d.Speaker.Speak(ctx, text); err != nil {
		log.Warn("Failed to voice out", "err", err)
	}
}

// Serve runs queued jobs one by one until ctx is done.
func (d *Dispatcher) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j := <-d.jobs:
			out, err := j.run(j.ctx)
			d.setBusy("")
			j.done <- result{out: out, err: err}
		}
	}
}

// Submit queues in for the worker and waits for its outcome.
func (d *Dispatcher) Submit(ctx context.Context, in intent.Intent) (Outcome, error) {
	return d.submit(ctx, in.String(), func(ctx context.Context) (Outcome, error) {
		return d.Dispatch(ctx, in)
	})
}

// SubmitRenew queues a session renewal behind any running choreography.
func (d *Dispatcher) SubmitRenew(ctx context.Context) error {
	_, err := d.submit(ctx, "renew", func(ctx context.Context) (Outcome, error) {
		err := d.Renew(ctx)
		return Outcome{Session: d.Session().ID}, err
	})
	return err
}

func (d *Dispatcher) submit(ctx context.Context, name string, run func(context.Context) (Outcome, error)) (Outcome, error) {
	j := job{
		ctx: ctx,
		run: func(ctx context.Context) (Outcome, error) {
			d.setBusy(name)
			return run(ctx)
		},
		done: make(chan result, 1),
	}
	select {
	case d.jobs <- j:
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case <-d.quit:
		return Outcome{}, ErrStopped
	}

	select {
	case r := <-j.done:
		return r.out, r.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (d *Dispatcher) setBusy(name string) {
	d.mu.Lock()
	d.busy = name
	d.mu.Unlock()
}
