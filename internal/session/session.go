// Package session holds the state one program run accumulates: the sticky
// quit latch, the writing grid cursor and the motion settings.
package session

import (
	"fmt"
	log "log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"scribe/internal/arm"
)

const queueSize = 64

type Settings struct {
	// Cartesian moves
	Speed float64
	Acc   float64
	// joint moves
	AngleSpeed float64
	AngleAcc   float64
}

func DefaultSettings() Settings {
	return Settings{Speed: 100, Acc: 2000, AngleSpeed: 20, AngleAcc: 500}
}

// Cursor is the writing grid position. X counts rows, Y counts characters.
type Cursor struct {
	X, Y int
}

// Origin is the top-left cell of the board. Cells run from (0,-2) to (3,10).
var Origin = Cursor{X: 0, Y: -2}

type Session struct {
	ID       uuid.UUID
	Settings Settings
	// MinFirmware gates the stopped-state latch.
	MinFirmware arm.Version

	quit   atomic.Bool
	events chan arm.Event

	mu     sync.Mutex
	reason string
	cursor Cursor
	full   bool
	drv    arm.Driver
	fw     arm.Version
}

func New(settings Settings) *Session {
	return &Session{
		ID:          uuid.New(),
		Settings:    settings,
		MinFirmware: arm.Version{Major: 1, Minor: 1, Patch: 1},
		events:      make(chan arm.Event, queueSize),
		cursor:      Origin,
	}
}

func (s *Session) Quit() bool {
	return s.quit.Load()
}

// Latch sets the quit flag. Only the first reason is kept.
func (s *Session) Latch(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quit.Swap(true) {
		return
	}
	s.reason = reason
	log.Warn("Session latched quit", "session", s.ID, "reason", reason)
}

func (s *Session) QuitReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) Cursor() Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Session) SetCursor(c Cursor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = c
}

func (s *Session) Full() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.full
}

func (s *Session) SetFull(full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.full = full
}

// ClearBoard resets the cursor to the origin and drops the full flag.
func (s *Session) ClearBoard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = Origin
	s.full = false
}

// Attach registers the status handlers on d. A session drives a single arm,
// attaching to another driver detaches from the first.
func (s *Session) Attach(d arm.Driver) {
	s.Detach()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.drv = d
	s.fw = d.Version()

	var self atomic.Uint64
	errHandle := d.Register(arm.EventError, func(ev arm.Event) {
		if ev.WarnCode != 0 {
			log.Warn("Arm warning", "session", s.ID, "code", ev.WarnCode)
		}
		if ev.ErrorCode != 0 {
			s.offer(ev)
			d.Release(arm.Handle(self.Load()))
		}
	})
	self.Store(uint64(errHandle))
	d.Register(arm.EventState, s.offer)
	d.Register(arm.EventConn, s.offer)
	d.Register(arm.EventCount, func(ev arm.Event) {
		log.Info("Arm count changed", "session", s.ID, "count", ev.Count)
	})
	log.Debug("Session attached", "session", s.ID, "firmware", s.fw.String())
}

func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drv != nil
}

// Detach releases every callback registered on the attached driver.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drv == nil {
		return
	}
	s.drv.ReleaseAll()
	s.drv = nil
	log.Debug("Session detached", "session", s.ID)
}

// offer queues ev for the next Drain. It never blocks: when the queue is full
// a fatal event latches at once and anything else is dropped.
func (s *Session) offer(ev arm.Event) {
	select {
	case s.events <- ev:
	default:
		if reason, fatal := s.classify(ev); fatal {
			s.Latch(reason)
			return
		}
		log.Debug("Session queue full, dropping event", "session", s.ID, "kind", ev.Kind.String())
	}
}

// Drain applies every queued event and reports whether quit is latched.
func (s *Session) Drain() bool {
	for {
		select {
		case ev := <-s.events:
			if reason, fatal := s.classify(ev); fatal {
				s.Latch(reason)
			} else {
				log.Debug("Arm status", "session", s.ID, "kind", ev.Kind.String(), "state", ev.State)
			}
		default:
			return s.Quit()
		}
	}
}

func (s *Session) classify(ev arm.Event) (string, bool) {
	switch ev.Kind {
	case arm.EventError:
		if ev.ErrorCode != 0 {
			return fmt.Sprintf("arm error %d", ev.ErrorCode), true
		}
	case arm.EventState:
		if ev.State == arm.StateStopped && s.firmware().AtLeast(s.MinFirmware) {
			return "arm stopped", true
		}
	case arm.EventConn:
		if !ev.Connected {
			return "arm disconnected", true
		}
	}
	return "", false
}

func (s *Session) firmware() arm.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fw
}
