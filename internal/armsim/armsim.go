// Package armsim is an in-process arm bridge. It speaks the same frames as the
// hardware bridge and answers every command with success unless told
// otherwise.
package armsim

import (
	"fmt"
	log "log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	ws "github.com/gorilla/websocket"

	"scribe/pkg/protocol"
)

const DefaultShard = "XARM"

type Command struct {
	Verb string
	Noun string
	Args []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Verb, c.Noun}, c.Args...), ":")
}

type Sim struct {
	Shard   string
	Version [3]int

	upgrader ws.Upgrader

	mu       sync.Mutex
	conns    map[*ws.Conn]*sync.Mutex
	commands []Command
	failAt   int
	failCode int
	state    int
	held     map[string]chan struct{}
}

func New() *Sim {
	return &Sim{
		Shard:   DefaultShard,
		Version: [3]int{1, 11, 6},
		conns:   make(map[*ws.Conn]*sync.Mutex),
		held:    make(map[string]chan struct{}),
	}
}

// Hold delays the replies to commands with noun until the returned release
// is called. Other commands are answered meanwhile, like a bridge busy with
// a long motion.
func (s *Sim) Hold(noun string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.held[noun] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.held[noun] == ch {
				delete(s.held, noun)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// FailAt makes the n-th command (1-based, version queries excluded) answer
// with code. n <= 0 disables injection.
func (s *Sim) FailAt(n, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAt = n
	s.failCode = code
}

// Commands returns every command received so far, version queries excluded.
func (s *Sim) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.commands...)
}

func (s *Sim) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = nil
	s.failAt = 0
	s.state = 0
}

// Push broadcasts an event frame to every connected client.
func (s *Sim) Push(noun string, args ...string) {
	msg := &protocol.Message{To: "ALL", Verb: protocol.VerbEvent, Noun: noun, Args: args, From: s.Shard}
	s.broadcast(msg.String())
}

// Drop closes every client connection without a close frame.
func (s *Sim) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
		delete(s.conns, c)
	}
}

func (s *Sim) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("Failed to upgrade", "err", err)
		return
	}
	wmu := &sync.Mutex{}
	s.mu.Lock()
	s.conns[conn] = wmu
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.Parse(string(data))
		if err != nil {
			log.Warn("Sim got malformed frame", "msg", string(data), "err", err)
			continue
		}
		if msg.To != s.Shard {
			continue
		}

		resp, events := s.handle(msg)

		s.mu.Lock()
		hold := s.held[msg.Noun]
		s.mu.Unlock()
		if hold != nil {
			go func() {
				<-hold
				s.answer(conn, wmu, resp, events)
			}()
			continue
		}
		if err := s.answer(conn, wmu, resp, events); err != nil {
			return
		}
	}
}

func (s *Sim) answer(conn *ws.Conn, wmu *sync.Mutex, resp *protocol.Message, events []string) error {
	wmu.Lock()
	err := conn.WriteMessage(ws.TextMessage, []byte(resp.String()))
	wmu.Unlock()
	if err != nil {
		return err
	}
	for _, ev := range events {
		s.broadcast(ev)
	}
	return nil
}

func (s *Sim) handle(msg *protocol.Message) (*protocol.Message, []string) {
	resp := msg.Reply(s.Shard)

	if msg.Verb == "GET" && msg.Noun == "VERSION" {
		resp.Ok("VERSION", strconv.Itoa(s.Version[0]), strconv.Itoa(s.Version[1]), strconv.Itoa(s.Version[2]))
		return resp, nil
	}

	s.mu.Lock()
	s.commands = append(s.commands, Command{Verb: msg.Verb, Noun: msg.Noun, Args: msg.Args})
	n := len(s.commands)
	fail := s.failAt > 0 && n == s.failAt
	code := s.failCode
	s.mu.Unlock()

	if fail {
		log.Debug("Sim injecting failure", "n", n, "code", code)
		resp.Error(msg.Noun, strconv.Itoa(code))
		return resp, nil
	}

	var events []string
	switch {
	case msg.Verb == "STOP" && msg.Noun == "EMERGENCY":
		events = append(events, s.stateEvent(StateStopped))
	case msg.Verb == "SET" && msg.Noun == "STATE" && len(msg.Args) == 1:
		if st, err := strconv.Atoi(msg.Args[0]); err == nil {
			events = append(events, s.stateEvent(st))
		}
	}

	resp.Ok(msg.Noun, "0")
	return resp, events
}

// StateStopped mirrors the firmware's stopped state.
const StateStopped = 4

func (s *Sim) stateEvent(st int) string {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	ev := &protocol.Message{To: "ALL", Verb: protocol.VerbEvent, Noun: "STATE", Args: []string{strconv.Itoa(st)}, From: s.Shard}
	return ev.String()
}

// State returns the last state set through SET:STATE or an emergency stop.
func (s *Sim) State() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sim) broadcast(frame string) {
	s.mu.Lock()
	targets := make(map[*ws.Conn]*sync.Mutex, len(s.conns))
	for c, m := range s.conns {
		targets[c] = m
	}
	s.mu.Unlock()

	for c, m := range targets {
		m.Lock()
		if err := c.WriteMessage(ws.TextMessage, []byte(frame)); err != nil {
			log.Debug("Sim broadcast failed", "err", err)
		}
		m.Unlock()
	}
}

func (s *Sim) String() string {
	return fmt.Sprintf("armsim(%s v%d.%d.%d)", s.Shard, s.Version[0], s.Version[1], s.Version[2])
}
