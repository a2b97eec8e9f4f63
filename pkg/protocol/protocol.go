package protocol

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"regexp"
	"strings"
	"sync"
)

var (
	ErrClosed   = errors.New("protocol closed")
	ErrLinkDown = errors.New("link dropped while waiting for reply")
	ErrInFlight = errors.New("request with this noun already in flight")
)

const (
	VerbOk    = "OK"
	VerbErr   = "ERR"
	VerbEvent = "EVT"
)

type PtclConfig struct {
	Shard   string
	Url     string
	Reconn  uint
	EmitOut func(*Message)
	OnLink  func(up bool)
}

type Protocol struct {
	ws *WebSocket

	shard string

	waiterMu sync.Mutex
	waiters  map[string]chan *Message

	hookMu  sync.RWMutex
	emitOut func(*Message)
	onLink  func(bool)
}

func NewProtocol(ctx context.Context, cfg PtclConfig) (*Protocol, error) {
	ws, err := NewWebSocket(ctx, cfg.Url, cfg.Reconn)
	if err != nil {
		log.Error("Failed to init ws connection", "url", cfg.Url)
		return nil, err
	}

	ptcl := &Protocol{
		shard:   cfg.Shard,
		ws:      ws,
		waiters: make(map[string]chan *Message),
		emitOut: cfg.EmitOut,
		onLink:  cfg.OnLink,
	}

	return ptcl, nil
}

func (ptcl *Protocol) Shard() string {
	return ptcl.shard
}

func (ptcl *Protocol) EmitOut(f func(*Message)) {
	ptcl.hookMu.Lock()
	defer ptcl.hookMu.Unlock()
	ptcl.emitOut = f
}

func (ptcl *Protocol) OnLink(f func(up bool)) {
	ptcl.hookMu.Lock()
	defer ptcl.hookMu.Unlock()
	ptcl.onLink = f
}

// Request transmits v and blocks until the peer answers with an OK or ERR
// frame carrying the same noun, the link drops, or ctx is done. Requests
// with different nouns may be in flight together.
func (ptcl *Protocol) Request(ctx context.Context, v any) (*Message, error) {
	noun, err := nounOf(v)
	if err != nil {
		return nil, err
	}
	w, err := ptcl.installWaiter(noun)
	if err != nil {
		return nil, err
	}
	defer ptcl.clearWaiter(noun)

	if err := ptcl.Transmit(v); err != nil {
		return nil, err
	}

	select {
	case resp := <-w:
		if resp == nil {
			return nil, ErrLinkDown
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// nounOf finds the noun of an outgoing frame in any form Transmit accepts.
func nounOf(v any) (string, error) {
	var parts []string
	switch m := v.(type) {
	case Message:
		return strings.ToUpper(m.Noun), nil
	case *Message:
		return strings.ToUpper(m.Noun), nil
	case string:
		parts = strings.Split(m, ":")
	case []string:
		parts = m
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
	if len(parts) < 3 {
		return "", fmt.Errorf("request %q has no noun", strings.Join(parts, ":"))
	}
	return strings.ToUpper(parts[2]), nil
}

func (ptcl *Protocol) Transmit(v any) error {
	var msg string

	switch m := v.(type) {
	case Message:
		m.From = ptcl.shard
		msg = m.String()
	case *Message:
		c := *m
		c.From = ptcl.shard
		msg = c.String()
	case string:
		msg = fmt.Sprintf("%s:%s", m, ptcl.shard)
	case []string:
		pay := strings.Join(m, ":")
		msg = fmt.Sprintf("%s:%s", pay, ptcl.shard)
	default:
		log.Error("Provided unsupported type", "type", fmt.Sprintf("%T", v))
		return fmt.Errorf("unsupported type %T", v)
	}

	err := ptcl.ws.Write([]byte(msg))
	if err != nil {
		log.Error("Failed to transmit", "msg", msg, "err", err)
		return fmt.Errorf("transmit %q: %w", msg, err)
	}
	return nil
}

// Run reads frames until ctx is done, reconnecting whenever the link drops.
func (ptcl *Protocol) Run(ctx context.Context) error {
	for {
		in := ptcl.ws.Read()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if ptcl.ws.IsClosed() {
			ptcl.failWaiters()
			return ErrClosed
		}

		switch in.kind {
		case CONN_CLOSE, READ_FAILURE:
			if in.kind == READ_FAILURE {
				log.Error("Failed to read", "err", in.err)
			}
			ptcl.failWaiters()
			ptcl.link(false)

			log.Warn("Trying to reconnect on", "url", ptcl.ws.url)
			if err := ptcl.ws.TryReconn(ctx); err != nil {
				return err
			}
			log.Info("Successfully reconnected", "url", ptcl.ws.url)
			ptcl.link(true)

		case READ_OK:
			if !ptcl.checkRecipient(in.msg) {
				continue
			}

			msg, err := Parse(string(in.msg))
			if err != nil {
				log.Warn("Failed to parse", "msg", string(in.msg), "err", err)
				continue
			}

			if msg.Verb != VerbEvent && ptcl.deliver(msg) {
				continue
			}
			ptcl.hookMu.RLock()
			emit := ptcl.emitOut
			ptcl.hookMu.RUnlock()
			if emit != nil {
				emit(msg)
			}
		}
	}
}

func (ptcl *Protocol) Close() error {
	return ptcl.ws.Close()
}

func (ptcl *Protocol) link(up bool) {
	ptcl.hookMu.RLock()
	f := ptcl.onLink
	ptcl.hookMu.RUnlock()
	if f != nil {
		f(up)
	}
}

func (ptcl *Protocol) installWaiter(noun string) (chan *Message, error) {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	if _, ok := ptcl.waiters[noun]; ok {
		return nil, fmt.Errorf("%s: %w", noun, ErrInFlight)
	}
	w := make(chan *Message, 1)
	ptcl.waiters[noun] = w
	return w, nil
}

func (ptcl *Protocol) clearWaiter(noun string) {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	delete(ptcl.waiters, noun)
}

func (ptcl *Protocol) deliver(msg *Message) bool {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	w, ok := ptcl.waiters[msg.Noun]
	if !ok {
		return false
	}
	select {
	case w <- msg:
		return true
	default:
		return false
	}
}

func (ptcl *Protocol) failWaiters() {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	for _, w := range ptcl.waiters {
		select {
		case w <- nil:
		default:
		}
	}
}

func (ptcl *Protocol) checkRecipient(msg []byte) bool {
	to := strings.Split(string(msg), ":")[0]
	return to == ptcl.shard || to == "ALL"
}

// Parse decodes one TO:VERB:NOUN:ARGS...:FROM frame.
func Parse(line string) (*Message, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return nil, errors.New("empty message")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		// frames are single-line
		return nil, fmt.Errorf("invalid whitespace present")
	}
	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return nil, fmt.Errorf("too few fields: got %d, want >= 4", len(parts))
	}

	to := parts[0]
	verb := parts[1]
	noun := parts[2]
	from := parts[len(parts)-1]
	args := append([]string(nil), parts[3:len(parts)-1]...)

	if !isToken(to) && !isHexID(to) && to != "ALL" {
		return nil, fmt.Errorf("invalid TO token: %q", to)
	}
	if !isToken(from) && !isHexID(from) {
		return nil, fmt.Errorf("invalid FROM token: %q", from)
	}

	if !isToken(noun) || !isToken(verb) {
		return nil, fmt.Errorf("invalid NOUN/VERB: %q %q", noun, verb)
	}
	for i, a := range args {
		if !IsArg(a) {
			return nil, fmt.Errorf("invalid ARG[%d]: %q", i, a)
		}
	}

	msg := &Message{
		To:   to,
		Verb: strings.ToUpper(verb),
		Noun: strings.ToUpper(noun),
		Args: args,
		From: from,
	}
	return msg, nil
}

var (
	tokenRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	argRe   = regexp.MustCompile(`^[A-Za-z0-9_./-]+$`)
	hexIDRe = regexp.MustCompile(`^[0-9A-F]{2}$`)
)

func isToken(s string) bool {
	return tokenRe.MatchString(s)
}

// IsArg reports whether s can travel as a single argument field.
func IsArg(s string) bool {
	return argRe.MatchString(s)
}

func isHexID(s string) bool {
	return hexIDRe.MatchString(strings.ToUpper(s))
}

type Message struct {
	To   string
	Verb string
	Noun string
	Args []string
	From string
}

func (m *Message) String() string {
	parts := make([]string, 0, 4+len(m.Args))
	parts = append(parts, m.To)
	parts = append(parts, m.Verb)
	parts = append(parts, m.Noun)
	parts = append(parts, m.Args...)
	parts = append(parts, m.From)
	return strings.Join(parts, ":")
}

func (m *Message) Error(reason string, args ...string) {
	m.Verb = VerbErr
	m.Noun = reason
	m.Args = args
}

func (m *Message) Ok(reason string, args ...string) {
	m.Verb = VerbOk
	m.Noun = reason
	m.Args = args
}

// Reply builds the answer frame addressed back to the sender of m.
func (m *Message) Reply(from string) *Message {
	return &Message{To: m.From, Noun: m.Noun, From: from}
}
