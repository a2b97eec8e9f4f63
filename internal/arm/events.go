package arm

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

type EventKind int

const (
	EventError EventKind = iota
	EventState
	EventConn
	EventCount
)

func (k EventKind) String() string {
	switch k {
	case EventError:
		return "error"
	case EventState:
		return "state"
	case EventConn:
		return "conn"
	case EventCount:
		return "count"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

type Event struct {
	Kind EventKind

	ErrorCode int
	WarnCode  int
	State     int
	Connected bool
	Reported  bool
	Count     int
}

// ParseEvent decodes the noun and args of an EVT frame.
func ParseEvent(noun string, args []string) (Event, error) {
	ints := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return Event{}, fmt.Errorf("event %s arg %d: %w", noun, i, err)
		}
		ints[i] = n
	}

	want := func(n int) error {
		if len(ints) != n {
			return fmt.Errorf("event %s: got %d args, want %d", noun, len(ints), n)
		}
		return nil
	}

	switch noun {
	case "ERROR":
		if err := want(2); err != nil {
			return Event{}, err
		}
		return Event{Kind: EventError, ErrorCode: ints[0], WarnCode: ints[1]}, nil
	case "STATE":
		if err := want(1); err != nil {
			return Event{}, err
		}
		return Event{Kind: EventState, State: ints[0]}, nil
	case "CONN":
		if err := want(2); err != nil {
			return Event{}, err
		}
		return Event{Kind: EventConn, Connected: ints[0] != 0, Reported: ints[1] != 0}, nil
	case "COUNT":
		if err := want(1); err != nil {
			return Event{}, err
		}
		return Event{Kind: EventCount, Count: ints[0]}, nil
	}
	return Event{}, fmt.Errorf("unknown event %q", noun)
}

type Callback func(Event)

type Handle uint64

type subscription struct {
	kind EventKind
	cb   Callback
}

// Callbacks is a registry of event handlers. Handlers are invoked outside the
// lock so they may release themselves.
type Callbacks struct {
	mu   sync.Mutex
	next Handle
	subs map[Handle]subscription
}

func (c *Callbacks) Register(kind EventKind, cb Callback) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs == nil {
		c.subs = make(map[Handle]subscription)
	}
	c.next++
	c.subs[c.next] = subscription{kind: kind, cb: cb}
	return c.next
}

func (c *Callbacks) Release(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, h)
}

func (c *Callbacks) ReleaseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = nil
}

func (c *Callbacks) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Emit calls every handler registered for ev.Kind in registration order.
func (c *Callbacks) Emit(ev Event) {
	c.mu.Lock()
	handles := make([]Handle, 0, len(c.subs))
	for h, s := range c.subs {
		if s.kind == ev.Kind {
			handles = append(handles, h)
		}
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	cbs := make([]Callback, len(handles))
	for i, h := range handles {
		cbs[i] = c.subs[h].cb
	}
	c.mu.Unlock()

	for _, cb := range cbs {
		cb(ev)
	}
}
