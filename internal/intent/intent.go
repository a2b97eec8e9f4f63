package intent

import (
	"fmt"
	"strings"
)

type Kind int

const (
	Write Kind = iota
	Erase
	Paint
	Reset
	Quit
	Chat
)

var kindNames = map[Kind]string{
	Write: "write",
	Erase: "erase",
	Paint: "paint",
	Reset: "reset",
	Quit:  "quit",
	Chat:  "chat",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Moves reports whether the kind drives the arm through a choreography.
func (k Kind) Moves() bool {
	return k == Write || k == Erase || k == Paint
}

func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown intent kind %q", s)
}

// Intent is produced per utterance and consumed immediately.
type Intent struct {
	Kind Kind
	// Text is the payload of a Write.
	Text string
	// Reply is what gets spoken back, for Chat it is the whole answer.
	Reply string
}

func (i Intent) String() string {
	switch i.Kind {
	case Write:
		return fmt.Sprintf("write(%q)", i.Text)
	case Chat:
		return fmt.Sprintf("chat(%q)", i.Reply)
	default:
		return i.Kind.String()
	}
}
