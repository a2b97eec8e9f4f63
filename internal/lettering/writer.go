package lettering

import (
	"context"
	"io/fs"
	log "log/slog"
	"path"
	"strings"
	"time"

	"scribe/internal/choreo"
	"scribe/internal/session"
)

type Writer struct {
	Player  *choreo.Player
	Catalog *choreo.Catalog
	// Root is the asset directory as the arm bridge sees it.
	Root string
	// Assets, when set, is checked for each motion file before it is run.
	// It is rooted at Root.
	Assets    fs.FS
	DwellUnit time.Duration
}

type Result struct {
	Paths   []string
	Skipped []rune
	Full    bool
}

func NewWriter(p *choreo.Player, cat *choreo.Catalog) *Writer {
	return &Writer{
		Player:    p,
		Catalog:   cat,
		Root:      DefaultRoot,
		DwellUnit: time.Second,
	}
}

// Write draws text on the board starting on a fresh row. The cursor in s
// advances after every character, spaces included. When the last row fills
// up s is marked full and the remaining lines are dropped.
func (w *Writer) Write(ctx context.Context, s *session.Session, text string) (Result, error) {
	var res Result

	lines := Wrap(strings.ToUpper(text), LineWidth)
	if len(lines) == 0 {
		return res, nil
	}
	if s.Full() {
		res.Full = true
		return res, nil
	}

	if c := s.Cursor(); c.Y != session.Origin.Y {
		if c.X >= MaxRow {
			s.SetFull(true)
			res.Full = true
			return res, nil
		}
		s.SetCursor(session.Cursor{X: c.X + 1, Y: session.Origin.Y})
	}

	prelude := choreo.Compose("write-prelude",
		w.Catalog.Must(choreo.ResetOffset),
		w.Catalog.Must(choreo.Home),
		w.Catalog.Must(choreo.GrabPen),
	)
	if err := w.Player.Run(ctx, prelude, s); err != nil {
		return res, err
	}

	for i, line := range lines {
		for _, r := range line {
			p, ok := w.resolve(r)
			if !ok && r != ' ' {
				log.Warn("No motion file for character, skipping", "char", string(r))
				res.Skipped = append(res.Skipped, r)
			}
			if err := w.Player.Run(ctx, w.letter(s.Cursor(), r, p), s); err != nil {
				return res, err
			}
			if p != "" {
				res.Paths = append(res.Paths, p)
			}
			c := s.Cursor()
			c.Y++
			s.SetCursor(c)
		}

		c := s.Cursor()
		if c.X >= MaxRow {
			log.Info("Whiteboard is full", "session", s.ID, "dropped", len(lines)-i-1)
			s.SetFull(true)
			res.Full = true
			break
		}
		if i < len(lines)-1 {
			s.SetCursor(session.Cursor{X: c.X + 1, Y: session.Origin.Y})
		}
	}

	outro := choreo.Compose("write-outro",
		w.Catalog.Must(choreo.PutBackPen),
		w.Catalog.Must(choreo.Home),
	)
	return res, w.Player.Run(ctx, outro, s)
}

func (w *Writer) resolve(r rune) (string, bool) {
	p, ok := AssetPath(w.Root, r)
	if !ok {
		return "", false
	}
	if w.Assets != nil {
		rel := strings.TrimPrefix(p, path.Clean(w.Root)+"/")
		if _, err := fs.Stat(w.Assets, rel); err != nil {
			return "", false
		}
	}
	return p, true
}

// letter moves the pen over cell c and draws the motion file at p, if any.
func (w *Writer) letter(c session.Cursor, r rune, p string) choreo.Choreography {
	ch := choreo.Compose("letter "+string(r),
		choreo.GridOffset(c.X, c.Y),
		choreo.New("", choreo.MovePose{Pose: choreo.LetterOrigin}),
	)
	if p == "" {
		return ch
	}
	return choreo.Compose(ch.Name, ch, choreo.New("",
		choreo.RunFile{Path: p},
		choreo.Dwell{D: time.Duration(DwellUnits(r)) * w.DwellUnit},
	))
}
