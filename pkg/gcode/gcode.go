// Package gcode reads and writes the small G1 subset the arm executes from
// motion files.
package gcode

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Line is a single G1 move. Nil axes are omitted.
type Line struct {
	X, Y, Z *float64
	F       *float64
}

func F(v float64) *float64 { return &v }

// Lift is a Z-only move.
func Lift(z float64) Line {
	return Line{Z: F(z)}
}

// Move is a full X/Y/Z move at feed f.
func Move(x, y, z, f float64) Line {
	return Line{X: F(x), Y: F(y), Z: F(z), F: F(f)}
}

func (l Line) String() string {
	var b strings.Builder
	b.WriteString("G1")
	for _, ax := range []struct {
		name string
		v    *float64
	}{{"X", l.X}, {"Y", l.Y}, {"Z", l.Z}, {"F", l.F}} {
		if ax.v == nil {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(ax.name)
		b.WriteString(strconv.FormatFloat(*ax.v, 'f', -1, 64))
	}
	return b.String()
}

type Program []Line

// String joins the lines with newlines, without a trailing one.
func (p Program) String() string {
	lines := make([]string, len(p))
	for i, l := range p {
		lines[i] = l.String()
	}
	return strings.Join(lines, "\n")
}

func (p Program) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, p.String())
	return int64(n), err
}

// WriteFile writes p to path, creating parent directories.
func (p Program) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(p.String()), 0o644); err != nil {
		return fmt.Errorf("write motion file: %w", err)
	}
	return nil
}

// Parse reads G1 lines. Blank lines and ';' comments are skipped.
func Parse(r io.Reader) (Program, error) {
	var p Program
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		text := sc.Text()
		if i := strings.IndexByte(text, ';'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		if !strings.EqualFold(fields[0], "G1") {
			return nil, fmt.Errorf("line %d: unsupported command %q", n, fields[0])
		}
		var l Line
		for _, f := range fields[1:] {
			v, err := strconv.ParseFloat(f[1:], 64)
			if err != nil || len(f) < 2 {
				return nil, fmt.Errorf("line %d: bad word %q", n, f)
			}
			switch strings.ToUpper(f[:1]) {
			case "X":
				l.X = F(v)
			case "Y":
				l.Y = F(v)
			case "Z":
				l.Z = F(v)
			case "F":
				l.F = F(v)
			default:
				return nil, fmt.Errorf("line %d: unknown axis in %q", n, f)
			}
		}
		p = append(p, l)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

func ReadFile(path string) (Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
