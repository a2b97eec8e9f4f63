// Package lettering turns text into per-character motion files laid out on
// the whiteboard grid.
package lettering

import (
	"path"
	"strings"
	"unicode"
)

const (
	// LineWidth is the number of cells in a board row.
	LineWidth = 13
	// MaxRow is the last row the pen can reach.
	MaxRow = 3
)

const DefaultRoot = "assets/gcode"

type Case int

const (
	Upper Case = iota
	Lower
)

// CaseOf picks the asset set for r. Digits and punctuation live with the
// lower-case set.
func CaseOf(r rune) Case {
	if unicode.IsUpper(r) {
		return Upper
	}
	return Lower
}

func (c Case) Dir() string {
	if c == Upper {
		return "Letters"
	}
	return "sletter"
}

func (c Case) String() string {
	if c == Upper {
		return "upper"
	}
	return "lower"
}

var punctuation = map[rune]string{
	'!':  "exclamation",
	'?':  "question",
	',':  "comma",
	'.':  "period",
	':':  "colon",
	'\'': "apostrophe",
	'-':  "hyphen",
}

// AssetName is the file stem of the motion file drawing r.
func AssetName(r rune) (string, bool) {
	if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
		return string(r), true
	}
	name, ok := punctuation[r]
	return name, ok
}

// AssetPath resolves the motion file for r under root.
func AssetPath(root string, r rune) (string, bool) {
	name, ok := AssetName(r)
	if !ok {
		return "", false
	}
	return path.Join(root, CaseOf(r).Dir(), name+".nc"), true
}

var dwellTable = []struct {
	units int
	chars string
}{
	{7, "GBQgm8"},
	{5, "HOSRbdqap35609DI"},
	{4, "FACEMUWKPYfuehnotkX2"},
	{3, "JTNZcjrsvwxyi14"},
	{2, "LVlz!,.7"},
}

const defaultDwell = 5

// DwellUnits is how long the pen needs for r, in dwell units.
func DwellUnits(r rune) int {
	for _, row := range dwellTable {
		if strings.ContainsRune(row.chars, r) {
			return row.units
		}
	}
	return defaultDwell
}

// Wrap breaks text into lines of at most width runes on word boundaries.
// Runs of whitespace collapse to a single space and words longer than a
// line are split.
func Wrap(text string, width int) []string {
	var (
		lines []string
		cur   []rune
	)
	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > 0 {
			switch {
			case len(cur) == 0 && len(w) <= width:
				cur, w = w, nil
			case len(cur) > 0 && len(cur)+1+len(w) <= width:
				cur = append(append(cur, ' '), w...)
				w = nil
			case len(cur) > 0:
				lines = append(lines, string(cur))
				cur = nil
			default:
				lines = append(lines, string(w[:width]))
				w = w[width:]
			}
		}
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return lines
}
