package gcode

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineString(t *testing.T) {
	assert.Equal(t, "G1 Z280", Lift(280).String())
	assert.Equal(t, "G1 X120 Y-160 Z267.9 F100", Move(120, -160, 267.9, 100).String())
	assert.Equal(t, "G1", Line{}.String())
}

func TestProgramString(t *testing.T) {
	p := Program{Lift(280), Move(110, -165, 267.9, 100)}
	assert.Equal(t, "G1 Z280\nG1 X110 Y-165 Z267.9 F100", p.String())
	assert.Empty(t, Program{}.String())
}

func TestParse(t *testing.T) {
	src := `
; header
G1 Z280
g1 x110 y-165 z267.9 f100 ; first point
`
	p, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, p, 2)
	assert.Equal(t, "G1 Z280", p[0].String())
	assert.Equal(t, "G1 X110 Y-165 Z267.9 F100", p[1].String())
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{"G0 X1", "G1 Q4", "G1 Xabc", "G1 X"} {
		_, err := Parse(strings.NewReader(src))
		assert.Error(t, err, src)
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "others", "output.nc")
	p := Program{Lift(280), Move(111, -160, 267.9, 100), Move(112, -160, 267.9, 100)}
	require.NoError(t, p.WriteFile(path))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, p.String(), got.String())
}
