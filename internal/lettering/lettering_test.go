package lettering

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/arm"
	"scribe/internal/arm/armtest"
	"scribe/internal/choreo"
	"scribe/internal/session"
)

func TestWrap(t *testing.T) {
	assert.Equal(t, []string{"hello world", "from the arm"}, Wrap("hello world from the arm", 13))
	assert.Equal(t, []string{"ABCDEFGHIJKLM", "NOP"}, Wrap("ABCDEFGHIJKLMNOP", 13))
	assert.Equal(t, []string{"A B"}, Wrap("  A \t B  ", 13))
	assert.Empty(t, Wrap("   ", 13))
}

func TestAssetPath(t *testing.T) {
	p, ok := AssetPath(DefaultRoot, 'A')
	require.True(t, ok)
	assert.Equal(t, "assets/gcode/Letters/A.nc", p)

	p, ok = AssetPath(DefaultRoot, '7')
	require.True(t, ok)
	assert.Equal(t, "assets/gcode/sletter/7.nc", p)

	p, ok = AssetPath(DefaultRoot, '!')
	require.True(t, ok)
	assert.Equal(t, "assets/gcode/sletter/exclamation.nc", p)

	_, ok = AssetPath(DefaultRoot, '#')
	assert.False(t, ok)
	_, ok = AssetPath(DefaultRoot, 'É')
	assert.False(t, ok)
}

func TestCaseOf(t *testing.T) {
	assert.Equal(t, Upper, CaseOf('Q'))
	assert.Equal(t, Lower, CaseOf('q'))
	assert.Equal(t, Lower, CaseOf('3'))
	assert.Equal(t, "Letters", Upper.Dir())
	assert.Equal(t, "sletter", Lower.Dir())
}

func TestDwellUnits(t *testing.T) {
	assert.Equal(t, 7, DwellUnits('G'))
	assert.Equal(t, 5, DwellUnits('O'))
	assert.Equal(t, 4, DwellUnits('A'))
	assert.Equal(t, 3, DwellUnits('T'))
	assert.Equal(t, 2, DwellUnits('L'))
	assert.Equal(t, 2, DwellUnits('!'))
	assert.Equal(t, 5, DwellUnits('?'))
}

type fixture struct {
	w      *Writer
	d      *armtest.Driver
	s      *session.Session
	dwells []time.Duration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{d: armtest.New(), s: session.New(session.DefaultSettings())}
	f.s.Attach(f.d)

	p := choreo.NewPlayer(f.d).WithSleep(func(_ context.Context, d time.Duration) error {
		f.dwells = append(f.dwells, d)
		return nil
	})
	f.w = NewWriter(p, choreo.DefaultCatalog())

	assets := fstest.MapFS{}
	for _, r := range "ABCDEFGHIJKLMNOPQRSTUVWXYZ" {
		assets["Letters/"+string(r)+".nc"] = &fstest.MapFile{Data: []byte("G1 Z280")}
	}
	assets["sletter/exclamation.nc"] = &fstest.MapFile{Data: []byte("G1 Z280")}
	f.w.Assets = assets
	return f
}

func TestWriteAB(t *testing.T) {
	f := newFixture(t)
	start := f.s.Cursor()

	res, err := f.w.Write(context.Background(), f.s, "ab")
	require.NoError(t, err)

	assert.Equal(t, []string{"assets/gcode/Letters/A.nc", "assets/gcode/Letters/B.nc"}, f.d.Paths())
	assert.Equal(t, f.d.Paths(), res.Paths)
	assert.False(t, res.Full)
	assert.False(t, f.s.Full())

	end := f.s.Cursor()
	assert.Equal(t, start.X, end.X)
	assert.Equal(t, start.Y+2, end.Y)
	assert.Contains(t, f.dwells, 4*time.Second)
}

func TestWriteLetterOffsets(t *testing.T) {
	f := newFixture(t)
	_, err := f.w.Write(context.Background(), f.s, "AB")
	require.NoError(t, err)

	var offsets [][]float64
	for _, c := range f.d.Calls() {
		if c.Op == "offset" {
			offsets = append(offsets, c.Values[:2])
		}
	}
	// reset, A at (0,-2), B at (0,-1), reset again when stowing the pen
	assert.Equal(t, [][]float64{{0, 0}, {0, 50}, {0, 25}, {0, 0}}, offsets)
}

func TestWriteStopsWhenBoardFull(t *testing.T) {
	f := newFixture(t)
	row := "ABCDEFGHIJKLM"
	text := strings.Repeat(row+" ", 4) + "NOPQ"

	res, err := f.w.Write(context.Background(), f.s, text)
	require.NoError(t, err)

	assert.True(t, res.Full)
	assert.True(t, f.s.Full())
	assert.Len(t, f.d.Paths(), 4*LineWidth)
	for _, p := range f.d.Paths() {
		assert.NotContains(t, p, "/N.nc")
		assert.NotContains(t, p, "/Q.nc")
	}
	assert.Equal(t, MaxRow, f.s.Cursor().X)
}

func TestWriteOnFullBoardDoesNothing(t *testing.T) {
	f := newFixture(t)
	f.s.SetFull(true)

	res, err := f.w.Write(context.Background(), f.s, "A")
	require.NoError(t, err)
	assert.True(t, res.Full)
	assert.Empty(t, f.d.Calls())
}

func TestSecondWriteStartsNewRow(t *testing.T) {
	f := newFixture(t)
	_, err := f.w.Write(context.Background(), f.s, "A")
	require.NoError(t, err)
	_, err = f.w.Write(context.Background(), f.s, "B")
	require.NoError(t, err)

	assert.Equal(t, session.Cursor{X: 1, Y: session.Origin.Y + 1}, f.s.Cursor())

	f.s.SetCursor(session.Cursor{X: MaxRow, Y: 4})
	res, err := f.w.Write(context.Background(), f.s, "C")
	require.NoError(t, err)
	assert.True(t, res.Full)
	assert.Equal(t, []string{"assets/gcode/Letters/A.nc", "assets/gcode/Letters/B.nc"}, f.d.Paths())
}

func TestMissingAssetSkippedCursorAdvances(t *testing.T) {
	f := newFixture(t)
	start := f.s.Cursor()

	res, err := f.w.Write(context.Background(), f.s, "A#B 7")
	require.NoError(t, err)

	assert.Equal(t, []rune{'#', '7'}, res.Skipped)
	assert.Equal(t, []string{"assets/gcode/Letters/A.nc", "assets/gcode/Letters/B.nc"}, f.d.Paths())
	assert.Equal(t, start.Y+5, f.s.Cursor().Y)
}

func TestWriteAbortsOnFault(t *testing.T) {
	f := newFixture(t)
	f.d.OnCall = func(n int, c armtest.Call) {
		if c.Op == "gcode" {
			f.d.Emit(arm.Event{Kind: arm.EventError, ErrorCode: 31})
		}
	}

	_, err := f.w.Write(context.Background(), f.s, "AB")
	var fault *choreo.Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, choreo.ReasonQuit, fault.Reason)
	assert.Equal(t, []string{"assets/gcode/Letters/A.nc"}, f.d.Paths())
	assert.True(t, f.s.Quit())
}
