package choreo

import (
	"fmt"
	"sort"
	"time"

	"scribe/internal/arm"
)

// Gripper widths.
const (
	GripOpen       = 420
	GripOpenEraser = 500
	GripPen        = 80
	GripEraser     = 303
	GripClosed     = 0
)

// Heights in millimetres.
const (
	PenAbove      = 355
	PenLift       = 360
	PenGrip       = 270.5
	AboveBoard    = 275
	EraserAbove   = 365
	EraserGrip    = 177.6
	CleanHeight   = 183
	CleanApproach = 189.7
	PaintApproach = 280
	PaintContact  = 272
)

const PenLoadMass = 0.82

// SettleAfterMove is the pause after a world offset change.
const SettleAfterMove = 500 * time.Millisecond

// Grid pitch per cursor unit, in millimetres.
const (
	PitchX = -40
	PitchY = -25
)

const PaintFile = "assets/gcode/others/output.nc"

const PaintSpeed = 1000

// Names of the catalog entries.
const (
	Home          = "home"
	ResetOffset   = "reset-offset"
	GrabPen       = "grab-pen"
	PutBackPen    = "put-back-pen"
	GrabEraser    = "grab-eraser"
	MoveEraser    = "move-eraser"
	Clean         = "clean"
	PutBackEraser = "put-back-eraser"
	PaintStart    = "paint-start"
)

var (
	penOrient    = [3]float64{-179.8, -0.5, -46.3}
	boardOrient  = [3]float64{-179.6, -0.5, -46.4}
	letterOrient = [3]float64{-178.8, -1.1, -43.6}

	homeJoints = arm.Joints{3.1, -79.9, 2.8, -0.1, 76.5, 49.5}

	// LetterOrigin is where the pen hovers before each character, in the
	// shifted world frame.
	LetterOrigin = pose(180, -105, AboveBoard, letterOrient)

	cleanLanes = []float64{187.2, 224.5, 274.5}
)

const (
	cleanFar   = 159.1
	cleanNear  = -171.8
	cleanPass  = 2
	cleanFinal = 305.3
)

func pose(x, y, z float64, o [3]float64) arm.Pose {
	return arm.Pose{x, y, z, o[0], o[1], o[2]}
}

func to(x, y, z float64, o [3]float64) MovePose {
	return MovePose{Pose: pose(x, y, z, o)}
}

// GridOffset shifts the world frame to the grid cell (x, y) and lets it
// settle.
func GridOffset(x, y int) Choreography {
	return New(fmt.Sprintf("offset(%d,%d)", x, y),
		WorldOffset{Offset: arm.Pose{float64(x * PitchX), float64(y * PitchY), 0, 0, 0, 0}},
		Dwell{D: SettleAfterMove},
	)
}

type Catalog struct {
	entries map[string]Choreography
}

// DefaultCatalog holds the waypoint tables of the whiteboard rig.
func DefaultCatalog() *Catalog {
	c := &Catalog{entries: make(map[string]Choreography)}

	c.add(New(Home,
		MoveJoints{Joints: homeJoints},
		Gripper{Width: GripOpen},
		Gripper{Width: GripClosed},
	))

	c.add(Compose(ResetOffset, GridOffset(0, 0)))

	c.add(New(GrabPen,
		to(238.3, 226.4, PenAbove, penOrient),
		Gripper{Width: GripOpen},
		to(239.1, 226.9, PenGrip, [3]float64{-179.5, -0.5, -46.3}),
		ToolLoad{Mass: PenLoadMass, Cog: [3]float64{0, 0, 48}},
		Gripper{Width: GripPen},
		ToolLoad{},
		to(238.3, 226.4, PenLift, penOrient),
		to(157.2, 8.4, AboveBoard, boardOrient),
	))

	c.add(Compose(PutBackPen,
		GridOffset(0, 0),
		New("",
			to(238.3, 226.4, PenAbove, penOrient),
			to(239.1, 226.9, PenGrip, [3]float64{-179.5, -0.5, -46.3}),
			Gripper{Width: GripOpen},
			ToolLoad{},
			to(238.3, 226.4, PenLift, penOrient),
			to(157.2, 8.4, AboveBoard, boardOrient),
		),
	))

	c.add(New(GrabEraser,
		to(157.2, 8.4, EraserAbove, boardOrient),
		to(220.5, 306.0, EraserAbove, boardOrient),
		Gripper{Width: GripOpenEraser},
		to(220.2, 306.3, EraserGrip, boardOrient),
		Gripper{Width: GripEraser},
		ToolLoad{},
	))

	c.add(New(MoveEraser,
		to(220.5, 306.0, EraserAbove, boardOrient),
		to(187.1, 111.5, EraserAbove, boardOrient),
	))

	clean := []Step{
		to(cleanLanes[0], cleanNear, CleanApproach, boardOrient),
		Gripper{Width: GripOpen},
		Gripper{Width: GripEraser},
	}
	for i, lane := range cleanLanes {
		if i > 0 {
			clean = append(clean, to(lane, cleanNear, CleanHeight, boardOrient))
		}
		for p := 0; p < cleanPass; p++ {
			clean = append(clean,
				to(lane, cleanFar, CleanHeight, boardOrient),
				to(lane, cleanNear, CleanHeight, boardOrient),
			)
		}
	}
	clean = append(clean, to(cleanFinal, cleanNear, CleanHeight, boardOrient))
	c.add(New(Clean, clean...))

	c.add(New(PutBackEraser,
		to(282.8, -121, EraserAbove, [3]float64{-179.6, -0.5, -46.3}),
		to(220.5, 306.0, EraserAbove, boardOrient),
		to(220.2, 306.3, EraserGrip, boardOrient),
		Gripper{Width: GripOpen},
		ToolLoad{Mass: PenLoadMass, Cog: [3]float64{0, 0, 48}},
		to(220.5, 306.0, EraserAbove, boardOrient),
	))

	c.add(Compose(PaintStart,
		GridOffset(1, 3),
		New("",
			to(180, -105, PaintApproach, letterOrient),
			to(180, -105, PaintContact, letterOrient),
		),
	))

	return c
}

func (c *Catalog) add(ch Choreography) {
	c.entries[ch.Name] = ch
}

func (c *Catalog) Get(name string) (Choreography, bool) {
	ch, ok := c.entries[name]
	return ch, ok
}

// Must returns the named entry and panics when it is missing.
func (c *Catalog) Must(name string) Choreography {
	ch, ok := c.Get(name)
	if !ok {
		panic(fmt.Sprintf("choreo: no %q in catalog", name))
	}
	return ch
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for n := range c.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Erase grabs the eraser, wipes the board and puts the eraser back.
func (c *Catalog) Erase() Choreography {
	return Compose("erase",
		c.Must(Home),
		c.Must(GrabEraser),
		c.Must(MoveEraser),
		c.Must(Clean),
		c.Must(PutBackEraser),
		c.Must(Home),
	)
}

// Paint draws the motion file at path with the pen, then stows the pen.
func (c *Catalog) Paint(path string) Choreography {
	return Compose("paint",
		c.Must(ResetOffset),
		c.Must(Home),
		c.Must(GrabPen),
		c.Must(PaintStart),
		New("", RunFile{Path: path, Speed: PaintSpeed}),
		c.Must(PutBackPen),
		c.Must(Home),
	)
}

// Reset re-homes the arm from any grid offset.
func (c *Catalog) Reset() Choreography {
	return Compose("reset", c.Must(ResetOffset), c.Must(Home))
}
