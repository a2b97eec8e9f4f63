// Package arm describes the xArm driver the choreographies are played on and
// ships a websocket client for it.
package arm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// StateStopped is the state code the firmware reports once motion halted.
const StateStopped = 4

// Codes returned by a Driver. Anything else nonzero comes from the firmware.
const (
	CodeOK = 0
	// CodeRejected is used when the bridge refused a request without a code.
	CodeRejected = -1
)

// Pose is x, y, z in millimetres and roll, pitch, yaw in degrees.
type Pose [6]float64

// Joints holds the six servo angles in degrees.
type Joints [6]float64

type Motion struct {
	Speed  float64
	Acc    float64
	Wait   bool
	Radius float64
}

type Version struct {
	Major, Minor, Patch int
}

func ParseVersion(s string) (Version, error) {
	var v Version
	parts := strings.Split(strings.TrimPrefix(s, "v"), ".")
	if len(parts) != 3 {
		return v, fmt.Errorf("version %q: want major.minor.patch", s)
	}
	dst := []*int{&v.Major, &v.Minor, &v.Patch}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return v, fmt.Errorf("version %q: %w", s, err)
		}
		*dst[i] = n
	}
	return v, nil
}

// AtLeast compares versions lexicographically.
func (v Version) AtLeast(o Version) bool {
	if v.Major != o.Major {
		return v.Major > o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor > o.Minor
	}
	return v.Patch >= o.Patch
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Driver is the vendor SDK surface used by scribe. Every command returns the
// code reported by the arm; the error is only set when the request could not
// be delivered or answered at all.
type Driver interface {
	ClearErrors(ctx context.Context) (int, error)
	EnableMotion(ctx context.Context, on bool) (int, error)
	SetMode(ctx context.Context, mode int) (int, error)
	SetState(ctx context.Context, state int) (int, error)
	SetServoAngle(ctx context.Context, j Joints, m Motion) (int, error)
	SetPosition(ctx context.Context, p Pose, m Motion) (int, error)
	SetGripper(ctx context.Context, width, speed float64, auto, wait bool) (int, error)
	SetToolLoad(ctx context.Context, mass float64, cog [3]float64) (int, error)
	SetWorldOffset(ctx context.Context, off Pose) (int, error)
	RunMotionFile(ctx context.Context, path string, speed float64) (int, error)
	EmergencyStop(ctx context.Context) (int, error)

	Version() Version
	// ErrorCode is the last error code reported through events.
	ErrorCode() int

	Register(kind EventKind, cb Callback) Handle
	Release(h Handle)
	ReleaseAll()
}
