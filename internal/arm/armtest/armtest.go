// Package armtest provides a recording arm.Driver for tests.
package armtest

import (
	"context"
	"fmt"
	"sync"

	"scribe/internal/arm"
)

type Call struct {
	Op     string
	Values []float64
	Path   string
	Motion arm.Motion
}

func (c Call) String() string {
	if c.Path != "" {
		return fmt.Sprintf("%s %s", c.Op, c.Path)
	}
	return fmt.Sprintf("%s %v", c.Op, c.Values)
}

// Driver records every call. FailAt (1-based) makes that call return
// FailCode. OnCall runs after a call is recorded and before it returns.
type Driver struct {
	*arm.Callbacks

	FailAt   int
	FailCode int
	OnCall   func(n int, c Call)
	Ver      arm.Version

	mu      sync.Mutex
	calls   []Call
	errCode int
}

func New() *Driver {
	return &Driver{
		Callbacks: &arm.Callbacks{},
		Ver:       arm.Version{Major: 1, Minor: 11, Patch: 6},
	}
}

func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

func (d *Driver) Ops() []string {
	calls := d.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// Paths lists the motion files run, in order.
func (d *Driver) Paths() []string {
	var out []string
	for _, c := range d.Calls() {
		if c.Op == "gcode" {
			out = append(out, c.Path)
		}
	}
	return out
}

func (d *Driver) SetErrorCode(code int) {
	d.mu.Lock()
	d.errCode = code
	d.mu.Unlock()
}

func (d *Driver) Version() arm.Version { return d.Ver }

func (d *Driver) ErrorCode() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errCode
}

func (d *Driver) record(ctx context.Context, c Call) (int, error) {
	if err := ctx.Err(); err != nil {
		return arm.CodeRejected, err
	}
	d.mu.Lock()
	d.calls = append(d.calls, c)
	n := len(d.calls)
	hook := d.OnCall
	d.mu.Unlock()

	if hook != nil {
		hook(n, c)
	}
	if d.FailAt > 0 && n == d.FailAt {
		return d.FailCode, nil
	}
	return arm.CodeOK, nil
}

func (d *Driver) ClearErrors(ctx context.Context) (int, error) {
	code, err := d.record(ctx, Call{Op: "clear"})
	if err == nil && code == arm.CodeOK {
		d.SetErrorCode(0)
	}
	return code, err
}

func (d *Driver) EnableMotion(ctx context.Context, on bool) (int, error) {
	v := 0.0
	if on {
		v = 1
	}
	return d.record(ctx, Call{Op: "enable", Values: []float64{v}})
}

func (d *Driver) SetMode(ctx context.Context, mode int) (int, error) {
	return d.record(ctx, Call{Op: "mode", Values: []float64{float64(mode)}})
}

func (d *Driver) SetState(ctx context.Context, state int) (int, error) {
	return d.record(ctx, Call{Op: "state", Values: []float64{float64(state)}})
}

func (d *Driver) SetServoAngle(ctx context.Context, j arm.Joints, m arm.Motion) (int, error) {
	return d.record(ctx, Call{Op: "joints", Values: j[:], Motion: m})
}

func (d *Driver) SetPosition(ctx context.Context, p arm.Pose, m arm.Motion) (int, error) {
	return d.record(ctx, Call{Op: "pose", Values: p[:], Motion: m})
}

func (d *Driver) SetGripper(ctx context.Context, width, speed float64, auto, wait bool) (int, error) {
	return d.record(ctx, Call{Op: "gripper", Values: []float64{width, speed}, Motion: arm.Motion{Wait: wait}})
}

func (d *Driver) SetToolLoad(ctx context.Context, mass float64, cog [3]float64) (int, error) {
	return d.record(ctx, Call{Op: "load", Values: []float64{mass, cog[0], cog[1], cog[2]}})
}

func (d *Driver) SetWorldOffset(ctx context.Context, off arm.Pose) (int, error) {
	return d.record(ctx, Call{Op: "offset", Values: off[:]})
}

func (d *Driver) RunMotionFile(ctx context.Context, path string, speed float64) (int, error) {
	return d.record(ctx, Call{Op: "gcode", Path: path, Values: []float64{speed}})
}

func (d *Driver) EmergencyStop(ctx context.Context) (int, error) {
	return d.record(ctx, Call{Op: "estop"})
}

var _ arm.Driver = (*Driver)(nil)
