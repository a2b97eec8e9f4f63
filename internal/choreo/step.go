// Package choreo plays fixed sequences of arm commands.
package choreo

import (
	"context"
	"fmt"
	"time"

	"scribe/internal/arm"
	"scribe/internal/session"
)

// Blend radius used by every move. Negative disables blending.
const NoBlend = -1.0

const DefaultGripperSpeed = 5000

// Env is what a step needs to execute.
type Env struct {
	Driver   arm.Driver
	Settings session.Settings
	Sleep    func(context.Context, time.Duration) error
}

// Step is one literal command. Apply returns the driver code.
type Step interface {
	Apply(ctx context.Context, env Env) (int, error)
	String() string
}

// MoveJoints is a joint-space move. Zero speed or acc fall back to the
// session's angle settings.
type MoveJoints struct {
	Joints arm.Joints
	Speed  float64
	Acc    float64
	Wait   bool
}

func (s MoveJoints) Apply(ctx context.Context, env Env) (int, error) {
	m := arm.Motion{
		Speed:  orDefault(s.Speed, env.Settings.AngleSpeed),
		Acc:    orDefault(s.Acc, env.Settings.AngleAcc),
		Wait:   s.Wait,
		Radius: NoBlend,
	}
	return env.Driver.SetServoAngle(ctx, s.Joints, m)
}

func (s MoveJoints) String() string {
	return fmt.Sprintf("joints %v", s.Joints)
}

// MovePose is a Cartesian move that always waits for completion.
type MovePose struct {
	Pose  arm.Pose
	Speed float64
	Acc   float64
}

func (s MovePose) Apply(ctx context.Context, env Env) (int, error) {
	m := arm.Motion{
		Speed:  orDefault(s.Speed, env.Settings.Speed),
		Acc:    orDefault(s.Acc, env.Settings.Acc),
		Wait:   true,
		Radius: NoBlend,
	}
	return env.Driver.SetPosition(ctx, s.Pose, m)
}

func (s MovePose) String() string {
	return fmt.Sprintf("pose %v", s.Pose)
}

type Gripper struct {
	Width float64
	Speed float64
}

func (s Gripper) Apply(ctx context.Context, env Env) (int, error) {
	return env.Driver.SetGripper(ctx, s.Width, orDefault(s.Speed, DefaultGripperSpeed), true, true)
}

func (s Gripper) String() string {
	return fmt.Sprintf("gripper %g", s.Width)
}

type ToolLoad struct {
	Mass float64
	Cog  [3]float64
}

func (s ToolLoad) Apply(ctx context.Context, env Env) (int, error) {
	return env.Driver.SetToolLoad(ctx, s.Mass, s.Cog)
}

func (s ToolLoad) String() string {
	return fmt.Sprintf("load %gkg %v", s.Mass, s.Cog)
}

// RunFile executes a motion file. Zero speed leaves the driver default.
type RunFile struct {
	Path  string
	Speed float64
}

func (s RunFile) Apply(ctx context.Context, env Env) (int, error) {
	return env.Driver.RunMotionFile(ctx, s.Path, s.Speed)
}

func (s RunFile) String() string {
	return "gcode " + s.Path
}

// WorldOffset shifts the world frame and resets the state so the shift takes
// effect.
type WorldOffset struct {
	Offset arm.Pose
}

func (s WorldOffset) Apply(ctx context.Context, env Env) (int, error) {
	code, err := env.Driver.SetWorldOffset(ctx, s.Offset)
	if err != nil || code != arm.CodeOK {
		return code, err
	}
	return env.Driver.SetState(ctx, 0)
}

func (s WorldOffset) String() string {
	return fmt.Sprintf("offset %v", s.Offset)
}

type Dwell struct {
	D time.Duration
}

func (s Dwell) Apply(ctx context.Context, env Env) (int, error) {
	return arm.CodeOK, env.Sleep(ctx, s.D)
}

func (s Dwell) String() string {
	return "dwell " + s.D.String()
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// Choreography is an ordered step list. It is never mutated after creation.
type Choreography struct {
	Name  string
	Steps []Step
}

// Compose concatenates choreographies under a new name.
func Compose(name string, parts ...Choreography) Choreography {
	n := 0
	for _, p := range parts {
		n += len(p.Steps)
	}
	steps := make([]Step, 0, n)
	for _, p := range parts {
		steps = append(steps, p.Steps...)
	}
	return Choreography{Name: name, Steps: steps}
}

func New(name string, steps ...Step) Choreography {
	return Choreography{Name: name, Steps: steps}
}
