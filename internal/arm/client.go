package arm

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"scribe/pkg/protocol"
)

const (
	DefaultShard  = "SCRIBE"
	DefaultBridge = "XARM"
)

type ClientConfig struct {
	Url    string
	Shard  string
	Bridge string
	Reconn uint
}

// Client drives an arm bridge over the colon-framed websocket protocol.
type Client struct {
	*Callbacks

	ptcl   *protocol.Protocol
	bridge string

	// motion commands go one at a time; the emergency stop does not queue
	reqMu sync.Mutex

	version Version
	errCode atomic.Int64

	done chan struct{}
	err  error
}

// Dial connects to the bridge, starts the read loop and fetches the firmware
// version. The loop stops when ctx is done or Close is called.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Shard == "" {
		cfg.Shard = DefaultShard
	}
	if cfg.Bridge == "" {
		cfg.Bridge = DefaultBridge
	}

	c := &Client{
		Callbacks: &Callbacks{},
		bridge:    cfg.Bridge,
		done:      make(chan struct{}),
	}

	ptcl, err := protocol.NewProtocol(ctx, protocol.PtclConfig{
		Shard:   cfg.Shard,
		Url:     cfg.Url,
		Reconn:  cfg.Reconn,
		EmitOut: c.handleIncoming,
		OnLink:  c.handleLink,
	})
	if err != nil {
		return nil, fmt.Errorf("dial arm bridge %s: %w", cfg.Url, err)
	}
	c.ptcl = ptcl

	go func() {
		c.err = ptcl.Run(ctx)
		close(c.done)
	}()

	resp, err := c.send(ctx, "GET", "VERSION")
	if err != nil {
		ptcl.Close()
		return nil, fmt.Errorf("query firmware version: %w", err)
	}
	if resp.Verb != protocol.VerbOk || len(resp.Args) != 3 {
		ptcl.Close()
		return nil, fmt.Errorf("unexpected version reply %q", resp.String())
	}
	v, err := ParseVersion(fmt.Sprintf("%s.%s.%s", resp.Args[0], resp.Args[1], resp.Args[2]))
	if err != nil {
		ptcl.Close()
		return nil, err
	}
	c.version = v

	log.Info("Connected to arm bridge", "url", cfg.Url, "bridge", cfg.Bridge, "firmware", v.String())
	return c, nil
}

// Wait blocks until the read loop stops and returns its error.
func (c *Client) Wait() error {
	<-c.done
	if errors.Is(c.err, protocol.ErrClosed) {
		return nil
	}
	return c.err
}

func (c *Client) Close() error {
	return c.ptcl.Close()
}

func (c *Client) Version() Version {
	return c.version
}

func (c *Client) ErrorCode() int {
	return int(c.errCode.Load())
}

func (c *Client) ClearErrors(ctx context.Context) (int, error) {
	code, err := c.command(ctx, "CLEAR", "ERRORS")
	if err == nil && code == CodeOK {
		c.errCode.Store(0)
	}
	return code, err
}

func (c *Client) EnableMotion(ctx context.Context, on bool) (int, error) {
	return c.command(ctx, "ENABLE", "MOTION", flag(on))
}

func (c *Client) SetMode(ctx context.Context, mode int) (int, error) {
	return c.command(ctx, "SET", "MODE", strconv.Itoa(mode))
}

func (c *Client) SetState(ctx context.Context, state int) (int, error) {
	return c.command(ctx, "SET", "STATE", strconv.Itoa(state))
}

func (c *Client) SetServoAngle(ctx context.Context, j Joints, m Motion) (int, error) {
	args := append(motionArgs(m), floats(j[:]...)...)
	return c.command(ctx, "SET", "JOINTS", args...)
}

func (c *Client) SetPosition(ctx context.Context, p Pose, m Motion) (int, error) {
	args := append(motionArgs(m), floats(p[:]...)...)
	return c.command(ctx, "SET", "POSE", args...)
}

func (c *Client) SetGripper(ctx context.Context, width, speed float64, auto, wait bool) (int, error) {
	args := append(floats(width, speed), flag(auto), flag(wait))
	return c.command(ctx, "SET", "GRIPPER", args...)
}

func (c *Client) SetToolLoad(ctx context.Context, mass float64, cog [3]float64) (int, error) {
	return c.command(ctx, "SET", "LOAD", floats(mass, cog[0], cog[1], cog[2])...)
}

func (c *Client) SetWorldOffset(ctx context.Context, off Pose) (int, error) {
	return c.command(ctx, "SET", "OFFSET", floats(off[:]...)...)
}

func (c *Client) RunMotionFile(ctx context.Context, path string, speed float64) (int, error) {
	if !protocol.IsArg(path) {
		return CodeRejected, fmt.Errorf("motion file path %q cannot be sent", path)
	}
	return c.command(ctx, "RUN", "GCODE", path, fmtFloat(speed))
}

// EmergencyStop is sent even while another command waits for its reply.
func (c *Client) EmergencyStop(ctx context.Context) (int, error) {
	return c.exchange(ctx, "STOP", "EMERGENCY")
}

func (c *Client) command(ctx context.Context, verb, noun string, args ...string) (int, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	return c.exchange(ctx, verb, noun, args...)
}

func (c *Client) exchange(ctx context.Context, verb, noun string, args ...string) (int, error) {
	resp, err := c.send(ctx, verb, noun, args...)
	if err != nil {
		return CodeRejected, err
	}

	code := CodeOK
	if len(resp.Args) > 0 {
		code, err = strconv.Atoi(resp.Args[0])
		if err != nil {
			return CodeRejected, fmt.Errorf("%s %s: bad code in %q", verb, noun, resp.String())
		}
	}
	if resp.Verb == protocol.VerbErr && code == CodeOK {
		code = CodeRejected
	}
	if code != CodeOK {
		log.Warn("Arm rejected command", "verb", verb, "noun", noun, "code", code)
	}
	return code, nil
}

func (c *Client) send(ctx context.Context, verb, noun string, args ...string) (*protocol.Message, error) {
	msg := &protocol.Message{To: c.bridge, Verb: verb, Noun: noun, Args: args}
	resp, err := c.ptcl.Request(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", verb, noun, err)
	}
	return resp, nil
}

func (c *Client) handleIncoming(msg *protocol.Message) {
	if msg.Verb != protocol.VerbEvent {
		log.Debug("Unsolicited frame", "msg", msg.String())
		return
	}
	ev, err := ParseEvent(msg.Noun, msg.Args)
	if err != nil {
		log.Warn("Dropping malformed event", "msg", msg.String(), "err", err)
		return
	}
	if ev.Kind == EventError {
		c.errCode.Store(int64(ev.ErrorCode))
	}
	c.Emit(ev)
}

func (c *Client) handleLink(up bool) {
	c.Emit(Event{Kind: EventConn, Connected: up, Reported: up})
}

func motionArgs(m Motion) []string {
	return []string{fmtFloat(m.Speed), fmtFloat(m.Acc), flag(m.Wait), fmtFloat(m.Radius)}
}

func floats(vs ...float64) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = fmtFloat(v)
	}
	return out
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

var _ Driver = (*Client)(nil)
