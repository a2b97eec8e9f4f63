// Package duck lowers other applications' playback while scribe listens and
// restores it afterwards.
package duck

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxVolume = 150

type Stream struct {
	ID      int
	Volume  int
	AppName string
}

type Mixer interface {
	Streams(ctx context.Context) ([]Stream, error)
	SetVolume(ctx context.Context, id, percent int) error
}

type fade struct {
	id       int
	from, to int
}

type Ducker struct {
	Mixer Mixer
	// Factor scales each foreign stream, never below Floor percent.
	Factor float64
	Floor  int
	Fade   time.Duration
	// Self lists application names that are left alone.
	Self []string

	mu       sync.Mutex
	active   bool
	original map[int]int
	sleep    func(time.Duration)
}

func New(m Mixer, self ...string) *Ducker {
	return &Ducker{
		Mixer:  m,
		Factor: 0.3,
		Floor:  10,
		Fade:   200 * time.Millisecond,
		Self:   self,
		sleep:  time.Sleep,
	}
}

// Duck fades every foreign stream down. Calling it twice is a no-op.
func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active {
		return nil
	}

	streams, err := d.foreign(ctx)
	if err != nil {
		return err
	}

	d.original = make(map[int]int, len(streams))
	var fades []fade
	for _, s := range streams {
		to := int(math.Round(float64(s.Volume) * d.Factor))
		to = min(max(to, d.Floor), maxVolume)
		d.original[s.ID] = s.Volume
		fades = append(fades, fade{id: s.ID, from: s.Volume, to: to})
	}

	if err := d.run(ctx, fades); err != nil {
		return err
	}
	d.active = true
	return nil
}

// Restore fades ducked streams back. Streams that appeared since Duck are
// not touched.
func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return nil
	}

	streams, err := d.foreign(ctx)
	if err != nil {
		return err
	}

	var fades []fade
	for _, s := range streams {
		if orig, ok := d.original[s.ID]; ok {
			fades = append(fades, fade{id: s.ID, from: s.Volume, to: orig})
		}
	}
	if err := d.run(ctx, fades); err != nil {
		return err
	}
	d.original = nil
	d.active = false
	return nil
}

func (d *Ducker) foreign(ctx context.Context) ([]Stream, error) {
	all, err := d.Mixer.Streams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	out := all[:0]
	for _, s := range all {
		if !d.isSelf(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (d *Ducker) isSelf(s Stream) bool {
	for _, name := range d.Self {
		if s.AppName == name {
			return true
		}
	}
	return false
}

// run steps every fade linearly in 10ms increments.
func (d *Ducker) run(ctx context.Context, fades []fade) error {
	if len(fades) == 0 {
		return nil
	}
	steps := max(int(d.Fade/(10*time.Millisecond)), 1)
	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		frac := float64(i) / float64(steps)
		for _, f := range fades {
			v := int(math.Round(float64(f.from) + float64(f.to-f.from)*frac))
			if err := d.Mixer.SetVolume(ctx, f.id, v); err != nil {
				return fmt.Errorf("set volume id=%d: %w", f.id, err)
			}
		}
		if i < steps && d.sleep != nil {
			d.sleep(d.Fade / time.Duration(steps))
		}
	}
	return nil
}

// Pactl drives PulseAudio or PipeWire through the pactl tool.
type Pactl struct{}

func (Pactl) Streams(ctx context.Context) ([]Stream, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func (Pactl) SetVolume(ctx context.Context, id, percent int) error {
	percent = min(max(percent, 0), maxVolume)
	return exec.CommandContext(ctx, "pactl", "set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", percent)).Run()
}

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

func parseSinkInputs(text string) []Stream {
	blocks := strings.Split(text, "Sink Input #")
	var res []Stream
	for _, block := range blocks[1:] {
		head, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil {
			continue
		}

		s := Stream{ID: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "Volume:") && s.Volume == 0:
				if m := percentRe.FindStringSubmatch(line); m != nil {
					s.Volume, _ = strconv.Atoi(m[1])
				}
			case strings.HasPrefix(line, "application.name =") && s.AppName == "":
				s.AppName = strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, "application.name =")), `"`)
			}
		}
		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}
	return res
}
