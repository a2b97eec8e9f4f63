// Package vad decides where an utterance starts and ends in a stream of
// fixed-size audio frames.
package vad

import (
	"math"
	"time"
)

type Config struct {
	SampleRate int
	FrameSize  int
	// Threshold is the RMS level above which a frame counts as speech.
	Threshold float64
	// Silence ends the utterance once speech has started.
	Silence   time.Duration
	MaxLength time.Duration
}

func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		FrameSize:  320,
		Threshold:  0.015,
		Silence:    600 * time.Millisecond,
		MaxLength:  10 * time.Second,
	}
}

func (c Config) frameDur() time.Duration {
	return time.Duration(c.FrameSize) * time.Second / time.Duration(c.SampleRate)
}

// MaxFrames is how many frames fit in MaxLength.
func (c Config) MaxFrames() int {
	return int(c.MaxLength / c.frameDur())
}

// Detector collects frames from the first loud one until enough quiet
// follows.
type Detector struct {
	cfg      Config
	out      []float32
	speaking bool
	quiet    time.Duration
	frames   int
}

func New(cfg Config) *Detector {
	return &Detector{cfg: cfg, out: make([]float32, 0, cfg.SampleRate*3)}
}

// Push adds one frame and reports whether the utterance is complete.
func (d *Detector) Push(frame []float32) bool {
	d.frames++
	if RMS(frame) > d.cfg.Threshold {
		d.speaking = true
		d.quiet = 0
		d.out = append(d.out, frame...)
	} else if d.speaking {
		d.quiet += d.cfg.frameDur()
		if d.quiet >= d.cfg.Silence {
			return true
		}
		d.out = append(d.out, frame...)
	}
	return d.frames >= d.cfg.MaxFrames()
}

func (d *Detector) Samples() []float32 {
	return d.out
}

func (d *Detector) Heard() bool {
	return d.speaking
}

func RMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
