package vad

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func frame(n int, v float32) []float32 {
	f := make([]float32, n)
	for i := range f {
		f[i] = v
	}
	return f
}

func TestRMS(t *testing.T) {
	assert.InDelta(t, 0.5, RMS(frame(10, 0.5)), 1e-9)
	assert.Zero(t, RMS(nil))
}

func TestUtteranceEndsAfterSilence(t *testing.T) {
	cfg := DefaultConfig()
	d := New(cfg)

	// leading silence is dropped
	for range 5 {
		assert.False(t, d.Push(frame(cfg.FrameSize, 0)))
	}
	for range 10 {
		assert.False(t, d.Push(frame(cfg.FrameSize, 0.2)))
	}
	// 600ms of 20ms frames, the last one closes the utterance
	for i := range 30 {
		done := d.Push(frame(cfg.FrameSize, 0.001))
		assert.Equal(t, i == 29, done, "frame %d", i)
	}
	assert.True(t, d.Heard())
	assert.Len(t, d.Samples(), (10+29)*cfg.FrameSize)
}

func TestMaxLength(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLength = 100 * time.Millisecond
	d := New(cfg)
	assert.Equal(t, 5, cfg.MaxFrames())

	for i := range 5 {
		done := d.Push(frame(cfg.FrameSize, 0))
		assert.Equal(t, i == 4, done)
	}
	assert.False(t, d.Heard())
	assert.Empty(t, d.Samples())
}
