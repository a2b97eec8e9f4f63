package audio

import (
	"context"
	"errors"

	"github.com/gordonklaus/portaudio"

	"scribe/internal/audio/vad"
)

var ErrNothingHeard = errors.New("nothing heard")

type Recorder struct {
	VAD vad.Config
}

func NewRecorder() *Recorder { return &Recorder{VAD: vad.DefaultConfig()} }

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// RecordAuto records one utterance from the default input: it waits for
// speech and stops after a pause or at the length limit. Samples are mono at
// the VAD sample rate.
func (r *Recorder) RecordAuto(ctx context.Context) ([]float32, error) {
	buf := make([]float32, r.VAD.FrameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(r.VAD.SampleRate), len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	det := vad.New(r.VAD)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := stream.Read(); err != nil {
			return nil, err
		}
		if det.Push(buf) {
			break
		}
	}

	if !det.Heard() {
		return nil, ErrNothingHeard
	}
	return det.Samples(), nil
}
