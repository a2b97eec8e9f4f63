package notify

import (
	"context"
	"fmt"
	log "log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

var (
	speakerOnce sync.Once
	speakerRate beep.SampleRate
	speakerErr  error
)

// Chime plays the mp3 at path and waits until it has finished. The output
// device is opened on first use at the file's sample rate; later files are
// resampled to it.
func Chime(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open chime: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode chime: %w", err)
	}
	defer streamer.Close()

	speakerOnce.Do(func() {
		speakerRate = format.SampleRate
		speakerErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if speakerErr != nil {
		return fmt.Errorf("init speaker: %w", speakerErr)
	}

	var s beep.Streamer = streamer
	if format.SampleRate != speakerRate {
		s = beep.Resample(4, format.SampleRate, speakerRate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// Desktop shows a desktop notification. Missing notify-send is not an error.
func Desktop(ctx context.Context, summary, body string) {
	bin, err := exec.LookPath("notify-send")
	if err != nil {
		log.Debug("notify-send not found, skipping notification")
		return
	}
	if err := exec.CommandContext(ctx, bin, "-a", "scribe", summary, body).Run(); err != nil {
		log.Warn("Failed to notify", "err", err)
	}
}
