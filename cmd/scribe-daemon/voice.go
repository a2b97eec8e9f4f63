package main

import (
	"context"
	"fmt"
	log "log/slog"
	"time"

	"scribe/internal/audio"
	"scribe/internal/audio/duck"
	"scribe/internal/config"
	"scribe/internal/notify"
	"scribe/internal/tts"
	"scribe/pkg/stt"
)

// words the transcriber should prefer
const sttPrompt = "Write, erase, paint, reset, quit."

type voice struct {
	cfg     config.Voice
	rec     *audio.Recorder
	whisper *stt.Transcriber
	tts     *tts.Espeak
	duck    *duck.Ducker
}

func newVoice(cfg config.Voice) (*voice, error) {
	rec := audio.NewRecorder()
	if err := rec.Init(); err != nil {
		return nil, fmt.Errorf("init audio: %w", err)
	}

	whisper, err := stt.NewTranscriber(cfg.WhisperModel)
	if err != nil {
		rec.Close()
		return nil, fmt.Errorf("init whisper: %w", err)
	}

	return &voice{
		cfg:     cfg,
		rec:     rec,
		whisper: whisper,
		tts:     tts.New(cfg.Speaker),
		duck:    duck.New(duck.Pactl{}, "scribe-daemon"),
	}, nil
}

func (v *voice) Close() {
	v.whisper.Close()
	v.rec.Close()
}

// listen asks for a command and returns what was said.
func (v *voice) listen(ctx context.Context) (string, error) {
	if err := v.tts.Speak(ctx, "What can I do for you?"); err != nil {
		log.Warn("Failed to voice out", "err", err)
	}
	if err := notify.Chime(ctx, v.cfg.Chime); err != nil {
		log.Warn("Failed to chime", "err", err)
	}
	notify.Desktop(ctx, "scribe", "Listening...")

	if err := v.duck.Duck(ctx); err != nil {
		log.Debug("Failed to duck", "err", err)
	}
	pcm, err := v.rec.RecordAuto(ctx)
	if err := v.duck.Restore(context.WithoutCancel(ctx)); err != nil {
		log.Debug("Failed to restore volume", "err", err)
	}
	if err != nil {
		return "", fmt.Errorf("record: %w", err)
	}

	log.Info("Recorded", "samples", len(pcm))
	return transcribe(ctx, v.whisper, pcm, v.cfg.Language)
}

func transcribe(ctx context.Context, tr *stt.Transcriber, pcm []float32, lang string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	res, err := tr.TranscribePCM(ctx, pcm, stt.Options{
		Language: lang,
		Prompt:   sttPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	log.Info("Transcribed", "text", res.Text, "lang", res.Language)
	return res.Text, nil
}

// logSpeaker stands in for speech when the daemon runs without audio.
type logSpeaker struct{}

func (logSpeaker) Speak(ctx context.Context, text string) error {
	log.Info("Say", "text", text)
	return nil
}
