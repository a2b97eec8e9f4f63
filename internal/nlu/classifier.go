package nlu

import (
	"context"
	"errors"
	log "log/slog"
	"strings"
	"time"

	"scribe/internal/choreo"
	"scribe/internal/intent"
)

var ErrEmpty = errors.New("empty utterance")

const (
	DefaultAttempts = 3
	DefaultBackoff  = 2 * time.Second
)

// Classifier asks the model for an intent and retries a bounded number of
// times with linear backoff. When every attempt fails the keyword table
// decides.
type Classifier struct {
	LLM      Completer
	Attempts int
	Backoff  time.Duration
	// OnRetry runs before each wait between attempts, e.g. to apologise.
	OnRetry func(attempt int, err error)

	sleep func(ctx context.Context, d time.Duration) error
}

func NewClassifier(llm Completer) *Classifier {
	return &Classifier{
		LLM:      llm,
		Attempts: DefaultAttempts,
		Backoff:  DefaultBackoff,
		sleep:    choreo.Sleep,
	}
}

func (c *Classifier) Classify(ctx context.Context, text string) (intent.Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return intent.Intent{}, ErrEmpty
	}
	if c.LLM == nil {
		return Keywords(text), nil
	}

	attempts := max(c.Attempts, 1)
	for i := 1; i <= attempts; i++ {
		raw, err := c.LLM.Complete(ctx, systemPrompt, text)
		if err == nil {
			var in intent.Intent
			if in, err = Decode(raw); err == nil {
				log.Debug("Classified", "text", text, "intent", in, "attempt", i)
				return in, nil
			}
		}
		if ctx.Err() != nil {
			return intent.Intent{}, ctx.Err()
		}

		log.Warn("Failed to classify", "attempt", i, "err", err)
		if i == attempts {
			break
		}
		if c.OnRetry != nil {
			c.OnRetry(i, err)
		}
		if err := c.wait(ctx, c.Backoff*time.Duration(i)); err != nil {
			return intent.Intent{}, err
		}
	}

	in := Keywords(text)
	log.Warn("Falling back to keywords", "text", text, "intent", in)
	return in, nil
}

func (c *Classifier) wait(ctx context.Context, d time.Duration) error {
	if c.sleep == nil {
		return choreo.Sleep(ctx, d)
	}
	return c.sleep(ctx, d)
}
