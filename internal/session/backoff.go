package session

import (
	"time"

	"github.com/jailfriend/go-call-infra/internal/config"
)

// Backoff is a bounded exponential retry policy. The same policy shape is
// shared by the session controller for the signaling link and by the
// transcription pipeline for the provider link.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	Factor      float64
	MaxAttempts int
}

// BackoffFromConfig builds the signaling retry policy from env config.
func BackoffFromConfig(cfg config.Session) Backoff {
	return Backoff{
		Base:        cfg.BackoffBase,
		Max:         cfg.BackoffMax,
		Factor:      cfg.BackoffFactor,
		MaxAttempts: cfg.MaxAttempts,
	}
}

// Delay returns the wait before the given attempt (1-based): the base delay
// grown by the factor per prior attempt, capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := float64(b.Base)
	for i := 1; i < attempt; i++ {
		d *= b.Factor
		if time.Duration(d) >= b.Max {
			return b.Max
		}
	}

	if time.Duration(d) > b.Max {
		return b.Max
	}
	return time.Duration(d)
}

// Exhausted reports whether the attempt budget is spent.
func (b Backoff) Exhausted(attempts int) bool {
	return attempts > b.MaxAttempts
}
