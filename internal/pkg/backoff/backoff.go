package backoff

import (
	"time"
)

// Policy is a bounded exponential backoff schedule: Base doubled per attempt,
// capped at Cap, giving up after MaxAttempts.
type Policy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

func NewPolicy(base, cap time.Duration, maxAttempts int) Policy {
	return Policy{Base: base, Cap: cap, MaxAttempts: maxAttempts}
}

// Delay returns the wait before the given attempt (0-based). Attempts at or
// beyond MaxAttempts return a negative duration, meaning "do not retry".
func (p Policy) Delay(attempt int) time.Duration {
	if attempt >= p.MaxAttempts {
		return -1
	}
	d := p.Base << uint(attempt)
	if d > p.Cap || d <= 0 {
		return p.Cap
	}
	return d
}

func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
