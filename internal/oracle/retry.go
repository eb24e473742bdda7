package oracle

import (
	"context"
	"time"
)

// RetryPolicy bounds every oracle round-trip loop.
type RetryPolicy struct {
	// MaxAttempts counts the first call plus repairs.
	MaxAttempts int
	// Backoff is the wait before the nth retry, scaled linearly by n.
	Backoff time.Duration
}

func (p *RetryPolicy) applyDefaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 4
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
}

// Retry calls fn until it succeeds, the attempts run out or ctx ends. It
// returns the number of calls made and the last error.
func Retry(ctx context.Context, p RetryPolicy, fn func(attempt int) error) (int, error) {
	p.applyDefaults()
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 && p.Backoff > 0 {
			t := time.NewTimer(time.Duration(attempt) * p.Backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return attempt, ctx.Err()
			case <-t.C:
			}
		}
		if err = fn(attempt); err == nil {
			return attempt + 1, nil
		}
		if ctx.Err() != nil {
			return attempt + 1, ctx.Err()
		}
	}
	return p.MaxAttempts, err
}
