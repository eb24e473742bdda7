package oracle

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"llmsim.ai/internal/sim/action"
	"llmsim.ai/internal/sim/world"
)

// DefaultMaxRepairs applies when ResolverConfig.MaxRepairs is zero.
const DefaultMaxRepairs = 3

// NoRepairs disables corrective round-trips.
const NoRepairs = -1

type ResolverConfig struct {
	// Timeout bounds each oracle call.
	Timeout time.Duration
	// MaxRepairs is how many corrective round-trips follow a bad answer.
	// Zero means DefaultMaxRepairs; any negative value means none.
	MaxRepairs int
	Backoff    time.Duration
	Logger     *log.Logger
}

func (c *ResolverConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	switch {
	case c.MaxRepairs == 0:
		c.MaxRepairs = DefaultMaxRepairs
	case c.MaxRepairs < 0:
		c.MaxRepairs = 0
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard, "", 0)
	}
}

// Resolver adapts an Oracle to world.Decider.
type Resolver struct {
	oracle Oracle
	cfg    ResolverConfig
	policy RetryPolicy
}

func NewResolver(o Oracle, cfg ResolverConfig) *Resolver {
	cfg.applyDefaults()
	return &Resolver{
		oracle: o,
		cfg:    cfg,
		policy: RetryPolicy{MaxAttempts: cfg.MaxRepairs + 1, Backoff: cfg.Backoff},
	}
}

// Decide asks the oracle for c's next action. Timeouts and malformed answers
// are handled alike: the oracle is asked to repair its answer, and when the
// attempts run out the agent thinks instead.
func (r *Resolver) Decide(ctx context.Context, c world.AgentContext) world.Decision {
	var (
		dec      world.Decision
		prev     string
		lastErr  error
		timedOut bool
	)
	attempts, err := Retry(ctx, r.policy, func(attempt int) error {
		timedOut = false
		req := Request{Context: c}
		if attempt > 0 && lastErr != nil {
			req.Repair = &Repair{Previous: prev, Problem: lastErr.Error()}
		}
		cctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
		raw, err := r.oracle.Decide(cctx, req)
		if err == nil && cctx.Err() != nil {
			err = cctx.Err()
		}
		if err != nil {
			timedOut = cctx.Err() != nil
			lastErr = err
			return err
		}
		prev = raw
		d, err := Decode(raw)
		if err != nil {
			lastErr = err
			return err
		}
		dec = d
		return nil
	})
	if err == nil {
		dec.Attempts = attempts
		return dec
	}

	reason := "the answer made no sense"
	if timedOut {
		reason = "I took too long to decide"
	}
	r.cfg.Logger.Printf("oracle: agent %s tick %d: %v after %d attempts: %v", c.AgentID, c.Tick, ErrOracleExhausted, attempts, err)
	return world.Decision{
		Action:   action.ThinkText(fmt.Sprintf("I lost my train of thought (%s)", reason)),
		Attempts: attempts,
		Failed:   true,
	}
}
