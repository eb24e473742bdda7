// Package oracle turns an external decision service into a world.Decider. The
// service sees an agent's context and answers with a JSON object naming an
// action, a private thought and optional memory writes; malformed or late
// answers are repaired a bounded number of times and then replaced by THINK.
package oracle

import (
	"context"
	"errors"

	"llmsim.ai/internal/sim/world"
)

var (
	ErrMalformed       = errors.New("malformed decision")
	ErrOracleExhausted = errors.New("oracle retries exhausted")
)

// Repair asks the oracle to fix its previous answer.
type Repair struct {
	Previous string `json:"previous"`
	Problem  string `json:"problem"`
}

type Request struct {
	Context world.AgentContext `json:"context"`
	Repair  *Repair            `json:"repair,omitempty"`
}

// Oracle answers one decision request with raw text.
type Oracle interface {
	Decide(ctx context.Context, req Request) (string, error)
}

type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Decide(ctx context.Context, req Request) (string, error) { return f(ctx, req) }
