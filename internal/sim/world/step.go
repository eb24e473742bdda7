package world

import (
	"context"
	"fmt"
	"math/rand"

	"llmsim.ai/internal/sim/action"
	"llmsim.ai/internal/sim/agent"
	"llmsim.ai/internal/sim/economy"
	"llmsim.ai/internal/sim/schedule"
)

type TickLogEntry struct {
	RunID          string           `json:"run_id,omitempty"`
	WorldID        string           `json:"world_id"`
	Tick           int              `json:"tick"`
	Actions        []RecordedAction `json:"actions,omitempty"`
	Events         []Event          `json:"events,omitempty"`
	Flows          []economy.Flow   `json:"flows,omitempty"`
	Deaths         []Death          `json:"deaths,omitempty"`
	Errors         []string         `json:"errors,omitempty"`
	OracleFailures int              `json:"oracle_failures,omitempty"`
	Compressed     int              `json:"compressed,omitempty"`
	Digest         string           `json:"digest"`
}

type RecordedAction struct {
	AgentID   string `json:"agent_id"`
	Requested string `json:"requested"`
	Resolved  string `json:"resolved"`
	Verb      string `json:"verb"`
	Result    string `json:"result"`
	Note      string `json:"note,omitempty"`
	Forced    bool   `json:"forced,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	Failed    bool   `json:"failed,omitempty"`
}

type Death struct {
	AgentID string `json:"agent_id"`
	Tick    int    `json:"tick"`
	Cause   string `json:"cause"`
	Place   string `json:"place,omitempty"`
}

// StepOnce resolves every living agent once, in id order, and advances the tick.
// A failure while resolving one agent is logged and isolated; an invariant
// violation panics.
func (w *World) StepOnce(ctx context.Context, d Decider) TickLogEntry {
	tick := w.tick
	entry := TickLogEntry{RunID: w.cfg.RunID, WorldID: w.cfg.ID, Tick: tick}
	firstSeq := w.events.LastSeq()

	if tick > 0 && tick%w.tune.TicksPerDay == 0 {
		entry.Compressed = w.nightly(ctx)
	}

	for _, id := range w.order {
		a := w.agents[id]
		if !a.Alive {
			continue
		}
		out, dec, err := w.resolveAgent(ctx, a, d)
		if err != nil {
			w.metrics.AgentErrors++
			w.log.Printf("tick %d agent %s: %v", tick, id, err)
			entry.Errors = append(entry.Errors, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		if dec.Failed {
			w.metrics.OracleFailures++
			entry.OracleFailures++
		}
		if dec.Attempts > 1 {
			w.metrics.OracleRepairs += dec.Attempts - 1
		}
		entry.Actions = append(entry.Actions, RecordedAction{
			AgentID:   id,
			Requested: out.Requested.String(),
			Resolved:  out.Resolved.String(),
			Verb:      string(out.Resolved.Verb),
			Result:    out.Result,
			Note:      out.Note,
			Forced:    out.Forced,
			Attempts:  dec.Attempts,
			Failed:    dec.Failed,
		})
		entry.Flows = append(entry.Flows, out.Flows...)
		if out.Died != "" {
			entry.Deaths = append(entry.Deaths, Death{AgentID: id, Tick: tick, Cause: out.Died, Place: out.DiedAt})
		}
	}

	entry.Events = w.events.Since("", firstSeq)
	w.tick++
	w.metrics.Ticks++
	entry.Digest = w.StateDigest()
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.log.Printf("tick %d: write tick log: %v", tick, err)
		}
	}
	return entry
}

// resolveAgent picks the agent's action (busy agents continue, due appointments
// force a move, otherwise d decides) and applies it.
func (w *World) resolveAgent(ctx context.Context, a *agent.Agent, d Decider) (out Outcome, dec Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ie, ok := r.(*InvariantError); ok {
				panic(ie)
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	forced := false
	switch {
	case a.Busy(w.tick):
		dec = Decision{Action: action.New(action.Continue, nil)}
	default:
		if mv, ok := schedule.EnforceSchedule(a.Calendar, w.locations[a.ID], w.tick, a.BusyUntil); ok {
			dec = Decision{Action: action.MoveTo(mv.To), Thought: "I have " + appointmentLabel(mv.Appointment) + " at " + mv.To}
			forced = true
		} else if d != nil {
			dec = d.Decide(ctx, w.ContextFor(ctx, a))
		} else {
			dec = Decision{Action: action.New(action.Continue, nil)}
		}
	}
	out = w.Apply(ctx, a, dec)
	out.Forced = forced
	return out, dec, nil
}

// nightly compresses every living agent's memory and runs vendor upkeep. Price
// noise is seeded from the world seed and the tick so a resumed run matches.
func (w *World) nightly(ctx context.Context) int {
	rng := rand.New(rand.NewSource(w.cfg.Seed ^ int64(w.tick)))
	removed := 0
	for _, id := range w.order {
		if a := w.agents[id]; a.Alive {
			removed += a.Memory.CompressNightly(ctx)
		}
	}
	for _, name := range w.graph.Names() {
		p, _ := w.graph.Get(name)
		if p.Vendor == nil {
			continue
		}
		p.Vendor.FluctuatePrices(rng)
		for _, item := range sortedKeys(p.Vendor.Prices) {
			if p.Vendor.Stock[item] == 0 {
				p.Vendor.Restock(item, 0)
			}
		}
	}
	return removed
}

func appointmentLabel(a schedule.Appointment) string {
	if a.Label != "" {
		return a.Label
	}
	return "an appointment"
}
