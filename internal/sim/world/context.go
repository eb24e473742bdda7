package world

import (
	"context"
	"strings"

	"llmsim.ai/internal/sim/action"
	"llmsim.ai/internal/sim/agent"
	"llmsim.ai/internal/sim/memory"
	"llmsim.ai/internal/sim/schedule"
)

// AgentContext is everything a decider is shown about one agent's situation.
type AgentContext struct {
	Tick      int                    `json:"tick"`
	AgentID   string                 `json:"agent_id"`
	Persona   agent.Persona          `json:"persona"`
	Physio    agent.Physio           `json:"physio"`
	Moodlets  []string               `json:"moodlets,omitempty"`
	Location  string                 `json:"location"`
	Purpose   string                 `json:"purpose,omitempty"`
	Tags      []string               `json:"tags,omitempty"`
	Neighbors []string               `json:"neighbors,omitempty"`
	Places    []string               `json:"places"`
	JobSite   string                 `json:"job_site"`
	Present   []KnownAgent           `json:"present,omitempty"`
	Observed  []Event                `json:"observed,omitempty"`
	Memories  []memory.Item          `json:"memories,omitempty"`
	Inventory map[string]int         `json:"inventory,omitempty"`
	Prices    map[string]float64     `json:"prices,omitempty"`
	Calendar  []schedule.Appointment `json:"calendar,omitempty"`
	Plan      []string               `json:"plan,omitempty"`
}

type KnownAgent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Job  string `json:"job,omitempty"`
}

// Decision is a decider's answer for one agent and tick.
type Decision struct {
	Action   action.Action
	Thought  string
	Memories []memory.Item

	// Attempts counts oracle round-trips, including repairs.
	Attempts int
	// Failed is set when the decider gave up and substituted a safe action.
	Failed bool
}

// Decider chooses an agent's next action. Implementations must bound their own wait.
type Decider interface {
	Decide(ctx context.Context, c AgentContext) Decision
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, c AgentContext) Decision

func (f DeciderFunc) Decide(ctx context.Context, c AgentContext) Decision { return f(ctx, c) }

// ContextFor builds the decider context for a and marks the observed events as seen.
func (w *World) ContextFor(ctx context.Context, a *agent.Agent) AgentContext {
	loc := w.locations[a.ID]
	c := AgentContext{
		Tick:      w.tick,
		AgentID:   a.ID,
		Persona:   a.Persona,
		Physio:    a.Physio,
		Moodlets:  a.Physio.ActiveMoodlets(),
		Location:  loc,
		Places:    w.graph.Names(),
		JobSite:   a.Persona.JobSite(),
		Inventory: a.Inventory.Counts(),
		Plan:      append([]string(nil), a.Plan...),
	}
	c.Physio.Moodlets = nil
	if p, ok := w.graph.Get(loc); ok {
		c.Purpose = p.Purpose
		c.Tags = append([]string(nil), p.Tags...)
		c.Neighbors = append([]string(nil), p.Neighbors...)
		for _, id := range p.Present() {
			if id == a.ID {
				continue
			}
			if other, ok := w.agents[id]; ok {
				c.Present = append(c.Present, KnownAgent{ID: id, Name: other.Persona.Name, Job: other.Persona.Job})
			}
		}
		if p.Vendor != nil {
			c.Prices = make(map[string]float64, len(p.Vendor.Prices))
			for id, price := range p.Vendor.Prices {
				if p.Vendor.Stock[id] > 0 {
					c.Prices[id] = price
				}
			}
		}
	}
	for _, e := range w.events.Since(loc, a.LastEventSeq) {
		if e.Actor != a.ID {
			c.Observed = append(c.Observed, e)
		}
	}
	a.LastEventSeq = w.events.LastSeq()

	for _, ap := range a.Calendar {
		if ap.End >= w.tick {
			c.Calendar = append(c.Calendar, ap)
		}
	}

	k := w.tune.Memory.RecallK
	if k <= 0 {
		k = 5
	}
	for _, s := range a.Memory.Recall(ctx, recallQuery(c), k) {
		it := s.Item
		it.Embedding = nil
		c.Memories = append(c.Memories, it)
	}
	return c
}

// recallQuery describes the current situation in plain words.
func recallQuery(c AgentContext) string {
	parts := []string{c.Location, c.Purpose}
	for _, e := range c.Observed {
		parts = append(parts, e.Text)
	}
	for _, p := range c.Present {
		parts = append(parts, p.Name)
	}
	parts = append(parts, c.Persona.Goals...)
	return strings.Join(parts, " ")
}
