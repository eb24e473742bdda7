// Package agent holds per-agent state: identity, homeostasis, memory, inventory,
// calendar and action bookkeeping.
package agent

import (
	"strings"

	"llmsim.ai/internal/sim/inventory"
	"llmsim.ai/internal/sim/memory"
	"llmsim.ai/internal/sim/schedule"
)

// Cooldown kinds.
const (
	CooldownSay     = "say"
	CooldownEat     = "eat"
	CooldownThought = "thought"
)

type Agent struct {
	ID        string
	Persona   Persona
	Physio    Physio
	Memory    *memory.Store
	Inventory *inventory.Inventory
	Calendar  []schedule.Appointment

	Location  string
	BusyUntil int
	Plan      []string

	Alive   bool
	Cause   string
	DiedAt  int
	Thought string

	// LastEventSeq is the newest event sequence already shown to the agent.
	LastEventSeq uint64

	lastUsed map[string]int
}

func New(id string, p Persona, mem *memory.Store, inv *inventory.Inventory) *Agent {
	if p.Stage == "" {
		p.Stage = StageForAge(p.Age)
	}
	if mem == nil {
		mem = memory.NewStore(memory.Config{}, nil)
	}
	if inv == nil {
		inv = inventory.New(inventory.AgentCapacity)
	}
	return &Agent{
		ID:        id,
		Persona:   p,
		Physio:    DefaultPhysio(),
		Memory:    mem,
		Inventory: inv,
		BusyUntil: -1,
		Alive:     true,
		lastUsed:  map[string]int{},
	}
}

func (a *Agent) Busy(tick int) bool { return tick < a.BusyUntil }

// Occupy marks the agent busy for ticks starting at tick.
func (a *Agent) Occupy(tick, ticks int) {
	if ticks <= 0 {
		return
	}
	if until := tick + ticks; until > a.BusyUntil {
		a.BusyUntil = until
	}
}

// CooldownReady reports whether kind is off cooldown at tick.
func (a *Agent) CooldownReady(kind string, tick, cooldown int) bool {
	if cooldown <= 0 {
		return true
	}
	last, ok := a.lastUsed[kind]
	return !ok || tick-last >= cooldown
}

func (a *Agent) MarkUsed(kind string, tick int) {
	if a.lastUsed == nil {
		a.lastUsed = map[string]int{}
	}
	a.lastUsed[kind] = tick
}

// CooldownAllow reports whether kind may be used at tick, at most once per
// cooldown ticks. An allowed use is recorded; a refused one is not.
func (a *Agent) CooldownAllow(kind string, tick, cooldown int) bool {
	if !a.CooldownReady(kind, tick, cooldown) {
		return false
	}
	a.MarkUsed(kind, tick)
	return true
}

func (a *Agent) LastUsed() map[string]int {
	out := make(map[string]int, len(a.lastUsed))
	for k, v := range a.lastUsed {
		out[k] = v
	}
	return out
}

func (a *Agent) RestoreLastUsed(m map[string]int) {
	a.lastUsed = make(map[string]int, len(m))
	for k, v := range m {
		a.lastUsed[k] = v
	}
}

// SetPlan replaces the queued steps. An empty list leaves the plan untouched.
func (a *Agent) SetPlan(steps []string) bool {
	var clean []string
	for _, s := range steps {
		if s = strings.TrimSpace(s); s != "" {
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		return false
	}
	a.Plan = clean
	return true
}

// ConsumePlanStep pops the head step if it names verb.
func (a *Agent) ConsumePlanStep(verb string) bool {
	if len(a.Plan) == 0 {
		return false
	}
	head := strings.ToUpper(strings.TrimSpace(a.Plan[0]))
	if head == verb || strings.HasPrefix(head, verb+" ") || strings.HasPrefix(head, verb+"(") || strings.HasPrefix(head, verb+":") {
		a.Plan = a.Plan[1:]
		return true
	}
	return false
}

// AgeUp advances the persona's age and recomputes the life stage. It returns
// true when the stage changed.
func (a *Agent) AgeUp(years int) bool {
	if years <= 0 {
		return false
	}
	prev := a.Persona.Stage
	a.Persona.Age += years
	a.Persona.Stage = StageForAge(a.Persona.Age)
	return prev != a.Persona.Stage
}

// DeathCause reports why a living agent must die now, if at all.
func (a *Agent) DeathCause() (string, bool) {
	if !a.Alive {
		return "", false
	}
	if a.Persona.Age >= MaxAge {
		return "old_age", true
	}
	return a.Physio.Terminal()
}

func (a *Agent) Die(tick int, cause string) {
	a.Alive = false
	a.Cause = cause
	a.DiedAt = tick
}
