package observer

import (
	"llmsim.ai/internal/sim/world"
)

type Frame struct {
	Type           string                 `json:"type"`
	WorldID        string                 `json:"world_id"`
	RunID          string                 `json:"run_id,omitempty"`
	Tick           int                    `json:"tick"`
	Phase          string                 `json:"phase,omitempty"`
	Digest         string                 `json:"digest"`
	Alive          int                    `json:"alive"`
	OracleFailures int                    `json:"oracle_failures,omitempty"`
	Agents         []AgentView            `json:"agents,omitempty"`
	Actions        []world.RecordedAction `json:"actions,omitempty"`
	Events         []world.Event          `json:"events,omitempty"`
	Deaths         []world.Death          `json:"deaths,omitempty"`
}

type AgentView struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Place     string   `json:"place,omitempty"`
	Alive     bool     `json:"alive"`
	Mood      string   `json:"mood"`
	Moodlets  []string `json:"moodlets,omitempty"`
	Energy    float64  `json:"energy"`
	Hunger    float64  `json:"hunger"`
	Stress    float64  `json:"stress"`
	Balance   int      `json:"balance"`
	BusyUntil int      `json:"busy_until"`
	Thought   string   `json:"thought,omitempty"`
}

// Views snapshots every agent. Call it between ticks.
func Views(w *world.World) []AgentView {
	agents := w.Agents()
	out := make([]AgentView, 0, len(agents))
	for _, a := range agents {
		place, _ := w.Location(a.ID)
		out = append(out, AgentView{
			ID:        a.ID,
			Name:      a.Persona.Name,
			Place:     place,
			Alive:     a.Alive,
			Mood:      a.Physio.Mood,
			Moodlets:  a.Physio.ActiveMoodlets(),
			Energy:    a.Physio.Energy,
			Hunger:    a.Physio.Hunger,
			Stress:    a.Physio.Stress,
			Balance:   a.Inventory.Balance(),
			BusyUntil: a.BusyUntil,
			Thought:   a.Thought,
		})
	}
	return out
}

// TickFrame builds the frame published after a tick.
func TickFrame(e world.TickLogEntry, phase string, alive int, agents []AgentView) Frame {
	return Frame{
		Type:           "TICK",
		WorldID:        e.WorldID,
		RunID:          e.RunID,
		Tick:           e.Tick,
		Phase:          phase,
		Digest:         e.Digest,
		Alive:          alive,
		OracleFailures: e.OracleFailures,
		Agents:         agents,
		Actions:        e.Actions,
		Events:         e.Events,
		Deaths:         e.Deaths,
	}
}
