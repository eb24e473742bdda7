package oracle

import (
	"context"
	"encoding/json"

	"llmsim.ai/internal/sim/catalogs"
)

// Rules is an offline oracle driven by needs and the clock. It answers in the
// same JSON shape a chat model would.
type Rules struct {
	TicksPerDay    int
	MinutesPerTick int
	// WorkStart and WorkEnd are the working hours, in minutes after midnight.
	WorkStart int
	WorkEnd   int
}

func (r Rules) withDefaults() Rules {
	if r.TicksPerDay <= 0 {
		r.TicksPerDay = 288
	}
	if r.MinutesPerTick <= 0 {
		r.MinutesPerTick = 5
	}
	if r.WorkStart == 0 && r.WorkEnd == 0 {
		r.WorkStart, r.WorkEnd = 9*60, 17*60
	}
	return r
}

type rulesReply struct {
	Action         any    `json:"action"`
	PrivateThought string `json:"private_thought,omitempty"`
}

func (r Rules) Decide(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := json.Marshal(r.choose(req))
	return string(b), err
}

func (r Rules) choose(req Request) rulesReply {
	r = r.withDefaults()
	c := req.Context
	ph := c.Physio
	minute := (c.Tick % r.TicksPerDay) * r.MinutesPerTick

	// Sleep and work keep an agent busy for many ticks, so needs that would run
	// out while busy are seen to first.
	switch {
	case ph.Hunger > 0.6:
		return rulesReply{Action: "EAT", PrivateThought: "I'm getting really hungry."}
	case ph.Bladder < 0.25:
		return rulesReply{
			Action:         map[string]any{"INTERACT": map[string]any{"verb": "use_bathroom"}},
			PrivateThought: "I need the bathroom.",
		}
	case ph.Energy < 0.3 && ph.Hunger > 0.4 && c.Inventory[catalogs.CurrencyID] > 0:
		return rulesReply{Action: "EAT", PrivateThought: "I should eat something before I rest."}
	case ph.Energy < 0.3:
		return rulesReply{Action: "SLEEP", PrivateThought: "I'm too tired to go on."}
	case minute >= r.WorkStart && minute < r.WorkEnd:
		return rulesReply{Action: "WORK", PrivateThought: "Time to get some work done."}
	case len(c.Plan) > 0:
		return rulesReply{Action: c.Plan[0], PrivateThought: "Sticking to my plan."}
	case ph.Social < 0.4 && len(c.Present) > 0:
		who := c.Present[c.Tick%len(c.Present)]
		return rulesReply{
			Action:         map[string]any{"SAY": map[string]any{"text": "Hi " + who.Name + ", how are you doing?"}},
			PrivateThought: "I'd like some company.",
		}
	case ph.Fun < 0.3 && len(c.Neighbors) > 0:
		to := c.Neighbors[c.Tick%len(c.Neighbors)]
		return rulesReply{
			Action:         map[string]any{"MOVE": map[string]any{"to": to}},
			PrivateThought: "I need a change of scene.",
		}
	}
	return rulesReply{Action: "CONTINUE"}
}
