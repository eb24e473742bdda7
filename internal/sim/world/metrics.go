package world

import (
	"llmsim.ai/internal/sim/action"
	"llmsim.ai/internal/sim/economy"
)

type Metrics struct {
	Ticks          int                            `json:"ticks"`
	Actions        map[string]map[action.Verb]int `json:"actions"`
	Flows          map[string]map[string]int      `json:"flows"`
	Broadcasts     int                            `json:"broadcasts"`
	DroppedEvents  uint64                         `json:"dropped_events"`
	OracleFailures int                            `json:"oracle_failures"`
	OracleRepairs  int                            `json:"oracle_repairs"`
	AgentErrors    int                            `json:"agent_errors"`
	Deaths         int                            `json:"deaths"`
	Suppressed     int                            `json:"suppressed"`
}

func newMetrics() *Metrics {
	return &Metrics{
		Actions: map[string]map[action.Verb]int{},
		Flows:   map[string]map[string]int{},
	}
}

func (m *Metrics) countAction(agentID string, v action.Verb) {
	per := m.Actions[agentID]
	if per == nil {
		per = map[action.Verb]int{}
		m.Actions[agentID] = per
	}
	per[v]++
}

func (m *Metrics) recordFlows(flows []economy.Flow) {
	for _, f := range flows {
		per := m.Flows[f.Entity]
		if per == nil {
			per = map[string]int{}
			m.Flows[f.Entity] = per
		}
		per[f.Item] += f.Qty
	}
}

func (m *Metrics) clone() Metrics {
	out := *m
	out.Actions = make(map[string]map[action.Verb]int, len(m.Actions))
	for id, per := range m.Actions {
		cp := make(map[action.Verb]int, len(per))
		for k, v := range per {
			cp[k] = v
		}
		out.Actions[id] = cp
	}
	out.Flows = make(map[string]map[string]int, len(m.Flows))
	for id, per := range m.Flows {
		cp := make(map[string]int, len(per))
		for k, v := range per {
			cp[k] = v
		}
		out.Flows[id] = cp
	}
	return out
}
