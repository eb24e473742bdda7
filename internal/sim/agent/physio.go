package agent

import (
	"sort"

	"llmsim.ai/internal/sim/catalogs"
	"llmsim.ai/internal/sim/tuning"
)

const (
	MoodCheerful = "cheerful"
	MoodNeutral  = "neutral"
)

// MoodletTicks is how long a triggered moodlet lasts.
const MoodletTicks = 5

// Physio is the homeostatic state. Every scalar stays in [0,1].
type Physio struct {
	Energy   float64        `json:"energy" msgpack:"energy"`
	Hunger   float64        `json:"hunger" msgpack:"hunger"`
	Stress   float64        `json:"stress" msgpack:"stress"`
	Social   float64        `json:"social" msgpack:"social"`
	Fun      float64        `json:"fun" msgpack:"fun"`
	Hygiene  float64        `json:"hygiene" msgpack:"hygiene"`
	Comfort  float64        `json:"comfort" msgpack:"comfort"`
	Bladder  float64        `json:"bladder" msgpack:"bladder"`
	Mood     string         `json:"mood" msgpack:"mood"`
	Moodlets map[string]int `json:"moodlets,omitempty" msgpack:"moodlets"`
}

func DefaultPhysio() Physio {
	p := Physio{
		Energy: 0.8, Hunger: 0.3, Stress: 0.2,
		Social: 0.5, Fun: 0.5, Hygiene: 0.8, Comfort: 0.8, Bladder: 0.8,
		Moodlets: map[string]int{},
	}
	p.refreshMood()
	return p
}

func (p *Physio) stat(name string) *float64 {
	switch name {
	case catalogs.StatEnergy:
		return &p.Energy
	case catalogs.StatHunger:
		return &p.Hunger
	case catalogs.StatStress:
		return &p.Stress
	case catalogs.StatSocial:
		return &p.Social
	case catalogs.StatFun:
		return &p.Fun
	case catalogs.StatHygiene:
		return &p.Hygiene
	case catalogs.StatComfort:
		return &p.Comfort
	case catalogs.StatBladder:
		return &p.Bladder
	}
	return nil
}

// Adjust adds delta to a named stat and clamps. Unknown stats are ignored.
func (p *Physio) Adjust(name string, delta float64) bool {
	s := p.stat(name)
	if s == nil {
		return false
	}
	*s = clamp01(*s + delta)
	p.refreshMood()
	return true
}

// ApplyEffects applies item effects in stat-name order.
func (p *Physio) ApplyEffects(effects map[string]float64) {
	names := make([]string, 0, len(effects))
	for k := range effects {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		p.Adjust(k, effects[k])
	}
}

// Drift applies one tick of passive decay.
func (p *Physio) Drift(d tuning.Drift) {
	p.Energy = clamp01(p.Energy + d.Energy)
	p.Hunger = clamp01(p.Hunger + d.Hunger)
	p.Stress = clamp01(p.Stress + d.Stress)
	p.Social = clamp01(p.Social + d.Social)
	p.Fun = clamp01(p.Fun + d.Fun)
	p.Hygiene = clamp01(p.Hygiene + d.Hygiene)
	p.Comfort = clamp01(p.Comfort + d.Comfort)
	p.Bladder = clamp01(p.Bladder + d.Bladder)
	p.refreshMood()
}

func (p *Physio) Sleep(d tuning.Drift) {
	p.Energy = clamp01(p.Energy + d.SleepEnergy)
	p.Stress = clamp01(p.Stress + d.SleepStress)
	p.refreshMood()
}

// Clamp forces every scalar back into [0,1].
func (p *Physio) Clamp() {
	for _, s := range []*float64{&p.Energy, &p.Hunger, &p.Stress, &p.Social, &p.Fun, &p.Hygiene, &p.Comfort, &p.Bladder} {
		*s = clamp01(*s)
	}
	p.refreshMood()
}

// TickMoodlets counts active moodlets down and re-arms those whose trigger holds.
func (p *Physio) TickMoodlets() {
	if p.Moodlets == nil {
		p.Moodlets = map[string]int{}
	}
	for k, left := range p.Moodlets {
		if left <= 1 {
			delete(p.Moodlets, k)
		} else {
			p.Moodlets[k] = left - 1
		}
	}
	triggers := []struct {
		label string
		on    bool
	}{
		{"starving", p.Hunger > 0.9},
		{"exhausted", p.Energy < 0.1},
		{"lonely", p.Social < 0.1},
		{"bored", p.Fun < 0.1},
		{"dirty", p.Hygiene < 0.1},
		{"uncomfortable", p.Comfort < 0.1},
		{"desperate", p.Bladder < 0.05},
		{"overwhelmed", p.Stress > 0.9},
	}
	for _, tr := range triggers {
		if tr.on {
			p.Moodlets[tr.label] = MoodletTicks
		}
	}
}

// ActiveMoodlets returns moodlet labels, sorted.
func (p *Physio) ActiveMoodlets() []string {
	out := make([]string, 0, len(p.Moodlets))
	for k := range p.Moodlets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (p *Physio) refreshMood() {
	if p.Stress < 0.3 && p.Energy > 0.5 {
		p.Mood = MoodCheerful
	} else {
		p.Mood = MoodNeutral
	}
}

// Terminal returns a cause of death when a scalar has hit a fatal bound.
func (p *Physio) Terminal() (string, bool) {
	switch {
	case p.Hunger >= 1:
		return "starvation", true
	case p.Energy <= 0:
		return "exhaustion", true
	case p.Stress >= 1:
		return "stress", true
	case p.Bladder <= 0:
		return "bladder", true
	}
	return "", false
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
