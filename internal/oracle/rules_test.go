package oracle

import (
	"context"
	"testing"

	"llmsim.ai/internal/sim/action"
	"llmsim.ai/internal/sim/agent"
	"llmsim.ai/internal/sim/catalogs"
	"llmsim.ai/internal/sim/tuning"
	"llmsim.ai/internal/sim/world"
	"llmsim.ai/internal/worldfile"
)

func TestRules_NeedsFirst(t *testing.T) {
	rules := Rules{}
	base := func() world.AgentContext {
		return world.AgentContext{Tick: 0, Physio: agent.DefaultPhysio(), Location: "Home", Neighbors: []string{"Street"}}
	}
	cases := []struct {
		name string
		mut  func(*world.AgentContext)
		want action.Verb
	}{
		{"hungry", func(c *world.AgentContext) { c.Physio.Hunger = 0.9 }, action.Eat},
		{"tired", func(c *world.AgentContext) { c.Physio.Energy = 0.1 }, action.Sleep},
		{"bladder", func(c *world.AgentContext) { c.Physio.Bladder = 0.1 }, action.Interact},
		{"tired and peckish", func(c *world.AgentContext) {
			c.Physio.Energy = 0.1
			c.Physio.Hunger = 0.5
			c.Inventory = map[string]int{catalogs.CurrencyID: 5}
		}, action.Eat},
		// 10:00 with 5-minute ticks.
		{"working hours", func(c *world.AgentContext) { c.Tick = 120 }, action.Work},
		{"plan", func(c *world.AgentContext) { c.Plan = []string{"MOVE Park"} }, action.Move},
		{"lonely", func(c *world.AgentContext) {
			c.Physio.Social = 0.2
			c.Present = []world.KnownAgent{{ID: "bob", Name: "Bob"}}
		}, action.Say},
		{"bored", func(c *world.AgentContext) { c.Physio.Fun = 0.1 }, action.Move},
		{"content", func(*world.AgentContext) {}, action.Continue},
	}
	for _, tc := range cases {
		c := base()
		tc.mut(&c)
		raw, err := rules.Decide(context.Background(), Request{Context: c})
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		d, err := Decode(raw)
		if err != nil {
			t.Fatalf("%s: decode %q: %v", tc.name, raw, err)
		}
		if d.Action.Verb != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, d.Action, tc.want)
		}
	}
}

func TestRules_TownSurvivesADay(t *testing.T) {
	w, err := worldfile.LoadWorld("../../worlds/town.yaml", worldfile.BuildOptions{Tuning: tuning.Defaults()})
	if err != nil {
		t.Fatal(err)
	}
	start := w.AliveCount()
	d := NewResolver(Rules{}, ResolverConfig{})
	for i := 0; i < 288; i++ {
		w.StepOnce(context.Background(), d)
	}
	if got := w.AliveCount(); got != start || start == 0 {
		t.Fatalf("alive after a day: %d of %d", got, start)
	}
}
