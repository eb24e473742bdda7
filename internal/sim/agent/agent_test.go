package agent

import (
	"testing"

	"llmsim.ai/internal/sim/catalogs"
	"llmsim.ai/internal/sim/tuning"
)

func TestStageForAge_Thresholds(t *testing.T) {
	cases := map[int]LifeStage{
		0: Infant, 2: Infant, 3: Toddler, 5: Toddler, 6: Child, 12: Child,
		13: Teen, 19: Teen, 20: YoungAdult, 35: YoungAdult, 36: Adult, 64: Adult, 65: Elder, 99: Elder,
	}
	for age, want := range cases {
		if got := StageForAge(age); got != want {
			t.Fatalf("age %d: stage=%s want=%s", age, got, want)
		}
	}
}

func TestAgeUp_StageTransitionAndDeath(t *testing.T) {
	a := New("a1", Persona{Name: "Ada", Age: 19}, nil, nil)
	if a.Persona.Stage != Teen {
		t.Fatalf("stage=%s", a.Persona.Stage)
	}
	if !a.AgeUp(1) || a.Persona.Stage != YoungAdult {
		t.Fatalf("expected transition to young adult, got %s", a.Persona.Stage)
	}
	if a.AgeUp(1) {
		t.Fatalf("20->21 should not transition")
	}
	a.AgeUp(MaxAge)
	if cause, ok := a.DeathCause(); !ok || cause != "old_age" {
		t.Fatalf("cause=%q ok=%v", cause, ok)
	}
}

func TestJobSite(t *testing.T) {
	if got := (Persona{Job: "Chef"}).JobSite(); got != "Restaurant" {
		t.Fatalf("chef -> %s", got)
	}
	if got := (Persona{Job: "astronaut"}).JobSite(); got != DefaultJobSite {
		t.Fatalf("astronaut -> %s", got)
	}
	if got := (Persona{Job: "chef", Workplace: "Diner"}).JobSite(); got != "Diner" {
		t.Fatalf("workplace override -> %s", got)
	}
}

func TestPhysio_ClampedAfterEveryMutation(t *testing.T) {
	p := DefaultPhysio()
	d := tuning.Defaults().Drift
	for i := 0; i < 200; i++ {
		p.Drift(d)
		p.ApplyEffects(map[string]float64{catalogs.StatHunger: -0.7, catalogs.StatEnergy: 3})
		p.Sleep(d)
		p.TickMoodlets()
		for name, v := range map[string]float64{
			"energy": p.Energy, "hunger": p.Hunger, "stress": p.Stress, "social": p.Social,
			"fun": p.Fun, "hygiene": p.Hygiene, "comfort": p.Comfort, "bladder": p.Bladder,
		} {
			if v < 0 || v > 1 {
				t.Fatalf("iter %d: %s=%v out of range", i, name, v)
			}
		}
	}
	if p.Adjust("charisma", 1) {
		t.Fatalf("unknown stat should be ignored")
	}
}

func TestPhysio_MoodAndMoodlets(t *testing.T) {
	p := DefaultPhysio()
	if p.Mood != MoodCheerful {
		t.Fatalf("default mood=%s", p.Mood)
	}
	p.Adjust(catalogs.StatStress, 0.5)
	if p.Mood != MoodNeutral {
		t.Fatalf("stressed mood=%s", p.Mood)
	}

	p.Hunger = 0.95
	p.TickMoodlets()
	if p.Moodlets["starving"] != MoodletTicks {
		t.Fatalf("moodlets=%v", p.Moodlets)
	}
	p.Hunger = 0.2
	for i := 0; i < MoodletTicks-1; i++ {
		p.TickMoodlets()
	}
	if p.Moodlets["starving"] != 1 {
		t.Fatalf("starving should have 1 tick left: %v", p.Moodlets)
	}
	p.TickMoodlets()
	if _, ok := p.Moodlets["starving"]; ok {
		t.Fatalf("starving should have expired: %v", p.Moodlets)
	}
}

func TestPhysio_Terminal(t *testing.T) {
	p := DefaultPhysio()
	if _, ok := p.Terminal(); ok {
		t.Fatalf("default physio is not terminal")
	}
	p.Hunger = 1
	if cause, ok := p.Terminal(); !ok || cause != "starvation" {
		t.Fatalf("cause=%q", cause)
	}
}

func TestCooldownAllow(t *testing.T) {
	a := New("a1", Persona{Name: "Ada", Age: 30}, nil, nil)
	if !a.CooldownAllow(CooldownSay, 10, 6) {
		t.Fatalf("first say allowed")
	}
	for tick := 11; tick < 16; tick++ {
		if a.CooldownAllow(CooldownSay, tick, 6) {
			t.Fatalf("tick %d should be suppressed", tick)
		}
	}
	if !a.CooldownAllow(CooldownSay, 16, 6) {
		t.Fatalf("tick 16 should be allowed; suppressed attempts must not extend the window")
	}
}

func TestPlanSteps(t *testing.T) {
	a := New("a1", Persona{Name: "Ada", Age: 30}, nil, nil)
	if a.SetPlan([]string{" ", ""}) {
		t.Fatalf("empty plan must not replace")
	}
	a.SetPlan([]string{"move Cafe", "eat", "WORK"})
	a.SetPlan([]string{"sleep"})
	if len(a.Plan) != 1 || a.Plan[0] != "sleep" {
		t.Fatalf("plan should be replaced wholesale: %v", a.Plan)
	}
	if a.ConsumePlanStep("EAT") {
		t.Fatalf("head is sleep, not eat")
	}
	if !a.ConsumePlanStep("SLEEP") || len(a.Plan) != 0 {
		t.Fatalf("plan=%v", a.Plan)
	}
}
