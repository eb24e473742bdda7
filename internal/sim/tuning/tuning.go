package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickIntervalMs int `yaml:"tick_interval_ms"`
	TicksPerDay    int `yaml:"ticks_per_day"`
	MinutesPerTick int `yaml:"minutes_per_tick"`
	EventQueueCap  int `yaml:"event_queue_cap"`
	WorkReward     int `yaml:"work_reward"`

	Capacity  Capacity       `yaml:"capacity"`
	Cooldowns Cooldowns      `yaml:"cooldowns"`
	Durations map[string]int `yaml:"durations"`
	Drift     Drift          `yaml:"drift"`
	Memory    Memory         `yaml:"memory"`
	Oracle    Oracle         `yaml:"oracle"`
}

type Capacity struct {
	Agent float64 `yaml:"agent"`
	Place float64 `yaml:"place"`
}

type Cooldowns struct {
	SayTicks     int `yaml:"say_ticks"`
	EatTicks     int `yaml:"eat_ticks"`
	ThoughtTicks int `yaml:"thought_ticks"`
}

// Drift is the per-tick homeostatic change. Positive values raise the stat.
type Drift struct {
	Energy  float64 `yaml:"energy"`
	Hunger  float64 `yaml:"hunger"`
	Stress  float64 `yaml:"stress"`
	Social  float64 `yaml:"social"`
	Fun     float64 `yaml:"fun"`
	Hygiene float64 `yaml:"hygiene"`
	Comfort float64 `yaml:"comfort"`
	Bladder float64 `yaml:"bladder"`

	SleepEnergy float64 `yaml:"sleep_energy"`
	SleepStress float64 `yaml:"sleep_stress"`
}

type Memory struct {
	DecayPerHour    float64 `yaml:"decay_per_hour"`
	KeepRecent      int     `yaml:"keep_recent"`
	Cap             int     `yaml:"cap"`
	KeepImportance  float64 `yaml:"keep_importance"`
	WriteImportance float64 `yaml:"write_importance"`
	RecallK         int     `yaml:"recall_k"`
	EmbeddingDims   int     `yaml:"embedding_dims"`
}

type Oracle struct {
	TimeoutMs int `yaml:"timeout_ms"`
	// MaxRepairs of 0 turns repairs off. An absent key keeps the default.
	MaxRepairs int `yaml:"max_repairs"`
	BackoffMs  int `yaml:"backoff_ms"`
}

func Defaults() Tuning {
	return Tuning{
		TickIntervalMs: 1000,
		TicksPerDay:    288,
		MinutesPerTick: 5,
		EventQueueCap:  512,
		WorkReward:     10,
		Capacity:       Capacity{Agent: 9999, Place: 100},
		Cooldowns:      Cooldowns{SayTicks: 6, EatTicks: 9, ThoughtTicks: 3},
		Durations: map[string]int{
			"SAY": 1, "MOVE": 2, "INTERACT": 2, "THINK": 1, "PLAN": 2,
			"SLEEP": 24, "EAT": 3, "WORK": 12, "CONTINUE": 0,
		},
		// Per 5-minute tick: a fed, rested agent gets hungry a few
		// times a day and needs about two naps.
		Drift: Drift{
			Energy: -0.003, Hunger: 0.004, Stress: 0.001,
			Social: -0.002, Fun: -0.002, Hygiene: -0.002, Comfort: -0.002, Bladder: -0.004,
			SleepEnergy: 0.5, SleepStress: -0.15,
		},
		Memory: Memory{
			DecayPerHour: 0.85, KeepRecent: 200, Cap: 300, KeepImportance: 0.7,
			WriteImportance: 0.6, RecallK: 5, EmbeddingDims: 64,
		},
		Oracle: Oracle{TimeoutMs: 30000, MaxRepairs: 3, BackoffMs: 250},
	}
}

// Load reads a tuning file. Keys missing from the file keep their default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickIntervalMs < 0 {
		return fmt.Errorf("tick_interval_ms must be >= 0")
	}
	if t.TicksPerDay <= 0 || t.MinutesPerTick <= 0 {
		return fmt.Errorf("ticks_per_day and minutes_per_tick must be > 0")
	}
	if t.EventQueueCap < 4 {
		return fmt.Errorf("event_queue_cap must be >= 4")
	}
	if t.Memory.Cap < t.Memory.KeepRecent {
		return fmt.Errorf("memory.cap (%d) < memory.keep_recent (%d)", t.Memory.Cap, t.Memory.KeepRecent)
	}
	if t.Oracle.MaxRepairs < 0 {
		return fmt.Errorf("oracle.max_repairs must be >= 0")
	}
	for verb, d := range t.Durations {
		if d < 0 {
			return fmt.Errorf("durations.%s must be >= 0", verb)
		}
	}
	return nil
}

func (t Tuning) Duration(verb string) int {
	if d, ok := t.Durations[verb]; ok {
		return d
	}
	return Defaults().Durations[verb]
}
