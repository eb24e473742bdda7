package world

import (
	"io"
	"log"

	"github.com/google/uuid"

	"llmsim.ai/internal/sim/memory"
	"llmsim.ai/internal/sim/tuning"
)

type Config struct {
	ID     string
	Seed   int64
	RunID  string
	Tuning tuning.Tuning

	// Embedder backs agent memory; nil selects the hash embedder.
	Embedder memory.Embedder

	// Logger receives isolated per-agent failures. Nil discards them.
	Logger *log.Logger
}

func (c *Config) applyDefaults() {
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.Seed == 0 {
		c.Seed = 1337
	}
	if c.RunID == "" {
		c.RunID = uuid.NewString()
	}
	def := tuning.Defaults()
	t := &c.Tuning
	if t.TicksPerDay <= 0 {
		t.TicksPerDay = def.TicksPerDay
	}
	if t.MinutesPerTick <= 0 {
		t.MinutesPerTick = def.MinutesPerTick
	}
	if t.EventQueueCap < 4 {
		t.EventQueueCap = def.EventQueueCap
	}
	if t.WorkReward < 0 {
		t.WorkReward = def.WorkReward
	}
	if t.Capacity.Agent <= 0 {
		t.Capacity.Agent = def.Capacity.Agent
	}
	if t.Capacity.Place <= 0 {
		t.Capacity.Place = def.Capacity.Place
	}
	if t.Cooldowns == (tuning.Cooldowns{}) {
		t.Cooldowns = def.Cooldowns
	}
	if t.Durations == nil {
		t.Durations = def.Durations
	}
	if t.Drift == (tuning.Drift{}) {
		t.Drift = def.Drift
	}
	if t.Memory == (tuning.Memory{}) {
		t.Memory = def.Memory
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard, "", 0)
	}
}

// NewMemory returns an empty memory store configured from the world's tuning.
func (w *World) NewMemory() *memory.Store {
	m := w.tune.Memory
	return memory.NewStore(memory.Config{
		DecayPerHour:   m.DecayPerHour,
		MinutesPerTick: w.tune.MinutesPerTick,
		KeepRecent:     m.KeepRecent,
		Cap:            m.Cap,
		KeepImportance: m.KeepImportance,
		Dims:           m.EmbeddingDims,
	}, w.cfg.Embedder)
}
