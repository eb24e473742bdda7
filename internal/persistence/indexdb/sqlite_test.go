package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"llmsim.ai/internal/sim/economy"
	"llmsim.ai/internal/sim/world"
)

func sampleTick(tick int) world.TickLogEntry {
	return world.TickLogEntry{
		RunID:   "run-1",
		WorldID: "town",
		Tick:    tick,
		Digest:  "d",
		Actions: []world.RecordedAction{
			{AgentID: "ada", Requested: "INTERACT(buy coffee)", Resolved: "INTERACT(buy coffee)", Verb: "INTERACT", Result: "ok"},
			{AgentID: "bob", Requested: "DANCE", Resolved: "THINK(I lost my train of thought)", Verb: "THINK", Result: "ok", Attempts: 4, Failed: true},
		},
		Flows: []economy.Flow{
			{Entity: "ada", Item: "money", Qty: -5},
			{Entity: "ada", Item: "coffee", Qty: 1},
		},
		Events:         []world.Event{{Seq: 1, Tick: tick, Place: "Cafe", Actor: "ada", Kind: world.EventTrade, Text: "ada bought coffee"}},
		OracleFailures: 1,
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.WriteTick(world.TickLogEntry{Tick: 3})
	s.SetMeta("k", "v")

	st := s.Stats()
	if st.DropTickTotal != 2 {
		t.Fatalf("DropTickTotal=%d want=2", st.DropTickTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_WritesTickTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	idx, err := OpenSQLite(path, "run-1")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	for tick := 0; tick < 3; tick++ {
		e := sampleTick(tick)
		if tick == 2 {
			e.Deaths = []world.Death{{AgentID: "bob", Tick: 2, Cause: "starvation", Place: "Park"}}
		}
		if err := idx.WriteTick(e); err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if st := idx.Stats(); st.TicksWritten != 3 || st.DropTickTotal != 0 {
		t.Fatalf("stats=%+v", st)
	}
	// Writes after close are ignored.
	if err := idx.WriteTick(sampleTick(9)); err != nil {
		t.Fatalf("WriteTick after close: %v", err)
	}

	ro, err := OpenSQLite(path, "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer ro.Close()
	ctx := context.Background()

	ticks, err := ro.Ticks(ctx, "run-1", 1, 10)
	if err != nil {
		t.Fatalf("Ticks: %v", err)
	}
	if len(ticks) != 2 || ticks[0].Tick != 1 || ticks[1].Actions != 2 || ticks[1].OracleFailures != 1 {
		t.Fatalf("ticks=%+v", ticks)
	}

	flows, err := ro.Flows(ctx, "run-1")
	if err != nil {
		t.Fatalf("Flows: %v", err)
	}
	want := []FlowTotal{{Entity: "ada", Item: "coffee", Qty: 3}, {Entity: "ada", Item: "money", Qty: -15}}
	if diff := cmp.Diff(want, flows); diff != "" {
		t.Fatalf("flows mismatch (-want +got):\n%s", diff)
	}

	fails, err := ro.Failures(ctx, "run-1")
	if err != nil {
		t.Fatalf("Failures: %v", err)
	}
	if len(fails) != 3 || fails[0].AgentID != "bob" || fails[0].Attempts != 4 {
		t.Fatalf("failures=%+v", fails)
	}

	deaths, err := ro.Deaths(ctx, "run-1")
	if err != nil {
		t.Fatalf("Deaths: %v", err)
	}
	if len(deaths) != 1 || deaths[0].Cause != "starvation" || deaths[0].Place != "Park" {
		t.Fatalf("deaths=%+v", deaths)
	}

	runID, err := ro.Meta(ctx, "run_id")
	if err != nil || runID != "run-1" {
		t.Fatalf("meta run_id=%q err=%v", runID, err)
	}
}
