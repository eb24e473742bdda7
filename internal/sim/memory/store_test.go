package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestRecall_KAtLeastCountReturnsAll(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{}, nil)
	for i := 0; i < 7; i++ {
		s.Write(ctx, Item{Tick: i, Kind: Episodic, Text: fmt.Sprintf("note %d", i), Importance: 0.5})
	}
	if got := len(s.Recall(ctx, "note", 7)); got != 7 {
		t.Fatalf("k=7 got=%d", got)
	}
	if got := len(s.Recall(ctx, "note", 100)); got != 7 {
		t.Fatalf("k=100 got=%d", got)
	}
	if got := len(s.Recall(ctx, "note", 3)); got != 3 {
		t.Fatalf("k=3 got=%d", got)
	}
}

func TestRecall_RecencyRanksIndependently(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{}, nil)
	s.Write(ctx, Item{Tick: 0, Kind: Episodic, Text: "met bob at the cafe", Importance: 0.5})
	s.Write(ctx, Item{Tick: 120, Kind: Episodic, Text: "met bob at the cafe", Importance: 0.5})

	got := s.Recall(ctx, "met bob at the cafe", 2)
	if got[0].Item.Tick != 120 {
		t.Fatalf("newest should rank first: %+v", got)
	}
	// 120 ticks * 5 minutes = 10 hours.
	wantGap := WeightRecency * (1 - math.Pow(0.85, 10))
	if gap := got[0].Score - got[1].Score; math.Abs(gap-wantGap) > 1e-9 {
		t.Fatalf("score gap=%v want=%v", gap, wantGap)
	}
}

func TestRecall_ImportanceNeverLowersRank(t *testing.T) {
	ctx := context.Background()
	for _, imp := range []float64{0.3, 0.5, 0.9, 1.0} {
		s := NewStore(Config{}, nil)
		s.Write(ctx, Item{Tick: 5, Kind: Episodic, Text: "watered the garden", Importance: 0.2})
		s.Write(ctx, Item{Tick: 5, Kind: Episodic, Text: "watered the garden", Importance: imp})
		got := s.Recall(ctx, "garden", 0)
		if got[0].Item.Importance != imp {
			t.Fatalf("importance %.1f should outrank 0.2: %+v", imp, got)
		}
	}
}

func TestRecall_SimilarityDominatesAtEqualRecency(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{}, nil)
	s.Write(ctx, Item{Tick: 1, Kind: Episodic, Text: "bought coffee from the vendor", Importance: 0.1})
	s.Write(ctx, Item{Tick: 1, Kind: Episodic, Text: "painted a sunset sketch", Importance: 0.1})
	got := s.Recall(ctx, "coffee vendor", 1)
	if got[0].Item.Text != "bought coffee from the vendor" {
		t.Fatalf("top=%q", got[0].Item.Text)
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float64, error) {
	return nil, errors.New("model offline")
}

func TestWrite_EmbedderFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{Dims: 32}, failingEmbedder{})
	it := s.Write(ctx, Item{Tick: 1, Kind: "bogus", Text: "hello world", Importance: 4})
	if len(it.Embedding) != 32 {
		t.Fatalf("embedding dims=%d want=32", len(it.Embedding))
	}
	if it.Kind != Episodic || it.Importance != 1 {
		t.Fatalf("kind/importance not normalized: %+v", it)
	}
	if got := s.Recall(ctx, "hello", 1); len(got) != 1 {
		t.Fatalf("recall after fallback: %+v", got)
	}
}

func TestCompressNightly_PruningScenario(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{}, nil)
	for i := 0; i < 310; i++ {
		imp := 0.1
		if i == 3 {
			imp = 0.9
		}
		s.Write(ctx, Item{Tick: i, Kind: Episodic, Text: fmt.Sprintf("entry %d", i), Importance: imp})
	}
	removed := s.CompressNightly(ctx)
	if s.Len() > 300 {
		t.Fatalf("len=%d > 300", s.Len())
	}
	// The 310 entries share a topic, so one summary joins the candidates.
	if removed != 311-s.Len() {
		t.Fatalf("removed=%d len=%d", removed, s.Len())
	}
	found := false
	for _, it := range s.All() {
		if it.Importance == 0.9 {
			found = true
		}
	}
	if !found {
		t.Fatalf("importance-0.9 entry was pruned")
	}
	if last := s.All()[s.Len()-1]; last.Tick != 309 || last.Kind != Semantic {
		t.Fatalf("summary missing: %+v", last)
	}
	if prev := s.All()[s.Len()-2]; prev.Tick != 309 || prev.Kind != Episodic {
		t.Fatalf("newest entry lost: %+v", prev)
	}
}

func TestCompressNightly_KeepsSemanticAndCaps(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{KeepRecent: 10, Cap: 20}, nil)
	for i := 0; i < 50; i++ {
		kind := Episodic
		if i%5 == 0 {
			kind = Semantic
		}
		s.Write(ctx, Item{Tick: i, Kind: kind, Text: "x", Importance: 0.1})
	}
	s.CompressNightly(ctx)
	// 8 semantic entries outside the recent window plus the 10 most recent.
	if s.Len() != 18 {
		t.Fatalf("len=%d want=18", s.Len())
	}
	for _, it := range s.All() {
		if it.Tick < 40 && it.Kind != Semantic {
			t.Fatalf("unexpected survivor %+v", it)
		}
	}
}

func TestCompressNightly_CapDropsOldestSurvivors(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{KeepRecent: 10, Cap: 12}, nil)
	for i := 0; i < 50; i++ {
		kind := Episodic
		if i%5 == 0 {
			kind = Semantic
		}
		s.Write(ctx, Item{Tick: i, Kind: kind, Text: "x"})
	}
	s.CompressNightly(ctx)
	all := s.All()
	if len(all) != 12 {
		t.Fatalf("len=%d want=12", len(all))
	}
	if all[0].Tick != 30 || all[1].Tick != 35 || all[2].Tick != 40 {
		t.Fatalf("survivors start %d,%d,%d want 30,35,40", all[0].Tick, all[1].Tick, all[2].Tick)
	}
}

func TestCompressNightly_ConsolidatesByTopic(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{KeepRecent: 1, KeepImportance: 0.9}, nil)
	entries := []Item{
		{Text: "Coffee at the cafe with Bob", Importance: 0.95},
		{Text: "coffee again, too strong", Importance: 0.95},
		{Text: "Coffee: third cup today", Importance: 0.95},
		{Text: "Walked to the park"},
		{Text: "Walked home late"},
		{Text: "ok"},
	}
	for i, it := range entries {
		it.Tick, it.Kind = i, Episodic
		s.Write(ctx, it)
	}
	s.Write(ctx, Item{Tick: 6, Kind: Semantic, Text: "Coffee is bitter", Importance: 0.2})

	removed := s.CompressNightly(ctx)
	summaries := func() []Item {
		var out []Item
		for _, it := range s.All() {
			if strings.HasPrefix(it.Text, "Summary of") {
				out = append(out, it)
			}
		}
		return out
	}
	got := summaries()
	if len(got) != 1 {
		t.Fatalf("summaries=%+v", got)
	}
	sum := got[0]
	if sum.Kind != Semantic || sum.Tick != 2 || sum.Importance != 1 || len(sum.Embedding) == 0 {
		t.Fatalf("summary=%+v", sum)
	}
	if !strings.HasPrefix(sum.Text, "Summary of 3 events about 'coffee': ") || !strings.Contains(sum.Text, "third cup") {
		t.Fatalf("text=%q", sum.Text)
	}
	// Only the walks and "ok" go.
	if removed != 3 || s.Len() != 5 {
		t.Fatalf("removed=%d len=%d", removed, s.Len())
	}
	if s.ConsolidatedFrom() != 7 {
		t.Fatalf("from=%d", s.ConsolidatedFrom())
	}

	// Two more coffee entries alone are too few, and the older three were
	// already summarized.
	for i := 7; i < 9; i++ {
		s.Write(ctx, Item{Tick: i, Kind: Episodic, Text: "coffee once more"})
	}
	s.CompressNightly(ctx)
	if got := summaries(); len(got) != 1 {
		t.Fatalf("summaries after second night=%+v", got)
	}
}

func TestRestore_KeepsConsolidationWatermark(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{}, nil)
	items := []Item{
		{Tick: 1, Kind: Episodic, Text: "rain all morning"},
		{Tick: 2, Kind: Episodic, Text: "rain at lunch"},
		{Tick: 3, Kind: Episodic, Text: "rain again"},
	}
	s.Restore(items, 4)
	s.CompressNightly(ctx)
	if s.Len() != 3 {
		t.Fatalf("restored entries were consolidated again: %+v", s.All())
	}
	s.Restore(items, 0)
	s.CompressNightly(ctx)
	if s.Len() != 4 || s.All()[3].Kind != Semantic {
		t.Fatalf("entries=%+v", s.All())
	}
}
