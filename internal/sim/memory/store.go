// Package memory is the per-agent ranked memory log.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

type Kind string

const (
	Episodic     Kind = "episodic"
	Semantic     Kind = "semantic"
	Autobio      Kind = "autobio"
	TheoryOfMind Kind = "tom"
)

func (k Kind) Valid() bool {
	switch k {
	case Episodic, Semantic, Autobio, TheoryOfMind:
		return true
	}
	return false
}

// Item is write-once.
type Item struct {
	Tick       int       `json:"tick" msgpack:"tick"`
	Kind       Kind      `json:"kind" msgpack:"kind"`
	Text       string    `json:"text" msgpack:"text"`
	Importance float64   `json:"importance" msgpack:"importance"`
	Embedding  []float64 `json:"-" msgpack:"embedding"`
}

type Scored struct {
	Item  Item
	Score float64
}

// Ranking weights.
const (
	WeightSimilarity = 0.6
	WeightRecency    = 0.3
	WeightImportance = 0.1
)

type Config struct {
	DecayPerHour   float64
	MinutesPerTick int
	KeepRecent     int
	Cap            int
	KeepImportance float64
	Dims           int
}

func (c *Config) applyDefaults() {
	if c.DecayPerHour <= 0 || c.DecayPerHour > 1 {
		c.DecayPerHour = 0.85
	}
	if c.MinutesPerTick <= 0 {
		c.MinutesPerTick = 5
	}
	if c.KeepRecent <= 0 {
		c.KeepRecent = 200
	}
	if c.Cap <= 0 {
		c.Cap = 300
	}
	if c.KeepImportance <= 0 {
		c.KeepImportance = 0.7
	}
	if c.Dims <= 0 {
		c.Dims = 64
	}
}

type Store struct {
	cfg      Config
	embed    Embedder
	fallback HashEmbedder
	items    []Item
	// from is the first tick not yet consolidated.
	from int
}

// NewStore uses e for embeddings; nil selects the deterministic hash embedder.
func NewStore(cfg Config, e Embedder) *Store {
	cfg.applyDefaults()
	fb := HashEmbedder{Dims: cfg.Dims}
	if e == nil {
		e = fb
	}
	return &Store{cfg: cfg, embed: e, fallback: fb}
}

func (s *Store) Len() int { return len(s.items) }

// All returns a copy of every entry in insertion order.
func (s *Store) All() []Item { return append([]Item(nil), s.items...) }

// Recent returns up to n of the newest entries, oldest first.
func (s *Store) Recent(n int) []Item {
	if n <= 0 || n >= len(s.items) {
		return s.All()
	}
	return append([]Item(nil), s.items[len(s.items)-n:]...)
}

// Write appends it, embedding its text if it carries no vector. Embedder errors
// fall back to the hash embedder so a write never fails.
func (s *Store) Write(ctx context.Context, it Item) Item {
	if !it.Kind.Valid() {
		it.Kind = Episodic
	}
	it.Importance = clamp01(it.Importance)
	if len(it.Embedding) == 0 && it.Text != "" {
		vec, err := s.embed.Embed(ctx, it.Text)
		if err != nil || len(vec) == 0 {
			vec = s.fallback.vector(it.Text)
		}
		it.Embedding = vec
	}
	s.items = append(s.items, it)
	return it
}

func (s *Store) latestTick() int {
	latest := math.MinInt
	for _, it := range s.items {
		if it.Tick > latest {
			latest = it.Tick
		}
	}
	return latest
}

// Recall ranks every entry against query and returns the best k (all when k <= 0).
// Recency is measured against the newest entry, not the wall clock.
func (s *Store) Recall(ctx context.Context, query string, k int) []Scored {
	if len(s.items) == 0 {
		return nil
	}
	qv, err := s.embed.Embed(ctx, query)
	if err != nil || len(qv) == 0 {
		qv = s.fallback.vector(query)
	}
	latest := s.latestTick()
	out := make([]Scored, len(s.items))
	for i, it := range s.items {
		out[i] = Scored{Item: it, Score: s.score(query, qv, it, latest)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out
}

func (s *Store) score(query string, qv []float64, it Item, latest int) float64 {
	sim := Cosine(qv, it.Embedding)
	if len(qv) != len(it.Embedding) {
		sim = keywordOverlap(query, it.Text)
	}
	hours := float64(latest-it.Tick) * float64(s.cfg.MinutesPerTick) / 60
	if hours < 0 {
		hours = 0
	}
	recency := math.Pow(s.cfg.DecayPerHour, hours)
	return WeightSimilarity*sim + WeightRecency*recency + WeightImportance*it.Importance
}

// Consolidation limits.
const (
	consolidateMin   = 3
	summaryTexts     = 5
	summaryBoost     = 0.1
	topicMinRuneSize = 4
)

// CompressNightly first consolidates: episodic entries written since the last
// run are grouped by topic, and each group of at least three becomes one
// semantic summary. It then keeps semantic entries, entries at or above the
// keep importance, and the newest KeepRecent entries. When that union exceeds
// Cap the oldest survivors are dropped. It returns the number of entries
// removed; new summaries count as candidates for removal.
func (s *Store) CompressNightly(ctx context.Context) int {
	s.consolidate(ctx)
	n := len(s.items)
	recentFrom := n - s.cfg.KeepRecent
	kept := make([]Item, 0, n)
	for i, it := range s.items {
		if i >= recentFrom || it.Kind == Semantic || it.Importance >= s.cfg.KeepImportance {
			kept = append(kept, it)
		}
	}
	if len(kept) > s.cfg.Cap {
		kept = kept[len(kept)-s.cfg.Cap:]
	}
	s.items = kept
	return n - len(kept)
}

func (s *Store) consolidate(ctx context.Context) int {
	groups := map[string][]Item{}
	var order []string
	next := s.from
	for _, it := range s.items {
		if it.Tick < s.from {
			continue
		}
		if it.Tick >= next {
			next = it.Tick + 1
		}
		if it.Kind != Episodic {
			continue
		}
		key := topic(it.Text)
		if key == "" {
			continue
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], it)
	}
	s.from = next

	added := 0
	for _, key := range order {
		g := groups[key]
		if len(g) < consolidateMin {
			continue
		}
		s.Write(ctx, summarize(key, g))
		added++
	}
	return added
}

// topic is the first word longer than three letters, lowercased.
func topic(text string) string {
	for _, w := range strings.Fields(text) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len([]rune(w)) >= topicMinRuneSize {
			return strings.ToLower(w)
		}
	}
	return ""
}

func summarize(key string, g []Item) Item {
	tick, sum := g[0].Tick, 0.0
	for _, it := range g {
		if it.Tick > tick {
			tick = it.Tick
		}
		sum += it.Importance
	}
	tail := g
	if len(tail) > summaryTexts {
		tail = tail[len(tail)-summaryTexts:]
	}
	texts := make([]string, len(tail))
	for i, it := range tail {
		texts[i] = it.Text
	}
	return Item{
		Tick:       tick,
		Kind:       Semantic,
		Text:       fmt.Sprintf("Summary of %d events about '%s': %s", len(g), key, strings.Join(texts, "; ")),
		Importance: sum/float64(len(g)) + summaryBoost,
	}
}

// Restore replaces the log, used when loading a snapshot. from is the
// consolidation watermark reported by ConsolidatedFrom.
func (s *Store) Restore(items []Item, from int) {
	s.items = append([]Item(nil), items...)
	s.from = from
}

// ConsolidatedFrom is the first tick the next CompressNightly will consolidate.
func (s *Store) ConsolidatedFrom() int { return s.from }

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
