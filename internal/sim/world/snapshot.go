package world

import (
	"fmt"
	"sort"

	"llmsim.ai/internal/persistence/snapshot"
	"llmsim.ai/internal/sim/agent"
	"llmsim.ai/internal/sim/catalogs"
	"llmsim.ai/internal/sim/economy"
	"llmsim.ai/internal/sim/inventory"
	"llmsim.ai/internal/sim/memory"
	"llmsim.ai/internal/sim/places"
	"llmsim.ai/internal/sim/schedule"
)

// ExportSnapshot captures the full world state. It must be called between ticks.
func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			RunID:   w.cfg.RunID,
			Tick:    w.tick,
		},
		Seed:          w.cfg.Seed,
		ItemsDigest:   w.items.Digest,
		Digest:        w.StateDigest(),
		NextEventSeq:  w.events.LastSeq() + 1,
		DroppedEvents: w.events.Dropped(),
	}

	for _, name := range w.graph.Names() {
		p, _ := w.graph.Get(name)
		ps := snapshot.PlaceV1{
			Name:      p.Name,
			Neighbors: append([]string(nil), p.Neighbors...),
			Tags:      append([]string(nil), p.Tags...),
			Purpose:   p.Purpose,
			Present:   p.Present(),
			Inventory: p.Inventory.Counts(),
		}
		if v := p.Vendor; v != nil {
			ps.Vendor = &snapshot.VendorV1{
				Prices:  copyMap(v.Prices),
				Stock:   copyMap(v.Stock),
				Buyback: copyMap(v.Buyback),
			}
		}
		snap.Places = append(snap.Places, ps)
	}

	for _, a := range w.Agents() {
		snap.Agents = append(snap.Agents, exportAgent(a))
	}
	for _, e := range w.events.All() {
		snap.Events = append(snap.Events, snapshot.EventV1(e))
	}
	return snap
}

func exportAgent(a *agent.Agent) snapshot.AgentV1 {
	p := a.Persona
	ph := a.Physio
	as := snapshot.AgentV1{
		ID: a.ID,
		Persona: snapshot.PersonaV1{
			Name: p.Name, Age: p.Age, Job: p.Job, City: p.City, Bio: p.Bio,
			Values: p.Values, Goals: p.Goals, Traits: p.Traits,
			Workplace: p.Workplace, Stage: string(p.Stage),
		},
		Physio: snapshot.PhysioV1{
			Energy: ph.Energy, Hunger: ph.Hunger, Stress: ph.Stress, Social: ph.Social,
			Fun: ph.Fun, Hygiene: ph.Hygiene, Comfort: ph.Comfort, Bladder: ph.Bladder,
			Mood: ph.Mood, Moodlets: copyMap(ph.Moodlets),
		},
		Location:     a.Location,
		Inventory:    a.Inventory.Counts(),
		Plan:         append([]string(nil), a.Plan...),
		Thought:      a.Thought,
		BusyUntil:    a.BusyUntil,
		LastUsed:     a.LastUsed(),
		LastEventSeq: a.LastEventSeq,
		Alive:        a.Alive,
		Cause:        a.Cause,
		DiedAt:       a.DiedAt,
	}
	for _, ap := range a.Calendar {
		as.Calendar = append(as.Calendar, snapshot.AppointmentV1(ap))
	}
	for _, it := range a.Memory.All() {
		as.Memory = append(as.Memory, snapshot.MemoryV1{
			Tick: it.Tick, Kind: string(it.Kind), Text: it.Text,
			Importance: it.Importance, Embedding: it.Embedding,
		})
	}
	as.MemoryFrom = a.Memory.ConsolidatedFrom()
	return as
}

// ImportSnapshot rebuilds a world from snap. The restored state must hash to
// the digest recorded at export time.
func ImportSnapshot(cfg Config, items *catalogs.ItemCatalog, snap snapshot.SnapshotV1) (*World, error) {
	if snap.Header.Version != snapshot.Version {
		return nil, fmt.Errorf("%w: %d", snapshot.ErrVersion, snap.Header.Version)
	}
	if items == nil {
		items = catalogs.Default()
	}
	if snap.ItemsDigest != "" && snap.ItemsDigest != items.Digest {
		return nil, fmt.Errorf("snapshot: item catalog digest mismatch")
	}
	if cfg.ID == "" {
		cfg.ID = snap.Header.WorldID
	}
	if cfg.RunID == "" {
		cfg.RunID = snap.Header.RunID
	}
	cfg.Seed = snap.Seed
	cfg.applyDefaults()

	g := places.NewGraph()
	for _, ps := range snap.Places {
		inv, err := fill(items, inventory.New(cfg.Tuning.Capacity.Place), ps.Inventory)
		if err != nil {
			return nil, fmt.Errorf("snapshot place %s: %w", ps.Name, err)
		}
		p := &places.Place{
			Name:      ps.Name,
			Neighbors: ps.Neighbors,
			Tags:      ps.Tags,
			Purpose:   ps.Purpose,
			Inventory: inv,
		}
		if v := ps.Vendor; v != nil {
			p.Vendor = economy.NewVendor(v.Prices, v.Stock, v.Buyback)
		}
		if err := g.AddPlace(p); err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
	}
	w, err := New(cfg, items, g)
	if err != nil {
		return nil, err
	}

	for _, as := range snap.Agents {
		a, err := w.importAgent(as)
		if err != nil {
			return nil, err
		}
		if a.Alive {
			if err := w.AddAgent(a, as.Location); err != nil {
				return nil, fmt.Errorf("snapshot: %w", err)
			}
			continue
		}
		if _, dup := w.agents[a.ID]; dup {
			return nil, fmt.Errorf("snapshot: %w: %s", ErrDuplicateAgent, a.ID)
		}
		a.Location = ""
		w.agents[a.ID] = a
		w.order = append(w.order, a.ID)
		sort.Strings(w.order)
	}

	for _, ps := range snap.Places {
		p, _ := w.graph.Get(ps.Name)
		if got := p.Present(); !sameStrings(got, ps.Present) {
			return nil, fmt.Errorf("snapshot place %s: roster %v, agents say %v", ps.Name, ps.Present, got)
		}
	}

	events := make([]Event, 0, len(snap.Events))
	for _, e := range snap.Events {
		events = append(events, Event(e))
	}
	w.events.restore(events, snap.NextEventSeq, snap.DroppedEvents)
	w.tick = snap.Header.Tick

	if snap.Digest != "" {
		if got := w.StateDigest(); got != snap.Digest {
			return nil, fmt.Errorf("snapshot: state digest mismatch at tick %d", w.tick)
		}
	}
	return w, nil
}

func (w *World) importAgent(as snapshot.AgentV1) (*agent.Agent, error) {
	inv, err := fill(w.items, inventory.New(w.tune.Capacity.Agent), as.Inventory)
	if err != nil {
		return nil, fmt.Errorf("snapshot agent %s: %w", as.ID, err)
	}
	ps := as.Persona
	a := agent.New(as.ID, agent.Persona{
		Name: ps.Name, Age: ps.Age, Job: ps.Job, City: ps.City, Bio: ps.Bio,
		Values: ps.Values, Goals: ps.Goals, Traits: ps.Traits,
		Workplace: ps.Workplace, Stage: agent.LifeStage(ps.Stage),
	}, w.NewMemory(), inv)

	ph := as.Physio
	a.Physio = agent.Physio{
		Energy: ph.Energy, Hunger: ph.Hunger, Stress: ph.Stress, Social: ph.Social,
		Fun: ph.Fun, Hygiene: ph.Hygiene, Comfort: ph.Comfort, Bladder: ph.Bladder,
		Mood: ph.Mood, Moodlets: copyMap(ph.Moodlets),
	}
	if a.Physio.Moodlets == nil {
		a.Physio.Moodlets = map[string]int{}
	}
	for _, ap := range as.Calendar {
		a.Calendar = append(a.Calendar, schedule.Appointment(ap))
	}
	mem := make([]memory.Item, 0, len(as.Memory))
	for _, m := range as.Memory {
		mem = append(mem, memory.Item{
			Tick: m.Tick, Kind: memory.Kind(m.Kind), Text: m.Text,
			Importance: m.Importance, Embedding: m.Embedding,
		})
	}
	a.Memory.Restore(mem, as.MemoryFrom)
	a.Plan = as.Plan
	a.Thought = as.Thought
	a.BusyUntil = as.BusyUntil
	a.RestoreLastUsed(as.LastUsed)
	a.LastEventSeq = as.LastEventSeq
	a.Alive = as.Alive
	a.Cause = as.Cause
	a.DiedAt = as.DiedAt
	return a, nil
}

func fill(items *catalogs.ItemCatalog, inv *inventory.Inventory, counts map[string]int) (*inventory.Inventory, error) {
	for _, id := range sortedKeys(counts) {
		def, ok := items.Get(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", catalogs.ErrUnknownItem, id)
		}
		if !inv.Add(def, counts[id]) {
			return nil, fmt.Errorf("inventory over capacity adding %d %s", counts[id], id)
		}
	}
	return inv, nil
}

func copyMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return nil
	}
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
