// Package world owns the place graph, the agent roster and the per-tick
// action-execution engine. A World is not safe for concurrent use: every
// mutation happens on the tick-resolution path.
package world

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"llmsim.ai/internal/sim/agent"
	"llmsim.ai/internal/sim/catalogs"
	"llmsim.ai/internal/sim/places"
	"llmsim.ai/internal/sim/tuning"
)

var ErrDuplicateAgent = errors.New("duplicate agent")

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type World struct {
	cfg   Config
	tune  tuning.Tuning
	items *catalogs.ItemCatalog
	graph *places.Graph
	log   *log.Logger

	agents    map[string]*agent.Agent
	order     []string
	locations map[string]string

	events  *EventQueue
	metrics *Metrics
	tick    int
	bridges [][2]string

	tickLogger TickLogger
}

// New seals the graph, repairing connectivity, and returns an empty world.
func New(cfg Config, items *catalogs.ItemCatalog, g *places.Graph) (*World, error) {
	cfg.applyDefaults()
	if items == nil {
		items = catalogs.Default()
	}
	if g == nil || g.Len() == 0 {
		return nil, fmt.Errorf("world %s: no places", cfg.ID)
	}
	bridges, err := g.Seal()
	if err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.ID, err)
	}
	for _, b := range bridges {
		cfg.Logger.Printf("world %s: bridged disconnected places %s <-> %s", cfg.ID, b[0], b[1])
	}
	return &World{
		cfg:       cfg,
		tune:      cfg.Tuning,
		items:     items,
		graph:     g,
		log:       cfg.Logger,
		agents:    map[string]*agent.Agent{},
		locations: map[string]string{},
		events:    NewEventQueue(cfg.Tuning.EventQueueCap),
		metrics:   newMetrics(),
		bridges:   bridges,
	}, nil
}

// AddAgent places a new agent at place. It is the only way agents enter a world.
func (w *World) AddAgent(a *agent.Agent, place string) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("agent: empty id")
	}
	if _, ok := w.agents[a.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, a.ID)
	}
	if !w.graph.IsValid(place) {
		return fmt.Errorf("agent %s: %w: %s", a.ID, places.ErrUnknownPlace, place)
	}
	if err := w.graph.Enter(place, a.ID); err != nil {
		return err
	}
	a.Location = place
	w.agents[a.ID] = a
	w.locations[a.ID] = place
	w.order = append(w.order, a.ID)
	sort.Strings(w.order)
	return nil
}

func (w *World) ID() string                  { return w.cfg.ID }
func (w *World) RunID() string               { return w.cfg.RunID }
func (w *World) Tick() int                   { return w.tick }
func (w *World) Graph() *places.Graph        { return w.graph }
func (w *World) Items() *catalogs.ItemCatalog { return w.items }
func (w *World) Tuning() tuning.Tuning       { return w.tune }
func (w *World) Events() *EventQueue         { return w.events }
func (w *World) Bridges() [][2]string        { return append([][2]string(nil), w.bridges...) }

func (w *World) SetTickLogger(l TickLogger) { w.tickLogger = l }

func (w *World) Agent(id string) (*agent.Agent, bool) {
	a, ok := w.agents[id]
	return a, ok
}

// Agents returns every agent, living or dead, sorted by id.
func (w *World) Agents() []*agent.Agent {
	out := make([]*agent.Agent, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.agents[id])
	}
	return out
}

func (w *World) AliveCount() int {
	n := 0
	for _, a := range w.agents {
		if a.Alive {
			n++
		}
	}
	return n
}

// Location is the place an agent is at; dead agents have none.
func (w *World) Location(agentID string) (string, bool) {
	p, ok := w.locations[agentID]
	return p, ok
}

// Metrics returns a copy of the counters.
func (w *World) Metrics() Metrics {
	m := w.metrics.clone()
	m.DroppedEvents = w.events.Dropped()
	return m
}

// BroadcastEvent appends an event at place. It is the only channel through
// which co-present agents perceive each other's actions.
func (w *World) BroadcastEvent(place string, e Event) (Event, error) {
	if !w.graph.IsValid(place) {
		return Event{}, fmt.Errorf("broadcast: %w: %s", places.ErrUnknownPlace, place)
	}
	e.Place = place
	e.Tick = w.tick
	w.metrics.Broadcasts++
	return w.events.Push(e), nil
}

// relocate moves an agent between rosters, asserting single presence.
func (w *World) relocate(a *agent.Agent, to string) {
	from := w.locations[a.ID]
	if from == to {
		return
	}
	if err := w.graph.Leave(from, a.ID); err != nil {
		invariant("relocate %s: %v", a.ID, err)
	}
	if err := w.graph.Enter(to, a.ID); err != nil {
		invariant("relocate %s: %v", a.ID, err)
	}
	w.locations[a.ID] = to
	a.Location = to
	w.checkPresence(a.ID)
}

func (w *World) kill(a *agent.Agent, cause string) Death {
	place := w.locations[a.ID]
	a.Die(w.tick, cause)
	if place != "" {
		if err := w.graph.Leave(place, a.ID); err != nil {
			invariant("kill %s: %v", a.ID, err)
		}
		delete(w.locations, a.ID)
		a.Location = ""
		_, _ = w.BroadcastEvent(place, Event{Actor: a.ID, Kind: EventDeath, Text: fmt.Sprintf("%s died (%s)", a.Persona.Name, cause)})
	}
	w.metrics.Deaths++
	w.checkPresence(a.ID)
	return Death{AgentID: a.ID, Tick: w.tick, Cause: cause, Place: place}
}
