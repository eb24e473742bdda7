// Package places holds the place graph: named nodes, neighbor edges keyed by
// place name, and the roster of agents present at each place.
package places

import (
	"errors"
	"fmt"
	"sort"

	"llmsim.ai/internal/sim/economy"
	"llmsim.ai/internal/sim/inventory"
)

var (
	ErrUnknownPlace   = errors.New("unknown place")
	ErrDuplicatePlace = errors.New("duplicate place")
	ErrAlreadyPresent = errors.New("agent already present")
	ErrNotPresent     = errors.New("agent not present")
)

// Capability tags.
const (
	TagFood    = "food"
	TagWork    = "work"
	TagRest    = "rest"
	TagTransit = "transit"
)

type Place struct {
	Name      string
	Neighbors []string
	Tags      []string
	Purpose   string
	Vendor    *economy.Vendor
	Inventory *inventory.Inventory

	present map[string]struct{}
}

func (p *Place) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (p *Place) Has(agentID string) bool {
	_, ok := p.present[agentID]
	return ok
}

// Present lists agent ids at the place, sorted.
func (p *Place) Present() []string {
	out := make([]string, 0, len(p.present))
	for id := range p.present {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (p *Place) enter(agentID string) error {
	if p.present == nil {
		p.present = map[string]struct{}{}
	}
	if _, ok := p.present[agentID]; ok {
		return fmt.Errorf("%w: %s at %s", ErrAlreadyPresent, agentID, p.Name)
	}
	p.present[agentID] = struct{}{}
	return nil
}

func (p *Place) leave(agentID string) error {
	if _, ok := p.present[agentID]; !ok {
		return fmt.Errorf("%w: %s at %s", ErrNotPresent, agentID, p.Name)
	}
	delete(p.present, agentID)
	return nil
}

// Graph owns every place. Edges are stored as neighbor names, never pointers,
// and are undirected once the graph is sealed.
type Graph struct {
	byName map[string]*Place
	order  []string
}

func NewGraph() *Graph {
	return &Graph{byName: map[string]*Place{}}
}

func (g *Graph) AddPlace(p *Place) error {
	if p == nil || p.Name == "" {
		return fmt.Errorf("place: empty name")
	}
	if _, ok := g.byName[p.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePlace, p.Name)
	}
	if p.Inventory == nil {
		p.Inventory = inventory.New(inventory.PlaceCapacity)
	}
	p.Neighbors = dedupe(p.Neighbors, p.Name)
	g.byName[p.Name] = p
	g.order = append(g.order, p.Name)
	return nil
}

func (g *Graph) Get(name string) (*Place, bool) {
	p, ok := g.byName[name]
	return p, ok
}

func (g *Graph) IsValid(name string) bool {
	_, ok := g.byName[name]
	return ok
}

func (g *Graph) Neighbors(name string) []string {
	p, ok := g.byName[name]
	if !ok {
		return nil
	}
	return append([]string(nil), p.Neighbors...)
}

// Names returns place names in insertion order.
func (g *Graph) Names() []string { return append([]string(nil), g.order...) }

func (g *Graph) Len() int { return len(g.order) }

// WithTag returns places carrying tag, in insertion order.
func (g *Graph) WithTag(tag string) []string {
	var out []string
	for _, n := range g.order {
		if g.byName[n].HasTag(tag) {
			out = append(out, n)
		}
	}
	return out
}

// Link adds an undirected edge between two existing places.
func (g *Graph) Link(a, b string) error {
	pa, ok := g.byName[a]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlace, a)
	}
	pb, ok := g.byName[b]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlace, b)
	}
	if a == b {
		return nil
	}
	pa.Neighbors = dedupe(append(pa.Neighbors, b), a)
	pb.Neighbors = dedupe(append(pb.Neighbors, a), b)
	return nil
}

// Seal validates neighbor references, makes every edge undirected and repairs
// connectivity. It returns the bridging edges it added.
func (g *Graph) Seal() ([][2]string, error) {
	for _, n := range g.order {
		for _, nb := range g.byName[n].Neighbors {
			if !g.IsValid(nb) {
				return nil, fmt.Errorf("place %s: neighbor %w: %s", n, ErrUnknownPlace, nb)
			}
		}
	}
	for _, n := range g.order {
		for _, nb := range g.byName[n].Neighbors {
			_ = g.Link(n, nb)
		}
	}
	return g.EnsureConnected(), nil
}

// EnsureConnected chains consecutive components through their first place so
// the whole graph is one component.
func (g *Graph) EnsureConnected() [][2]string {
	comps := g.Components()
	var bridges [][2]string
	for i := 0; i+1 < len(comps); i++ {
		a, b := comps[i][0], comps[i+1][0]
		_ = g.Link(a, b)
		bridges = append(bridges, [2]string{a, b})
	}
	return bridges
}

// Components lists connected components, each in BFS order, ordered by the
// insertion index of their first place.
func (g *Graph) Components() [][]string {
	seen := make(map[string]bool, len(g.order))
	var comps [][]string
	for _, start := range g.order {
		if seen[start] {
			continue
		}
		comps = append(comps, g.bfs(start, seen))
	}
	return comps
}

func (g *Graph) Reachable(from, to string) bool {
	if !g.IsValid(from) || !g.IsValid(to) {
		return false
	}
	for _, n := range g.bfs(from, map[string]bool{}) {
		if n == to {
			return true
		}
	}
	return false
}

func (g *Graph) bfs(start string, seen map[string]bool) []string {
	seen[start] = true
	queue := []string{start}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)
		for _, nb := range g.byName[cur].Neighbors {
			if _, ok := g.byName[nb]; !ok || seen[nb] {
				continue
			}
			seen[nb] = true
			queue = append(queue, nb)
		}
	}
	return out
}

// Enter adds agentID to the roster of place name.
func (g *Graph) Enter(name, agentID string) error {
	p, ok := g.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlace, name)
	}
	return p.enter(agentID)
}

func (g *Graph) Leave(name, agentID string) error {
	p, ok := g.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlace, name)
	}
	return p.leave(agentID)
}

// Locate scans every roster for agentID. Used by invariant checks, not the hot path.
func (g *Graph) Locate(agentID string) []string {
	var out []string
	for _, n := range g.order {
		if g.byName[n].Has(agentID) {
			out = append(out, n)
		}
	}
	return out
}

func dedupe(names []string, self string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0:0]
	for _, n := range names {
		if n == "" || n == self || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Nearest returns the closest place carrying tag by hop count from from,
// including from itself. Ties break on neighbor order.
func (g *Graph) Nearest(from, tag string) (string, bool) {
	if !g.IsValid(from) {
		return "", false
	}
	for _, n := range g.bfs(from, map[string]bool{}) {
		if g.byName[n].HasTag(tag) {
			return n, true
		}
	}
	return "", false
}
