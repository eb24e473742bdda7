// Package inventory implements a weight-capacitated stack container.
package inventory

import "llmsim.ai/internal/sim/catalogs"

const weightEpsilon = 1e-9

const (
	AgentCapacity = 9999
	PlaceCapacity = 100
)

type Stack struct {
	Item catalogs.ItemDef
	Qty  int
}

// Inventory holds at most one stack per item id, in insertion order.
// The total weight never exceeds the capacity.
type Inventory struct {
	capacity float64
	stacks   []Stack
}

func New(capacity float64) *Inventory {
	if capacity < 0 {
		capacity = 0
	}
	return &Inventory{capacity: capacity}
}

func (inv *Inventory) Capacity() float64 { return inv.capacity }

func (inv *Inventory) Weight() float64 {
	var w float64
	for _, s := range inv.stacks {
		w += s.Item.Weight * float64(s.Qty)
	}
	return w
}

func (inv *Inventory) Free() float64 { return inv.capacity - inv.Weight() }

// Fits reports whether qty more of item would stay within capacity.
func (inv *Inventory) Fits(item catalogs.ItemDef, qty int) bool {
	if qty < 0 {
		return false
	}
	return inv.Weight()+item.Weight*float64(qty) <= inv.capacity+weightEpsilon
}

// FitsSwap reports whether taking outQty of out and then adding inQty of in
// would stay within capacity. It does not check that outQty is held.
func (inv *Inventory) FitsSwap(out catalogs.ItemDef, outQty int, in catalogs.ItemDef, inQty int) bool {
	if outQty < 0 || inQty < 0 {
		return false
	}
	w := inv.Weight() - out.Weight*float64(outQty) + in.Weight*float64(inQty)
	return w <= inv.capacity+weightEpsilon
}

// Add adds qty of item. It adds nothing and returns false if the result would exceed capacity.
func (inv *Inventory) Add(item catalogs.ItemDef, qty int) bool {
	if qty < 0 || item.ID == "" {
		return false
	}
	if qty == 0 {
		return true
	}
	if !inv.Fits(item, qty) {
		return false
	}
	if i := inv.index(item.ID); i >= 0 {
		inv.stacks[i].Qty += qty
		return true
	}
	inv.stacks = append(inv.stacks, Stack{Item: item, Qty: qty})
	return true
}

// Remove takes qty of itemID. It removes nothing and returns false if fewer are held.
func (inv *Inventory) Remove(itemID string, qty int) bool {
	if qty < 0 {
		return false
	}
	if qty == 0 {
		return true
	}
	i := inv.index(itemID)
	if i < 0 || inv.stacks[i].Qty < qty {
		return false
	}
	inv.stacks[i].Qty -= qty
	if inv.stacks[i].Qty == 0 {
		inv.stacks = append(inv.stacks[:i], inv.stacks[i+1:]...)
	}
	return true
}

func (inv *Inventory) Count(itemID string) int {
	if i := inv.index(itemID); i >= 0 {
		return inv.stacks[i].Qty
	}
	return 0
}

// FindByTag returns the first non-empty stack whose item carries tag.
func (inv *Inventory) FindByTag(tag string) (Stack, bool) {
	for _, s := range inv.stacks {
		if s.Qty > 0 && s.Item.HasTag(tag) {
			return s, true
		}
	}
	return Stack{}, false
}

// Balance is the quantity of the currency item held.
func (inv *Inventory) Balance() int { return inv.Count(catalogs.CurrencyID) }

// Stacks returns a copy of the stacks in insertion order.
func (inv *Inventory) Stacks() []Stack {
	out := make([]Stack, len(inv.stacks))
	copy(out, inv.stacks)
	return out
}

// Counts is a map view used for snapshots and agent context.
func (inv *Inventory) Counts() map[string]int {
	out := make(map[string]int, len(inv.stacks))
	for _, s := range inv.stacks {
		out[s.Item.ID] = s.Qty
	}
	return out
}

func (inv *Inventory) index(id string) int {
	for i, s := range inv.stacks {
		if s.Item.ID == id {
			return i
		}
	}
	return -1
}
