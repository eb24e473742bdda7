package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

var ErrUnknownItem = errors.New("unknown item")

// Stat names understood by item effects.
const (
	StatEnergy  = "energy"
	StatHunger  = "hunger"
	StatStress  = "stress"
	StatSocial  = "social"
	StatFun     = "fun"
	StatHygiene = "hygiene"
	StatComfort = "comfort"
	StatBladder = "bladder"
)

// Well-known tags.
const (
	TagCurrency = "currency"
	TagEdible   = "edible"
	TagFood     = "food"
)

// CurrencyID is the item used as money by vendors.
const CurrencyID = "money"

type ItemDef struct {
	ID      string             `json:"id"`
	Name    string             `json:"name"`
	Tags    []string           `json:"tags"`
	Weight  float64            `json:"weight"`
	Effects map[string]float64 `json:"effects,omitempty"`
}

func (d ItemDef) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ItemCatalog is immutable after construction.
type ItemCatalog struct {
	Palette []string
	Defs    map[string]ItemDef
	Digest  string
}

func (c *ItemCatalog) Get(id string) (ItemDef, bool) {
	if c == nil {
		return ItemDef{}, false
	}
	d, ok := c.Defs[id]
	return d, ok
}

func (c *ItemCatalog) MustGet(id string) ItemDef {
	d, ok := c.Get(id)
	if !ok {
		panic(fmt.Sprintf("catalogs: %v: %s", ErrUnknownItem, id))
	}
	return d
}

// WithTag lists item ids carrying tag, in palette order.
func (c *ItemCatalog) WithTag(tag string) []string {
	var out []string
	for _, id := range c.Palette {
		if c.Defs[id].HasTag(tag) {
			out = append(out, id)
		}
	}
	return out
}

var defaultItems = []ItemDef{
	{ID: "money", Name: "Money", Tags: []string{"currency"}, Weight: 0},
	{ID: "coffee", Name: "Coffee", Tags: []string{"edible", "drink", "caffeine"}, Weight: 0.1,
		Effects: map[string]float64{StatHunger: -0.2, StatEnergy: 0.15, StatStress: -0.02}},
	{ID: "pastry", Name: "Pastry", Tags: []string{"edible", "food", "carb"}, Weight: 0.2,
		Effects: map[string]float64{StatHunger: -0.45, StatEnergy: 0.05}},
	{ID: "salad", Name: "Salad", Tags: []string{"edible", "food"}, Weight: 0.3,
		Effects: map[string]float64{StatHunger: -0.5, StatStress: -0.02}},
	{ID: "beans", Name: "Coffee Beans", Tags: []string{"ingredient"}, Weight: 0.5},
	{ID: "sketch", Name: "Sketch", Tags: []string{"art", "sellable"}, Weight: 0},
	{ID: "apple", Name: "Apple", Tags: []string{"edible", "food", "fruit"}, Weight: 0.15,
		Effects: map[string]float64{StatHunger: -0.3, StatEnergy: 0.02}},
}

// Default returns the built-in item catalog.
func Default() *ItemCatalog {
	c, err := build(defaultItems)
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads an items.json file: a JSON array of item definitions.
func Load(path string) (*ItemCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var defs []ItemDef
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&defs); err != nil {
		return nil, fmt.Errorf("items.json: %w", err)
	}
	c, err := build(defs)
	if err != nil {
		return nil, fmt.Errorf("items.json: %w", err)
	}
	return c, nil
}

func build(defs []ItemDef) (*ItemCatalog, error) {
	c := &ItemCatalog{Defs: make(map[string]ItemDef, len(defs))}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("item with empty id")
		}
		if d.Weight < 0 {
			return nil, fmt.Errorf("item %s: negative weight", d.ID)
		}
		if _, dup := c.Defs[d.ID]; dup {
			return nil, fmt.Errorf("duplicate item id: %s", d.ID)
		}
		if d.Name == "" {
			d.Name = d.ID
		}
		d.Tags = append([]string(nil), d.Tags...)
		eff := make(map[string]float64, len(d.Effects))
		for k, v := range d.Effects {
			eff[k] = v
		}
		d.Effects = eff
		c.Defs[d.ID] = d
		c.Palette = append(c.Palette, d.ID)
	}
	sort.Strings(c.Palette)

	ordered := make([]ItemDef, 0, len(c.Palette))
	for _, id := range c.Palette {
		ordered = append(ordered, c.Defs[id])
	}
	b, err := json.Marshal(ordered)
	if err != nil {
		return nil, err
	}
	c.Digest = sha256Hex(b)
	return c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
