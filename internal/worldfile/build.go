package worldfile

import (
	"fmt"
	"log"
	"sort"

	"llmsim.ai/internal/sim/agent"
	"llmsim.ai/internal/sim/catalogs"
	"llmsim.ai/internal/sim/economy"
	"llmsim.ai/internal/sim/inventory"
	"llmsim.ai/internal/sim/memory"
	"llmsim.ai/internal/sim/places"
	"llmsim.ai/internal/sim/schedule"
	"llmsim.ai/internal/sim/tuning"
	"llmsim.ai/internal/sim/world"
)

type BuildOptions struct {
	// ID and Seed override the file's values when set.
	ID       string
	Seed     int64
	RunID    string
	Tuning   tuning.Tuning
	Items    *catalogs.ItemCatalog
	Embedder memory.Embedder
	Logger   *log.Logger
}

// Build turns a loaded file into a world with every person placed at home
// (or the first place when no home is given).
func Build(f *File, opts BuildOptions) (*world.World, error) {
	if f == nil || len(f.Places) == 0 {
		return nil, fmt.Errorf("%w: no places", ErrInvalid)
	}
	items := opts.Items
	if items == nil {
		items = catalogs.Default()
	}
	tune := opts.Tuning
	if tune.Capacity.Place <= 0 || tune.Capacity.Agent <= 0 {
		def := tuning.Defaults()
		if tune.Capacity.Place <= 0 {
			tune.Capacity.Place = def.Capacity.Place
		}
		if tune.Capacity.Agent <= 0 {
			tune.Capacity.Agent = def.Capacity.Agent
		}
	}

	g := places.NewGraph()
	for _, pf := range f.Places {
		inv, err := stock(items, inventory.New(tune.Capacity.Place), pf.Inventory, 0)
		if err != nil {
			return nil, fmt.Errorf("place %s: %w", pf.Name, err)
		}
		p := &places.Place{
			Name:      pf.Name,
			Neighbors: append([]string(nil), pf.Neighbors...),
			Tags:      append([]string(nil), pf.Tags...),
			Purpose:   pf.Purpose,
			Inventory: inv,
		}
		if v := pf.Vendor; v != nil {
			for _, m := range []map[string]float64{v.Prices, v.Buyback} {
				for id := range m {
					if _, ok := items.Get(id); !ok {
						return nil, fmt.Errorf("place %s vendor: %w: %s", pf.Name, catalogs.ErrUnknownItem, id)
					}
				}
			}
			for id := range v.Stock {
				if _, ok := items.Get(id); !ok {
					return nil, fmt.Errorf("place %s vendor: %w: %s", pf.Name, catalogs.ErrUnknownItem, id)
				}
			}
			p.Vendor = economy.NewVendor(v.Prices, v.Stock, v.Buyback)
		}
		if err := g.AddPlace(p); err != nil {
			return nil, err
		}
	}

	cfg := world.Config{
		ID:       first(opts.ID, f.ID),
		Seed:     opts.Seed,
		RunID:    opts.RunID,
		Tuning:   tune,
		Embedder: opts.Embedder,
		Logger:   opts.Logger,
	}
	if cfg.Seed == 0 {
		cfg.Seed = f.Seed
	}
	w, err := world.New(cfg, items, g)
	if err != nil {
		return nil, err
	}

	for _, pf := range f.People {
		id := pf.AgentID()
		inv, err := stock(items, inventory.New(tune.Capacity.Agent), pf.Inventory, pf.Money)
		if err != nil {
			return nil, fmt.Errorf("person %s: %w", id, err)
		}
		a := agent.New(id, agent.Persona{
			Name:      pf.Name,
			Age:       pf.Age,
			Job:       pf.Job,
			City:      pf.City,
			Bio:       pf.Bio,
			Values:    append([]string(nil), pf.Values...),
			Goals:     append([]string(nil), pf.Goals...),
			Traits:    pf.Traits,
			Workplace: pf.Workplace,
		}, w.NewMemory(), inv)
		a.Calendar = append([]schedule.Appointment(nil), pf.Schedule...)
		home := pf.Home
		if home == "" {
			home = f.Places[0].Name
		}
		if err := w.AddAgent(a, home); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Load and Build in one step.
func LoadWorld(path string, opts BuildOptions) (*world.World, error) {
	f, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return Build(f, opts)
}

func stock(items *catalogs.ItemCatalog, inv *inventory.Inventory, counts map[string]int, money int) (*inventory.Inventory, error) {
	if money > 0 {
		if counts == nil {
			counts = map[string]int{}
		} else {
			cp := make(map[string]int, len(counts)+1)
			for k, v := range counts {
				cp[k] = v
			}
			counts = cp
		}
		counts[catalogs.CurrencyID] += money
	}
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		def, ok := items.Get(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", catalogs.ErrUnknownItem, id)
		}
		if counts[id] == 0 {
			continue
		}
		if !inv.Add(def, counts[id]) {
			return nil, fmt.Errorf("inventory over capacity adding %d %s", counts[id], id)
		}
	}
	return inv, nil
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
