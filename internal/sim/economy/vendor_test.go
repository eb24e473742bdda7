package economy

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"llmsim.ai/internal/sim/catalogs"
	"llmsim.ai/internal/sim/inventory"
)

func wallet(cats *catalogs.ItemCatalog, capacity float64, money int) *inventory.Inventory {
	inv := inventory.New(capacity)
	inv.Add(cats.MustGet(catalogs.CurrencyID), money)
	return inv
}

func TestBuy_CoffeeScenario(t *testing.T) {
	cats := catalogs.Default()
	v := NewVendor(map[string]float64{"coffee": 5}, map[string]int{"coffee": 1}, nil)
	buyer := wallet(cats, 1, 5)

	r := v.Buy(cats, "coffee", 1, buyer, "alice")
	if !r.OK() {
		t.Fatalf("first buy result=%s", r.Result)
	}
	if buyer.Balance() != 0 || buyer.Count("coffee") != 1 || v.Stock["coffee"] != 0 {
		t.Fatalf("after buy: balance=%d coffee=%d stock=%d", buyer.Balance(), buyer.Count("coffee"), v.Stock["coffee"])
	}
	if len(r.Flows) != 2 || r.Flows[1].Qty != -5 {
		t.Fatalf("flows=%+v", r.Flows)
	}

	before := buyer.Stacks()
	r = v.Buy(cats, "coffee", 1, buyer, "alice")
	if r.Result != OutOfStock {
		t.Fatalf("second buy result=%s want=%s", r.Result, OutOfStock)
	}
	if buyer.Balance() != 0 || buyer.Count("coffee") != 1 || v.Stock["coffee"] != 0 || len(buyer.Stacks()) != len(before) {
		t.Fatalf("state changed on failed buy")
	}
}

func TestBuy_FailsClosed(t *testing.T) {
	cats := catalogs.Default()
	v := NewVendor(map[string]float64{"salad": 3}, map[string]int{"salad": 5}, nil)

	poor := wallet(cats, 100, 2)
	if r := v.Buy(cats, "salad", 1, poor, "p"); r.Result != CantAfford {
		t.Fatalf("result=%s want=%s", r.Result, CantAfford)
	}
	if poor.Balance() != 2 || v.Stock["salad"] != 5 {
		t.Fatalf("state changed on cant_afford")
	}

	full := wallet(cats, 0.5, 100) // two salads weigh 0.6
	if r := v.Buy(cats, "salad", 2, full, "f"); r.Result != BagsFull {
		t.Fatalf("result=%s want=%s", r.Result, BagsFull)
	}
	if full.Balance() != 100 || full.Count("salad") != 0 || v.Stock["salad"] != 5 {
		t.Fatalf("state changed on bags_full: balance=%d salad=%d stock=%d", full.Balance(), full.Count("salad"), v.Stock["salad"])
	}

	// Paying with the whole balance must not reorder stacks when the goods don't fit.
	cafe := NewVendor(map[string]float64{"coffee": 5}, map[string]int{"coffee": 1}, nil)
	packed := wallet(cats, 0.2, 5)
	packed.Add(cats.MustGet("pastry"), 1)
	before := packed.Stacks()
	if r := cafe.Buy(cats, "coffee", 1, packed, "k"); r.Result != BagsFull {
		t.Fatalf("result=%s want=%s", r.Result, BagsFull)
	}
	if diff := cmp.Diff(before, packed.Stacks()); diff != "" {
		t.Fatalf("stacks changed on bags_full (-before +after):\n%s", diff)
	}
	if cafe.Stock["coffee"] != 1 {
		t.Fatalf("stock=%d", cafe.Stock["coffee"])
	}

	if r := v.Buy(cats, "apple", 1, full, "f"); r.Result != NotSold {
		t.Fatalf("result=%s want=%s", r.Result, NotSold)
	}
	if r := v.Buy(cats, "unobtainium", 1, full, "f"); r.Result != UnknownItem {
		t.Fatalf("result=%s want=%s", r.Result, UnknownItem)
	}
	if r := v.Buy(cats, "salad", 0, full, "f"); r.Result != BadQty {
		t.Fatalf("result=%s want=%s", r.Result, BadQty)
	}
}

func TestSell_Buyback(t *testing.T) {
	cats := catalogs.Default()
	v := NewVendor(nil, nil, map[string]float64{"sketch": 7.5})
	seller := wallet(cats, 100, 0)
	seller.Add(cats.MustGet("sketch"), 2)

	if r := v.Sell(cats, "sketch", 3, seller, "s"); r.Result != NotOwned {
		t.Fatalf("result=%s want=%s", r.Result, NotOwned)
	}
	r := v.Sell(cats, "sketch", 2, seller, "s")
	if !r.OK() || r.Amount != 15 {
		t.Fatalf("sell=%+v", r)
	}
	if seller.Balance() != 15 || seller.Count("sketch") != 0 {
		t.Fatalf("after sell: balance=%d sketch=%d", seller.Balance(), seller.Count("sketch"))
	}
	if r := v.Sell(cats, "apple", 1, seller, "s"); r.Result != NotBought {
		t.Fatalf("result=%s want=%s", r.Result, NotBought)
	}
	if _, ok := v.Stock["sketch"]; ok {
		t.Fatalf("vendor without a price should not stock buyback items")
	}
}

func TestCheapestInStock_AndUpkeep(t *testing.T) {
	cats := catalogs.Default()
	v := NewVendor(
		map[string]float64{"coffee": 3, "pastry": 2, "salad": 1, "beans": 0.5},
		map[string]int{"coffee": 1, "pastry": 1, "beans": 3},
		nil,
	)
	id, price, ok := v.CheapestInStock(cats, catalogs.TagEdible)
	if !ok || id != "pastry" || price != 2 {
		t.Fatalf("cheapest=%s %.2f %v want pastry (salad is out of stock, beans are inedible)", id, price, ok)
	}

	if !v.Restock("salad", 0) || v.Stock["salad"] != DefaultRestock {
		t.Fatalf("restock default: stock=%d", v.Stock["salad"])
	}
	if v.Restock("apple", 5) {
		t.Fatalf("restock of unpriced item must fail")
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		v.FluctuatePrices(rng)
	}
	for id, p := range v.Prices {
		if p < MinPrice {
			t.Fatalf("price %s=%v below floor", id, p)
		}
	}
}
