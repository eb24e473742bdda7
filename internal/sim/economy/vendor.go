// Package economy implements vendor pricing, stock and the buy/sell ledger.
package economy

import (
	"math"
	"math/rand"
	"sort"

	"llmsim.ai/internal/sim/catalogs"
	"llmsim.ai/internal/sim/inventory"
)

type Result string

const (
	OK          Result = "ok"
	BadQty      Result = "bad_qty"
	UnknownItem Result = "unknown_item"
	NotSold     Result = "not_sold"
	OutOfStock  Result = "out_of_stock"
	CantAfford  Result = "cant_afford"
	BagsFull    Result = "bags_full"
	NotBought   Result = "not_bought"
	NotOwned    Result = "not_owned"
)

const (
	MinPrice       = 0.01
	DefaultRestock = 10
)

// Flow is one signed item movement for an entity. Positive Qty is an inflow.
type Flow struct {
	Entity string `json:"entity"`
	Item   string `json:"item"`
	Qty    int    `json:"qty"`
}

type Receipt struct {
	Result Result `json:"result"`
	Item   string `json:"item"`
	Qty    int    `json:"qty"`
	Amount int    `json:"amount"`
	Flows  []Flow `json:"flows,omitempty"`
}

func (r Receipt) OK() bool { return r.Result == OK }

// Vendor is a priced ledger. Stock never goes negative.
type Vendor struct {
	Prices  map[string]float64
	Stock   map[string]int
	Buyback map[string]float64
}

func NewVendor(prices map[string]float64, stock map[string]int, buyback map[string]float64) *Vendor {
	v := &Vendor{
		Prices:  map[string]float64{},
		Stock:   map[string]int{},
		Buyback: map[string]float64{},
	}
	for k, p := range prices {
		v.Prices[k] = p
	}
	for k, q := range stock {
		if q > 0 {
			v.Stock[k] = q
		}
	}
	for k, p := range buyback {
		v.Buyback[k] = p
	}
	return v
}

// Cost is the whole-currency charge for qty units at price, rounded up.
func Cost(price float64, qty int) int {
	return int(math.Ceil(price*float64(qty) - 1e-9))
}

// Payout is the whole-currency credit for qty units at price, rounded down.
func Payout(price float64, qty int) int {
	return int(math.Floor(price*float64(qty) + 1e-9))
}

func (v *Vendor) Has(itemID string, qty int) bool { return v.Stock[itemID] >= qty }

func (v *Vendor) Price(itemID string) (float64, bool) {
	p, ok := v.Prices[itemID]
	return p, ok
}

// Buy sells qty of itemID to the buyer, paid from the buyer's currency balance.
// Either every effect happens (currency debited, item credited, stock decremented) or none.
func (v *Vendor) Buy(cats *catalogs.ItemCatalog, itemID string, qty int, buyer *inventory.Inventory, buyerID string) Receipt {
	r := Receipt{Item: itemID, Qty: qty}
	if qty <= 0 {
		r.Result = BadQty
		return r
	}
	item, ok := cats.Get(itemID)
	if !ok {
		r.Result = UnknownItem
		return r
	}
	price, ok := v.Prices[itemID]
	if !ok {
		r.Result = NotSold
		return r
	}
	if v.Stock[itemID] < qty {
		r.Result = OutOfStock
		return r
	}
	cost := Cost(price, qty)
	if buyer.Balance() < cost {
		r.Result = CantAfford
		return r
	}
	money := cats.MustGet(catalogs.CurrencyID)
	if !buyer.FitsSwap(money, cost, item, qty) {
		r.Result = BagsFull
		return r
	}
	// Both checks passed, so neither mutation can fail.
	buyer.Remove(catalogs.CurrencyID, cost)
	buyer.Add(item, qty)
	v.Stock[itemID] -= qty
	if v.Stock[itemID] == 0 {
		delete(v.Stock, itemID)
	}
	r.Result = OK
	r.Amount = cost
	r.Flows = []Flow{
		{Entity: buyerID, Item: itemID, Qty: qty},
		{Entity: buyerID, Item: catalogs.CurrencyID, Qty: -cost},
	}
	return r
}

// Sell buys qty of itemID back from the seller at the buyback price.
func (v *Vendor) Sell(cats *catalogs.ItemCatalog, itemID string, qty int, seller *inventory.Inventory, sellerID string) Receipt {
	r := Receipt{Item: itemID, Qty: qty}
	if qty <= 0 {
		r.Result = BadQty
		return r
	}
	if _, ok := cats.Get(itemID); !ok {
		r.Result = UnknownItem
		return r
	}
	price, ok := v.Buyback[itemID]
	if !ok {
		r.Result = NotBought
		return r
	}
	if seller.Count(itemID) < qty {
		r.Result = NotOwned
		return r
	}
	payout := Payout(price, qty)
	item := cats.MustGet(itemID)
	money := cats.MustGet(catalogs.CurrencyID)
	if !seller.FitsSwap(item, qty, money, payout) {
		r.Result = BagsFull
		return r
	}
	seller.Remove(itemID, qty)
	seller.Add(money, payout)
	if _, resells := v.Prices[itemID]; resells {
		v.Stock[itemID] += qty
	}
	r.Result = OK
	r.Amount = payout
	r.Flows = []Flow{
		{Entity: sellerID, Item: itemID, Qty: -qty},
		{Entity: sellerID, Item: catalogs.CurrencyID, Qty: payout},
	}
	return r
}

// CheapestInStock returns the lowest priced stocked item carrying tag.
// Ties break on item id.
func (v *Vendor) CheapestInStock(cats *catalogs.ItemCatalog, tag string) (string, float64, bool) {
	ids := make([]string, 0, len(v.Prices))
	for id := range v.Prices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	best, bestPrice, found := "", 0.0, false
	for _, id := range ids {
		def, ok := cats.Get(id)
		if !ok || !def.HasTag(tag) || v.Stock[id] <= 0 {
			continue
		}
		if p := v.Prices[id]; !found || p < bestPrice {
			best, bestPrice, found = id, p, true
		}
	}
	return best, bestPrice, found
}

// Restock adds qty units (DefaultRestock when qty <= 0) of a priced item.
func (v *Vendor) Restock(itemID string, qty int) bool {
	if _, ok := v.Prices[itemID]; !ok {
		return false
	}
	if qty <= 0 {
		qty = DefaultRestock
	}
	v.Stock[itemID] += qty
	return true
}

// FluctuatePrices moves every price by up to ±10%, never below MinPrice.
func (v *Vendor) FluctuatePrices(rng *rand.Rand) {
	ids := make([]string, 0, len(v.Prices))
	for id := range v.Prices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		f := 0.9 + rng.Float64()*0.2
		p := math.Round(v.Prices[id]*f*100) / 100
		if p < MinPrice {
			p = MinPrice
		}
		v.Prices[id] = p
	}
}
