package world

import (
	"context"
	"fmt"
	"strings"

	"llmsim.ai/internal/sim/action"
	"llmsim.ai/internal/sim/agent"
	"llmsim.ai/internal/sim/catalogs"
	"llmsim.ai/internal/sim/economy"
	"llmsim.ai/internal/sim/memory"
	"llmsim.ai/internal/sim/places"
)

// Outcome results beyond the economy.Result codes.
const (
	ResultOK           = "ok"
	ResultBusy         = "busy"
	ResultSuppressed   = "suppressed"
	ResultRedirected   = "redirected"
	ResultUnknownPlace = "unknown_place"
	ResultAlreadyHere  = "already_here"
	ResultInvalid      = "invalid"
	ResultNoFood       = "no_food"
	ResultEmptyPlan    = "empty_plan"
	ResultNoWorkplace  = "no_workplace"
	ResultNoBathroom   = "no_bathroom"
	ResultNotHere      = "not_here"
	ResultGeneric      = "generic"
)

// INTERACT operations the world resolves itself. Anything else is broadcast.
const (
	OpBuy      = "buy"
	OpSell     = "sell"
	OpDeposit  = "deposit"
	OpWithdraw = "withdraw"
	OpBathroom = "use_bathroom"
)

var bathroomEffects = map[string]float64{catalogs.StatBladder: 1, catalogs.StatEnergy: -0.01}

func interactOp(op string) string {
	switch op {
	case "put", "store", "leave", "drop":
		return OpDeposit
	case "take", "pick_up", "pickup", "grab":
		return OpWithdraw
	case "bathroom", "toilet", "restroom", "pee":
		return OpBathroom
	}
	return op
}

type Outcome struct {
	AgentID   string         `json:"agent_id"`
	Requested action.Action  `json:"requested"`
	Resolved  action.Action  `json:"resolved"`
	Forced    bool           `json:"forced,omitempty"`
	Result    string         `json:"result"`
	Note      string         `json:"note,omitempty"`
	Flows     []economy.Flow `json:"flows,omitempty"`
	Died      string         `json:"died,omitempty"`
	DiedAt    string         `json:"died_at,omitempty"`
}

// Apply resolves one decision for a against the world at the current tick and
// then applies homeostasis. Capacity and reference failures are reported in the
// outcome, never as errors.
func (w *World) Apply(ctx context.Context, a *agent.Agent, dec Decision) Outcome {
	tick := w.tick
	act := dec.Action
	out := Outcome{AgentID: a.ID, Requested: act, Result: ResultOK}
	var effects map[string]float64

	if act.IsInvalid() {
		act = action.ThinkText("I could not settle on what to do (" + act.Reason + ")")
		out.Result = ResultInvalid
	}
	if a.Busy(tick) && act.Verb != action.Continue {
		act = action.New(action.Continue, nil)
		out.Result = ResultBusy
	}

	if act.Verb == action.Continue {
		if a.Busy(tick) {
			out.Result = ResultBusy
		}
	} else {
		act = w.redirect(a, act, &out)
		switch act.Verb {
		case action.Say:
			w.applySay(a, act, &out)
		case action.Move:
			act = w.applyMove(a, act, &out)
		case action.Interact:
			effects = w.applyInteract(a, act, &out)
		case action.Think:
			a.Occupy(tick, w.tune.Duration(string(action.Think)))
		case action.Plan:
			if !a.SetPlan(act.Strings(action.KeySteps)) {
				out.Result = ResultEmptyPlan
			}
			a.Occupy(tick, w.tune.Duration(string(action.Plan)))
		case action.Sleep:
			a.Physio.Sleep(w.tune.Drift)
			a.Occupy(tick, w.tune.Duration(string(action.Sleep)))
		case action.Eat:
			effects = w.applyEat(a, act, &out)
		case action.Work:
			w.applyWork(a, &out)
		}
	}
	out.Resolved = act

	a.Physio.Drift(w.tune.Drift)
	if effects != nil {
		a.Physio.ApplyEffects(effects)
	}
	a.Physio.Clamp()
	a.Physio.TickMoodlets()
	a.ConsumePlanStep(string(act.Verb))

	w.remember(ctx, a, dec, act)
	w.metrics.countAction(a.ID, act.Verb)
	w.metrics.recordFlows(out.Flows)

	if cause, dead := a.DeathCause(); dead {
		d := w.kill(a, cause)
		out.Died = cause
		out.DiedAt = d.Place
	}
	return out
}

// redirect turns WORK and EAT into a MOVE when the current place cannot serve them.
func (w *World) redirect(a *agent.Agent, act action.Action, out *Outcome) action.Action {
	loc := w.locations[a.ID]
	here, _ := w.graph.Get(loc)
	switch act.Verb {
	case action.Work:
		site := a.Persona.JobSite()
		if loc == site {
			return act
		}
		if !w.graph.IsValid(site) {
			if here != nil && here.HasTag(places.TagWork) {
				return act
			}
			n, ok := w.graph.Nearest(loc, places.TagWork)
			if !ok {
				out.Result = ResultNoWorkplace
				return action.ThinkText("there is nowhere to work")
			}
			site = n
		}
		out.Result = ResultRedirected
		out.Note = "heading to work at " + site
		return action.MoveTo(site)
	case action.Eat:
		// Carried food is only eaten at a food place, or when the town has none.
		if here != nil && here.HasTag(places.TagFood) {
			return act
		}
		if n, ok := w.graph.Nearest(loc, places.TagFood); ok {
			out.Result = ResultRedirected
			out.Note = "looking for food at " + n
			return action.MoveTo(n)
		}
	case action.Interact:
		if interactOp(act.Str(action.KeyVerb)) != OpBathroom || (here != nil && here.HasTag(places.TagRest)) {
			return act
		}
		if n, ok := w.graph.Nearest(loc, places.TagRest); ok {
			out.Result = ResultRedirected
			out.Note = "looking for a bathroom at " + n
			return action.MoveTo(n)
		}
	}
	return act
}

func (w *World) applySay(a *agent.Agent, act action.Action, out *Outcome) {
	if !a.CooldownAllow(agent.CooldownSay, w.tick, w.tune.Cooldowns.SayTicks) {
		out.Result = ResultSuppressed
		w.metrics.Suppressed++
		return
	}
	text := act.Str(action.KeyText)
	_, _ = w.BroadcastEvent(w.locations[a.ID], Event{Actor: a.ID, Kind: EventSay, Text: a.Persona.Name + ": " + text})
	a.Occupy(w.tick, w.tune.Duration(string(action.Say)))
}

// applyMove relocates a. An unknown destination resolves as a THINK.
func (w *World) applyMove(a *agent.Agent, act action.Action, out *Outcome) action.Action {
	to := act.Str(action.KeyTo)
	if !w.graph.IsValid(to) {
		out.Result = ResultUnknownPlace
		out.Note = "no such place: " + to
		a.Occupy(w.tick, w.tune.Duration(string(action.Think)))
		return action.ThinkText("I can't go to " + to + ", there is no such place")
	}
	from := w.locations[a.ID]
	if from == to {
		if out.Result == ResultOK {
			out.Result = ResultAlreadyHere
		}
		return act
	}
	_, _ = w.BroadcastEvent(from, Event{Actor: a.ID, Kind: EventMove, Text: fmt.Sprintf("%s left for %s", a.Persona.Name, to)})
	w.relocate(a, to)
	_, _ = w.BroadcastEvent(to, Event{Actor: a.ID, Kind: EventArrive, Text: fmt.Sprintf("%s arrived from %s", a.Persona.Name, from)})
	a.Occupy(w.tick, w.tune.Duration(string(action.Move)))
	return act
}

// applyInteract resolves trades, deposits and the bathroom, and broadcasts
// anything else. It returns physio effects for the caller to apply after drift.
func (w *World) applyInteract(a *agent.Agent, act action.Action, out *Outcome) map[string]float64 {
	loc := w.locations[a.ID]
	here, _ := w.graph.Get(loc)
	op := interactOp(act.Str(action.KeyVerb))
	item := act.Str(action.KeyItem)
	qty := act.Int(action.KeyQty, 1)
	defer a.Occupy(w.tick, w.tune.Duration(string(action.Interact)))

	switch {
	case (op == OpBuy || op == OpSell) && here != nil && here.Vendor != nil:
		w.trade(a, here, op, item, qty, out)
		return nil
	case (op == OpDeposit || op == OpWithdraw) && here != nil:
		w.transfer(a, here, op, item, qty, out)
		return nil
	case op == OpBathroom:
		if here == nil || !here.HasTag(places.TagRest) {
			out.Result = ResultNoBathroom
			out.Note = "no bathroom here"
			return nil
		}
		_, _ = w.BroadcastEvent(loc, Event{Actor: a.ID, Kind: EventInteract, Text: a.Persona.Name + " used the bathroom"})
		return bathroomEffects
	}

	out.Result = ResultGeneric
	text := a.Persona.Name + " " + op
	if item != "" {
		text += " " + item
	}
	if t := act.Str(action.KeyTarget); t != "" {
		text += " with " + w.displayName(t)
	}
	_, _ = w.BroadcastEvent(loc, Event{Actor: a.ID, Kind: EventInteract, Text: text})
	return nil
}

func (w *World) trade(a *agent.Agent, here *places.Place, op, item string, qty int, out *Outcome) {
	loc := here.Name
	if item == "" {
		out.Result = string(economy.UnknownItem)
		out.Note = "nothing named to " + op
		return
	}
	var r economy.Receipt
	if op == OpBuy {
		r = here.Vendor.Buy(w.items, item, qty, a.Inventory, a.ID)
	} else {
		r = here.Vendor.Sell(w.items, item, qty, a.Inventory, a.ID)
	}
	out.Result = string(r.Result)
	if r.OK() {
		out.Flows = append(out.Flows, r.Flows...)
		out.Flows = append(out.Flows, vendorFlows(loc, r.Flows)...)
		_, _ = w.BroadcastEvent(loc, Event{Actor: a.ID, Kind: EventTrade,
			Text: fmt.Sprintf("%s %s %d %s for %d", a.Persona.Name, pastTense(op), qty, item, r.Amount)})
		return
	}
	out.Note = tradeNote(r.Result, item)
	_, _ = w.BroadcastEvent(loc, Event{Actor: a.ID, Kind: EventTrade,
		Text: fmt.Sprintf("%s tried to %s %s: %s", a.Persona.Name, op, item, out.Note)})
}

// transfer moves qty of item between a and the place's shared inventory. It
// checks both sides before touching either.
func (w *World) transfer(a *agent.Agent, here *places.Place, op, item string, qty int, out *Outcome) {
	if item == "" {
		out.Result = string(economy.UnknownItem)
		out.Note = "nothing named to " + op
		return
	}
	def, ok := w.items.Get(item)
	if !ok {
		out.Result = string(economy.UnknownItem)
		out.Note = tradeNote(economy.UnknownItem, item)
		return
	}
	if qty <= 0 {
		out.Result = string(economy.BadQty)
		out.Note = fmt.Sprintf("can't %s %d %s", op, qty, item)
		return
	}

	from, to := a.Inventory, here.Inventory
	fromID, toID := a.ID, "place:"+here.Name
	if op == OpWithdraw {
		from, to = to, from
		fromID, toID = toID, fromID
	}
	if from.Count(item) < qty {
		if op == OpWithdraw {
			out.Result = ResultNotHere
			out.Note = fmt.Sprintf("not enough %s at %s", item, here.Name)
		} else {
			out.Result = string(economy.NotOwned)
			out.Note = tradeNote(economy.NotOwned, item)
		}
		return
	}
	if !to.Fits(def, qty) {
		out.Result = string(economy.BagsFull)
		if op == OpDeposit {
			out.Note = "no room for " + item + " at " + here.Name
		} else {
			out.Note = tradeNote(economy.BagsFull, item)
		}
		return
	}
	if !from.Remove(item, qty) || !to.Add(def, qty) {
		invariant("%s %s: transfer of %d %s failed after checks", op, a.ID, qty, item)
	}
	out.Flows = append(out.Flows,
		economy.Flow{Entity: fromID, Item: item, Qty: -qty},
		economy.Flow{Entity: toID, Item: item, Qty: qty},
	)
	text := fmt.Sprintf("%s left %d %s at %s", a.Persona.Name, qty, item, here.Name)
	if op == OpWithdraw {
		text = fmt.Sprintf("%s took %d %s from %s", a.Persona.Name, qty, item, here.Name)
	}
	_, _ = w.BroadcastEvent(here.Name, Event{Actor: a.ID, Kind: EventInteract, Text: text})
}

// applyEat eats one edible, buying the cheapest one locally when none is carried.
// It returns the item's effects for the caller to apply after drift.
func (w *World) applyEat(a *agent.Agent, act action.Action, out *Outcome) map[string]float64 {
	if !a.CooldownReady(agent.CooldownEat, w.tick, w.tune.Cooldowns.EatTicks) {
		out.Result = ResultSuppressed
		out.Note = "not hungry yet"
		w.metrics.Suppressed++
		return nil
	}
	loc := w.locations[a.ID]
	want := act.Str(action.KeyItem)

	id := ""
	if def, ok := w.items.Get(want); ok && def.HasTag(catalogs.TagEdible) && a.Inventory.Count(want) > 0 {
		id = want
	} else if s, ok := a.Inventory.FindByTag(catalogs.TagEdible); ok {
		id = s.Item.ID
	}

	if id == "" {
		here, _ := w.graph.Get(loc)
		if here == nil || here.Vendor == nil {
			if out.Result == ResultOK {
				out.Result = ResultNoFood
			}
			out.Note = "nothing to eat here"
			return nil
		}
		buy := ""
		if def, ok := w.items.Get(want); ok && def.HasTag(catalogs.TagEdible) && here.Vendor.Has(want, 1) {
			if _, priced := here.Vendor.Price(want); priced {
				buy = want
			}
		}
		if buy == "" {
			var found bool
			if buy, _, found = here.Vendor.CheapestInStock(w.items, catalogs.TagEdible); !found {
				out.Result = string(economy.OutOfStock)
				out.Note = "no food in stock"
				return nil
			}
		}
		r := here.Vendor.Buy(w.items, buy, 1, a.Inventory, a.ID)
		if !r.OK() {
			out.Result = string(r.Result)
			out.Note = tradeNote(r.Result, buy)
			return nil
		}
		out.Flows = append(out.Flows, r.Flows...)
		out.Flows = append(out.Flows, vendorFlows(loc, r.Flows)...)
		id = buy
	}

	if !a.Inventory.Remove(id, 1) {
		invariant("eat %s: %s vanished from inventory", a.ID, id)
	}
	a.MarkUsed(agent.CooldownEat, w.tick)
	out.Flows = append(out.Flows, economy.Flow{Entity: a.ID, Item: id, Qty: -1})
	out.Note = "ate " + id
	_, _ = w.BroadcastEvent(loc, Event{Actor: a.ID, Kind: EventEat, Text: fmt.Sprintf("%s eats %s", a.Persona.Name, id)})
	a.Occupy(w.tick, w.tune.Duration(string(action.Eat)))
	return w.items.MustGet(id).Effects
}

func (w *World) applyWork(a *agent.Agent, out *Outcome) {
	loc := w.locations[a.ID]
	if w.tune.WorkReward > 0 {
		if a.Inventory.Add(w.items.MustGet(catalogs.CurrencyID), w.tune.WorkReward) {
			out.Flows = append(out.Flows, economy.Flow{Entity: a.ID, Item: catalogs.CurrencyID, Qty: w.tune.WorkReward})
		}
	}
	_, _ = w.BroadcastEvent(loc, Event{Actor: a.ID, Kind: EventWork, Text: fmt.Sprintf("%s is working as %s", a.Persona.Name, a.Persona.Job)})
	a.Occupy(w.tick, w.tune.Duration(string(action.Work)))
}

// remember stores the private thought and any memory writes from the decision.
func (w *World) remember(ctx context.Context, a *agent.Agent, dec Decision, act action.Action) {
	thought := strings.TrimSpace(dec.Thought)
	if thought == "" && act.Verb == action.Think {
		thought = act.Str(action.KeyText)
	}
	if thought != "" && thought != a.Thought {
		if a.CooldownAllow(agent.CooldownThought, w.tick, w.tune.Cooldowns.ThoughtTicks) {
			a.Memory.Write(ctx, memory.Item{Tick: w.tick, Kind: memory.Autobio, Text: thought, Importance: w.tune.Memory.WriteImportance})
		}
		a.Thought = thought
	}
	for _, it := range dec.Memories {
		if strings.TrimSpace(it.Text) == "" {
			continue
		}
		it.Tick = w.tick
		if it.Importance <= 0 {
			it.Importance = w.tune.Memory.WriteImportance
		}
		a.Memory.Write(ctx, it)
	}
}

func (w *World) displayName(id string) string {
	if o, ok := w.agents[id]; ok {
		return o.Persona.Name
	}
	return id
}

// vendorFlows mirrors buyer/seller flows onto the vendor at place.
func vendorFlows(place string, flows []economy.Flow) []economy.Flow {
	out := make([]economy.Flow, 0, len(flows))
	for _, f := range flows {
		out = append(out, economy.Flow{Entity: "vendor:" + place, Item: f.Item, Qty: -f.Qty})
	}
	return out
}

func tradeNote(r economy.Result, item string) string {
	switch r {
	case economy.OutOfStock:
		return item + " is out of stock"
	case economy.CantAfford:
		return "can't afford " + item
	case economy.BagsFull:
		return "bags are full"
	case economy.NotSold:
		return item + " is not sold here"
	case economy.NotBought:
		return item + " is not bought here"
	case economy.NotOwned:
		return "doesn't have " + item
	case economy.UnknownItem:
		return "no such item " + item
	}
	return string(r)
}

func pastTense(op string) string {
	switch op {
	case OpBuy:
		return "bought"
	case OpSell:
		return "sold"
	}
	return op
}
