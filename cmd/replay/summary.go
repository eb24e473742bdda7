package main

import (
	"fmt"
	"io"

	persistlog "llmsim.ai/internal/persistence/log"
	"llmsim.ai/internal/sim/world"
)

type runSummary struct {
	id       string
	worldID  string
	first    int
	last     int
	ticks    int
	gaps     []int
	digests  map[int]string
	verbs    map[string]map[string]int
	flows    map[string]map[string]int
	deaths   []world.Death
	failures int
	errors   int
	forced   int
	events   int
}

type summary struct {
	order []string
	runs  map[string]*runSummary
}

// summarize folds the tick log into per-run totals and reports ticks that are
// missing from an otherwise contiguous run.
func summarize(dir string, from, to int) (*summary, error) {
	s := &summary{runs: map[string]*runSummary{}}
	err := persistlog.ReadTicks(dir, func(e world.TickLogEntry) error {
		if e.Tick < from || (to >= 0 && e.Tick > to) {
			return nil
		}
		r := s.runs[e.RunID]
		if r == nil {
			r = &runSummary{
				id:      e.RunID,
				worldID: e.WorldID,
				first:   e.Tick,
				last:    e.Tick - 1,
				digests: map[int]string{},
				verbs:   map[string]map[string]int{},
				flows:   map[string]map[string]int{},
			}
			s.runs[e.RunID] = r
			s.order = append(s.order, e.RunID)
		}
		if e.Tick != r.last+1 {
			r.gaps = append(r.gaps, r.last+1)
		}
		r.last = e.Tick
		r.ticks++
		r.digests[e.Tick] = e.Digest
		for _, a := range e.Actions {
			per := r.verbs[a.AgentID]
			if per == nil {
				per = map[string]int{}
				r.verbs[a.AgentID] = per
			}
			per[a.Verb]++
			if a.Forced {
				r.forced++
			}
		}
		for _, f := range e.Flows {
			per := r.flows[f.Entity]
			if per == nil {
				per = map[string]int{}
				r.flows[f.Entity] = per
			}
			per[f.Item] += f.Qty
		}
		r.deaths = append(r.deaths, e.Deaths...)
		r.failures += e.OracleFailures
		r.errors += len(e.Errors)
		r.events += len(e.Events)
		return nil
	})
	return s, err
}

func (s *summary) print(out io.Writer) {
	for _, id := range s.order {
		r := s.runs[id]
		fmt.Fprintf(out, "run %s world=%s ticks=%d range=[%d,%d] events=%d forced=%d oracle_failures=%d agent_errors=%d\n",
			r.id, r.worldID, r.ticks, r.first, r.last, r.events, r.forced, r.failures, r.errors)
		if len(r.gaps) > 0 {
			fmt.Fprintf(out, "  gaps before ticks %v\n", r.gaps)
		}
		for _, agentID := range sortedKeys(r.verbs) {
			fmt.Fprintf(out, "  agent %s:", agentID)
			per := r.verbs[agentID]
			for _, v := range sortedKeys(per) {
				fmt.Fprintf(out, " %s=%d", v, per[v])
			}
			fmt.Fprintln(out)
		}
		for _, entity := range sortedKeys(r.flows) {
			fmt.Fprintf(out, "  flow %s:", entity)
			per := r.flows[entity]
			for _, item := range sortedKeys(per) {
				fmt.Fprintf(out, " %s%+d", item, per[item])
			}
			fmt.Fprintln(out)
		}
		for _, d := range r.deaths {
			fmt.Fprintf(out, "  death %s tick=%d cause=%s place=%s\n", d.AgentID, d.Tick, d.Cause, d.Place)
		}
	}
}
