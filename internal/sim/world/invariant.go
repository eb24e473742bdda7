package world

import "fmt"

// InvariantError marks a programming error. It is the only panic the tick
// driver lets escape per-agent isolation.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "world invariant violated: " + e.Msg }

func invariant(format string, args ...any) {
	panic(&InvariantError{Msg: fmt.Sprintf(format, args...)})
}

// checkPresence asserts agentID is on exactly one roster, the one recorded in
// the location map.
func (w *World) checkPresence(agentID string) {
	locs := w.graph.Locate(agentID)
	want, ok := w.locations[agentID]
	switch {
	case !ok && len(locs) == 0:
	case ok && len(locs) == 1 && locs[0] == want:
	default:
		invariant("agent %s present at %v, location map says %q", agentID, locs, want)
	}
}
