// Package schedule maps an agent's calendar to forced movement.
package schedule

// Window is how many ticks before an appointment ends the agent is pulled to it.
const Window = 15

type Appointment struct {
	Start    int    `json:"start" yaml:"start" msgpack:"start"`
	End      int    `json:"end" yaml:"end" msgpack:"end"`
	Location string `json:"location" yaml:"location" msgpack:"location"`
	Label    string `json:"label,omitempty" yaml:"label,omitempty" msgpack:"label"`
}

// ForcedMove names the place an appointment requires the agent to go to.
type ForcedMove struct {
	To          string
	Appointment Appointment
}

// EnforceSchedule returns a forced move for the first appointment that ends
// within Window ticks and is somewhere other than currentPlace. An agent that is
// still busy is never interrupted. Overlapping appointments are not arbitrated.
func EnforceSchedule(calendar []Appointment, currentPlace string, tick, busyUntil int) (ForcedMove, bool) {
	if tick < busyUntil {
		return ForcedMove{}, false
	}
	for _, a := range calendar {
		left := a.End - tick
		if left < 0 || left > Window {
			continue
		}
		if a.Location == "" || a.Location == currentPlace {
			continue
		}
		return ForcedMove{To: a.Location, Appointment: a}, true
	}
	return ForcedMove{}, false
}

// Due returns appointments that have started and not yet ended at tick.
func Due(calendar []Appointment, tick int) []Appointment {
	var out []Appointment
	for _, a := range calendar {
		if a.Start <= tick && tick <= a.End {
			out = append(out, a)
		}
	}
	return out
}
