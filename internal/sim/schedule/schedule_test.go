package schedule

import "testing"

func TestEnforceSchedule_ForcedMove(t *testing.T) {
	cal := []Appointment{{Start: 10, End: 20, Location: "Office", Label: "standup"}}
	mv, ok := EnforceSchedule(cal, "Home", 6, -1)
	if !ok || mv.To != "Office" {
		t.Fatalf("mv=%+v ok=%v want MOVE Office", mv, ok)
	}
}

func TestEnforceSchedule_NoneWhileBusy(t *testing.T) {
	cals := [][]Appointment{
		nil,
		{{Start: 0, End: 5, Location: "Office"}},
		{{Start: 0, End: 5, Location: "Office"}, {Start: 1, End: 6, Location: "Gym"}},
	}
	for _, cal := range cals {
		for tick := 0; tick < 10; tick++ {
			if _, ok := EnforceSchedule(cal, "Home", tick, tick+1); ok {
				t.Fatalf("tick=%d busyUntil=%d cal=%v: expected none", tick, tick+1, cal)
			}
		}
	}
}

func TestEnforceSchedule_WindowBounds(t *testing.T) {
	cal := []Appointment{{Start: 30, End: 40, Location: "Office"}}
	if _, ok := EnforceSchedule(cal, "Home", 24, 0); ok {
		t.Fatalf("end-tick=16 is outside the window")
	}
	if _, ok := EnforceSchedule(cal, "Home", 25, 0); !ok {
		t.Fatalf("end-tick=15 is inside the window")
	}
	if _, ok := EnforceSchedule(cal, "Home", 40, 40); !ok {
		t.Fatalf("end-tick=0 is inside the window and busyUntil==tick is free")
	}
	if _, ok := EnforceSchedule(cal, "Home", 41, 0); ok {
		t.Fatalf("ended appointment must not force a move")
	}
	if _, ok := EnforceSchedule(cal, "Office", 30, 0); ok {
		t.Fatalf("already at location")
	}
}

func TestEnforceSchedule_FirstMatchWins(t *testing.T) {
	cal := []Appointment{
		{Start: 0, End: 12, Location: "Gym"},
		{Start: 0, End: 8, Location: "Office"},
	}
	mv, ok := EnforceSchedule(cal, "Home", 5, 0)
	if !ok || mv.To != "Gym" {
		t.Fatalf("mv=%+v want Gym (first match)", mv)
	}
	mv, ok = EnforceSchedule(cal, "Gym", 5, 0)
	if !ok || mv.To != "Office" {
		t.Fatalf("mv=%+v want Office once at Gym", mv)
	}
}

func TestDue(t *testing.T) {
	cal := []Appointment{{Start: 3, End: 5, Location: "A"}, {Start: 6, End: 9, Location: "B"}}
	if got := Due(cal, 5); len(got) != 1 || got[0].Location != "A" {
		t.Fatalf("due=%v", got)
	}
	if got := Due(cal, 10); len(got) != 0 {
		t.Fatalf("due=%v", got)
	}
}
