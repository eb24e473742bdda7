package oracle

import (
	"context"
	"strings"
	"testing"
	"time"

	"llmsim.ai/internal/sim/action"
	"llmsim.ai/internal/sim/world"
)

func TestResolver_RepairsMalformedAnswer(t *testing.T) {
	var repairs []*Repair
	answers := []string{"let me think", `{"action": "FLY"}`, `{"action": "SLEEP", "private_thought": "finally"}`}
	o := Func(func(_ context.Context, req Request) (string, error) {
		repairs = append(repairs, req.Repair)
		a := answers[0]
		answers = answers[1:]
		return a, nil
	})
	d := NewResolver(o, ResolverConfig{MaxRepairs: 3}).Decide(context.Background(), world.AgentContext{AgentID: "ada"})
	if d.Failed || d.Action.Verb != action.Sleep || d.Attempts != 3 {
		t.Fatalf("decision=%+v", d)
	}
	if repairs[0] != nil {
		t.Fatalf("first request carried a repair")
	}
	if repairs[2] == nil || repairs[2].Previous != `{"action": "FLY"}` || !strings.Contains(repairs[2].Problem, "no action verb") {
		t.Fatalf("repair=%+v", repairs[2])
	}
}

func TestResolver_FallsBackAfterRepairsExhausted(t *testing.T) {
	calls := 0
	o := Func(func(context.Context, Request) (string, error) {
		calls++
		return "no json here", nil
	})
	d := NewResolver(o, ResolverConfig{MaxRepairs: 3}).Decide(context.Background(), world.AgentContext{AgentID: "ada"})
	if !d.Failed || d.Action.Verb != action.Think || d.Attempts != 4 || calls != 4 {
		t.Fatalf("decision=%+v calls=%d", d, calls)
	}
	if !strings.Contains(d.Action.Str(action.KeyText), "train of thought") {
		t.Fatalf("text=%q", d.Action.Str(action.KeyText))
	}
}

func TestResolver_ZeroConfigRepairsThreeTimes(t *testing.T) {
	calls := 0
	o := Func(func(context.Context, Request) (string, error) {
		calls++
		return "garbage", nil
	})
	d := NewResolver(o, ResolverConfig{}).Decide(context.Background(), world.AgentContext{AgentID: "ada"})
	if !d.Failed || calls != 1+DefaultMaxRepairs || d.Attempts != calls {
		t.Fatalf("decision=%+v calls=%d want %d", d, calls, 1+DefaultMaxRepairs)
	}

	calls = 0
	d = NewResolver(o, ResolverConfig{MaxRepairs: NoRepairs}).Decide(context.Background(), world.AgentContext{AgentID: "ada"})
	if !d.Failed || calls != 1 {
		t.Fatalf("no repairs: decision=%+v calls=%d", d, calls)
	}
}

func TestResolver_TimeoutTreatedAsMalformed(t *testing.T) {
	calls := 0
	o := Func(func(ctx context.Context, _ Request) (string, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return `{"action": "WORK"}`, nil
	})
	d := NewResolver(o, ResolverConfig{Timeout: 10 * time.Millisecond, MaxRepairs: 1}).Decide(context.Background(), world.AgentContext{})
	if d.Failed || d.Action.Verb != action.Work || d.Attempts != 2 {
		t.Fatalf("decision=%+v", d)
	}

	slow := Func(func(ctx context.Context, _ Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	d = NewResolver(slow, ResolverConfig{Timeout: 5 * time.Millisecond, MaxRepairs: 2}).Decide(context.Background(), world.AgentContext{})
	if !d.Failed || !strings.Contains(d.Action.Str(action.KeyText), "too long") {
		t.Fatalf("decision=%+v", d)
	}
}
