package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"llmsim.ai/internal/sim/action"
	"llmsim.ai/internal/sim/agent"
	"llmsim.ai/internal/sim/catalogs"
	"llmsim.ai/internal/sim/places"
	"llmsim.ai/internal/sim/tuning"
	"llmsim.ai/internal/sim/world"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func loadTown() (*world.World, error) {
	g := places.NewGraph()
	_ = g.AddPlace(&places.Place{Name: "Home", Neighbors: []string{"Cafe"}})
	_ = g.AddPlace(&places.Place{Name: "Cafe", Tags: []string{places.TagFood}})
	w, err := world.New(world.Config{ID: "town", Tuning: tuning.Defaults()}, catalogs.Default(), g)
	if err != nil {
		return nil, err
	}
	for _, id := range []string{"ada", "bob"} {
		if err := w.AddAgent(agent.New(id, agent.Persona{Name: id, Age: 30}, nil, nil), "Home"); err != nil {
			return nil, err
		}
	}
	return w, nil
}

var idle = world.DeciderFunc(func(context.Context, world.AgentContext) world.Decision {
	return world.Decision{Action: action.New(action.Continue, nil)}
})

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStart_TwiceIsRejectedAndStopJoins(t *testing.T) {
	c := New(Config{Load: loadTown, Interval: time.Millisecond})
	if err := c.Start(context.Background(), idle, 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(context.Background(), idle, 0); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start err=%v", err)
	}
	waitFor(t, "a tick", func() bool { return c.GetState().Tick > 0 })

	c.Stop()
	st := c.GetState()
	if st.Running || st.Phase != Stopped {
		t.Fatalf("state after stop: %+v", st)
	}
	select {
	case <-c.Done():
	default:
		t.Fatalf("driver still running after Stop")
	}
	c.Stop()
}

func TestStart_MaxTicks(t *testing.T) {
	var mu sync.Mutex
	var ticks []int
	c := New(Config{
		Load:     loadTown,
		Interval: time.Millisecond,
		OnTick: func(e world.TickLogEntry, _ State) {
			mu.Lock()
			ticks = append(ticks, e.Tick)
			mu.Unlock()
		},
	})
	if err := c.Start(context.Background(), idle, 3); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-c.Done()
	st := c.GetState()
	if st.Tick != 3 || st.TicksRun != 3 || st.Running {
		t.Fatalf("state=%+v", st)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(ticks) != 3 || ticks[0] != 0 || ticks[2] != 2 {
		t.Fatalf("ticks=%v", ticks)
	}
	if st.AgentCount != 2 || st.Alive != 2 || st.WorldID != "town" {
		t.Fatalf("state=%+v", st)
	}
}

func TestPauseResumeAndStep(t *testing.T) {
	c := New(Config{Load: loadTown, Interval: time.Millisecond})
	if err := c.Start(context.Background(), idle, 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()
	waitFor(t, "a tick", func() bool { return c.GetState().Tick > 0 })

	if _, err := c.Step(context.Background()); !errors.Is(err, ErrRunning) {
		t.Fatalf("step while running err=%v", err)
	}

	c.Pause()
	if st := c.GetState(); !st.Paused || st.Phase != Paused {
		t.Fatalf("state=%+v", st)
	}
	// Let an in-flight tick land, then the count must hold still.
	time.Sleep(10 * time.Millisecond)
	frozen := c.GetState().Tick
	time.Sleep(20 * time.Millisecond)
	if got := c.GetState().Tick; got != frozen {
		t.Fatalf("ticked while paused: %d -> %d", frozen, got)
	}

	entry, err := c.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if entry.Tick != frozen || c.GetState().Tick != frozen+1 {
		t.Fatalf("step ran tick %d, state tick %d, want %d", entry.Tick, c.GetState().Tick, frozen)
	}

	c.Resume()
	waitFor(t, "resumed ticks", func() bool { return c.GetState().Tick > frozen+1 })
}

func TestResume_WakesOnlyAPausedDriver(t *testing.T) {
	c := New(Config{Load: loadTown, Interval: time.Hour})
	c.Resume()
	if len(c.wake) != 0 {
		t.Fatalf("resume before start queued a wake")
	}
	if err := c.Start(context.Background(), idle, 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()
	waitFor(t, "the first tick", func() bool { return c.GetState().Tick == 1 })

	c.Resume()
	time.Sleep(20 * time.Millisecond)
	if got := c.GetState().Tick; got != 1 || len(c.wake) != 0 {
		t.Fatalf("resume while running woke the driver: tick=%d pending=%d", got, len(c.wake))
	}

	c.Pause()
	c.Resume()
	waitFor(t, "a tick after resume", func() bool { return c.GetState().Tick == 2 })
}

func TestMetrics_DoNotWaitForTheTickInProgress(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	slow := world.DeciderFunc(func(context.Context, world.AgentContext) world.Decision {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return world.Decision{Action: action.New(action.Continue, nil)}
	})
	c := New(Config{Load: loadTown, Interval: time.Millisecond})
	if _, ok := c.Metrics(); ok {
		t.Fatalf("metrics before load")
	}
	if err := c.Start(context.Background(), slow, 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-entered

	got := make(chan world.Metrics, 1)
	go func() {
		m, _ := c.Metrics()
		got <- m
	}()
	select {
	case m := <-got:
		if m.Ticks != 0 {
			t.Fatalf("metrics ticks=%d want 0", m.Ticks)
		}
	case <-time.After(time.Second):
		close(release)
		t.Fatalf("metrics blocked behind the running tick")
	}

	close(release)
	<-c.Done()
	if m, ok := c.Metrics(); !ok || m.Ticks != 1 {
		t.Fatalf("metrics after tick=%+v ok=%v", m, ok)
	}
}

func TestStep_LoadsWorldWhenIdle(t *testing.T) {
	loads := 0
	c := New(Config{Load: func() (*world.World, error) { loads++; return loadTown() }, Decider: idle})
	for i := 0; i < 2; i++ {
		if _, err := c.Step(context.Background()); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	st := c.GetState()
	if st.Tick != 2 || st.Phase != Idle || loads != 1 {
		t.Fatalf("state=%+v loads=%d", st, loads)
	}
	err := c.WithWorld(func(w *world.World) error {
		if w.Tick() != 2 {
			t.Fatalf("world tick=%d", w.Tick())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with world: %v", err)
	}
}

func TestStart_LoadFailure(t *testing.T) {
	boom := errors.New("boom")
	c := New(Config{Load: func() (*world.World, error) { return nil, boom }})
	if err := c.Start(context.Background(), idle, 0); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if st := c.GetState(); st.Running || st.Phase != Idle {
		t.Fatalf("state=%+v", st)
	}
	if err := New(Config{}).Start(context.Background(), idle, 0); !errors.Is(err, ErrNoWorld) {
		t.Fatalf("err=%v", err)
	}
}

func TestSetSpeed(t *testing.T) {
	c := New(Config{Load: loadTown})
	if err := c.SetSpeed(0); !errors.Is(err, ErrBadInterval) {
		t.Fatalf("err=%v", err)
	}
	if err := c.SetSpeed(250 * time.Millisecond); err != nil {
		t.Fatalf("set speed: %v", err)
	}
	if got := c.GetState().Interval; got != 250*time.Millisecond {
		t.Fatalf("interval=%s", got)
	}
}

func TestContextCancelStopsDriver(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := New(Config{Load: loadTown, Interval: time.Hour})
	if err := c.Start(ctx, idle, 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("driver ignored cancellation")
	}
	if c.GetState().Running {
		t.Fatalf("still running")
	}
}
