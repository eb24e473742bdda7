// Package controller drives a world's ticks on one background goroutine while
// synchronous control calls start, pause, resume, step and stop it.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"llmsim.ai/internal/sim/world"
)

var (
	ErrAlreadyRunning = errors.New("simulation already running")
	ErrRunning        = errors.New("simulation is running; pause it first")
	ErrNoWorld        = errors.New("no world loaded")
	ErrBadInterval    = errors.New("tick interval must be positive")
)

type Phase string

const (
	Idle    Phase = "idle"
	Running Phase = "running"
	Paused  Phase = "paused"
	Stopped Phase = "stopped"
)

type Config struct {
	// Load supplies the world on the first Start or Step.
	Load func() (*world.World, error)
	// Decider is used when Start is given none.
	Decider  world.Decider
	Interval time.Duration
	Logger   *log.Logger
	// OnTick runs on the ticking goroutine after every tick.
	OnTick func(world.TickLogEntry, State)
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard, "", 0)
	}
}

// State is a consistent copy of the controller's fields.
type State struct {
	Phase      Phase         `json:"phase"`
	Running    bool          `json:"running"`
	Paused     bool          `json:"paused"`
	Tick       int           `json:"tick"`
	Interval   time.Duration `json:"interval_ns"`
	MaxTicks   int           `json:"max_ticks,omitempty"`
	TicksRun   int           `json:"ticks_run"`
	WorldID    string        `json:"world_id,omitempty"`
	AgentCount int           `json:"agent_count"`
	Alive      int           `json:"alive"`
	LastDigest string        `json:"last_digest,omitempty"`
}

type Controller struct {
	cfg Config

	// mu guards every field below; tickMu serializes access to the world.
	mu       sync.Mutex
	tickMu   sync.Mutex
	phase    Phase
	running  bool
	paused   bool
	stopping bool
	interval time.Duration
	maxTicks int
	ticksRun int
	tick     int
	world    *world.World
	decider  world.Decider
	agents   int
	alive    int
	digest   string
	// metrics is replaced after every tick, never mutated.
	metrics *world.Metrics
	done    chan struct{}
	wake    chan struct{}
}

func New(cfg Config) *Controller {
	cfg.applyDefaults()
	done := make(chan struct{})
	close(done)
	return &Controller{
		cfg:      cfg,
		phase:    Idle,
		interval: cfg.Interval,
		decider:  cfg.Decider,
		done:     done,
		wake:     make(chan struct{}, 1),
	}
}

// Start spawns the tick driver. maxTicks <= 0 runs until Stop. A stopped
// controller restarts on the world it already holds.
func (c *Controller) Start(ctx context.Context, d world.Decider, maxTicks int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}
	if err := c.loadLocked(); err != nil {
		return err
	}
	if d != nil {
		c.decider = d
	}
	c.running = true
	c.paused = false
	c.stopping = false
	c.phase = Running
	c.maxTicks = maxTicks
	c.ticksRun = 0
	c.done = make(chan struct{})
	c.drainWake()

	c.cfg.Logger.Printf("controller: start world %s at tick %d (max_ticks=%d interval=%s)", c.world.ID(), c.tick, maxTicks, c.interval)
	go c.drive(ctx, c.world, c.decider, c.done)
	return nil
}

func (c *Controller) loadLocked() error {
	if c.world != nil {
		return nil
	}
	if c.cfg.Load == nil {
		return ErrNoWorld
	}
	w, err := c.cfg.Load()
	if err != nil {
		return fmt.Errorf("load world: %w", err)
	}
	if w == nil {
		return ErrNoWorld
	}
	c.world = w
	c.observeLocked(w)
	return nil
}

func (c *Controller) drive(ctx context.Context, w *world.World, d world.Decider, done chan struct{}) {
	defer close(done)
	defer func() {
		c.mu.Lock()
		c.running = false
		c.paused = false
		c.stopping = false
		c.phase = Stopped
		tick := c.tick
		c.mu.Unlock()
		c.cfg.Logger.Printf("controller: stopped world %s at tick %d", w.ID(), tick)
	}()

	for {
		c.mu.Lock()
		stop := c.stopping
		paused := c.paused
		interval := c.interval
		c.mu.Unlock()
		if stop || ctx.Err() != nil {
			return
		}

		if !paused {
			entry := c.stepWorld(ctx, w, d)
			c.mu.Lock()
			c.ticksRun++
			finished := c.maxTicks > 0 && c.ticksRun >= c.maxTicks
			st := c.stateLocked()
			c.mu.Unlock()
			if c.cfg.OnTick != nil {
				c.cfg.OnTick(entry, st)
			}
			if finished {
				return
			}
		}

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-c.wake:
			t.Stop()
		case <-t.C:
		}
	}
}

// stepWorld runs one tick and records the result under mu.
func (c *Controller) stepWorld(ctx context.Context, w *world.World, d world.Decider) world.TickLogEntry {
	c.tickMu.Lock()
	entry := w.StepOnce(ctx, d)
	c.mu.Lock()
	c.observeLocked(w)
	c.digest = entry.Digest
	c.mu.Unlock()
	c.tickMu.Unlock()
	for _, e := range entry.Errors {
		c.cfg.Logger.Printf("controller: tick %d agent %s", entry.Tick, e)
	}
	return entry
}

func (c *Controller) observeLocked(w *world.World) {
	c.tick = w.Tick()
	c.agents = len(w.Agents())
	c.alive = w.AliveCount()
	m := w.Metrics()
	c.metrics = &m
}

// Metrics returns the world metrics as of the last completed tick without
// waiting for the tick in progress.
func (c *Controller) Metrics() (world.Metrics, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.metrics == nil {
		return world.Metrics{}, false
	}
	return *c.metrics, true
}

func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running && !c.paused {
		c.paused = true
		c.phase = Paused
	}
}

// Resume wakes the driver only when it was paused.
func (c *Controller) Resume() {
	c.mu.Lock()
	resumed := c.running && c.paused
	if resumed {
		c.paused = false
		c.phase = Running
	}
	c.mu.Unlock()
	if resumed {
		c.notify()
	}
}

// Stop asks the driver to exit and waits for it. The tick in progress, if any,
// completes first.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.stopping = true
	done := c.done
	c.mu.Unlock()
	c.notify()
	<-done
}

// Done is closed when the current driver exits.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Step advances exactly one tick on the caller's goroutine. It is refused
// while the driver is running unpaused.
func (c *Controller) Step(ctx context.Context) (world.TickLogEntry, error) {
	c.mu.Lock()
	if c.running && !c.paused {
		c.mu.Unlock()
		return world.TickLogEntry{}, ErrRunning
	}
	if err := c.loadLocked(); err != nil {
		c.mu.Unlock()
		return world.TickLogEntry{}, err
	}
	w, d := c.world, c.decider
	c.mu.Unlock()

	entry := c.stepWorld(ctx, w, d)
	if c.cfg.OnTick != nil {
		c.cfg.OnTick(entry, c.GetState())
	}
	return entry, nil
}

// SetSpeed changes the sleep between ticks, effective after the current one.
func (c *Controller) SetSpeed(interval time.Duration) error {
	if interval <= 0 {
		return ErrBadInterval
	}
	c.mu.Lock()
	c.interval = interval
	c.mu.Unlock()
	return nil
}

func (c *Controller) GetState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	st := State{
		Phase:      c.phase,
		Running:    c.running,
		Paused:     c.paused,
		Tick:       c.tick,
		Interval:   c.interval,
		MaxTicks:   c.maxTicks,
		TicksRun:   c.ticksRun,
		AgentCount: c.agents,
		Alive:      c.alive,
		LastDigest: c.digest,
	}
	if c.world != nil {
		st.WorldID = c.world.ID()
	}
	return st
}

// WithWorld runs fn with exclusive access to the world, between ticks.
func (c *Controller) WithWorld(fn func(*world.World) error) error {
	c.mu.Lock()
	if err := c.loadLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	w := c.world
	c.mu.Unlock()

	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	return fn(w)
}

func (c *Controller) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) drainWake() {
	select {
	case <-c.wake:
	default:
	}
}
