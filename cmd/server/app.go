package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"llmsim.ai/internal/persistence/indexdb"
	persistlog "llmsim.ai/internal/persistence/log"
	"llmsim.ai/internal/persistence/snapshot"
	"llmsim.ai/internal/sim/controller"
	"llmsim.ai/internal/sim/world"
	"llmsim.ai/internal/transport/observer"
)

// app wires one world's controller to its logs, index, snapshots and
// observer feed, and serves the HTTP control surface.
type app struct {
	baseCtx  context.Context
	logger   *log.Logger
	worldDir string

	ctl *controller.Controller
	obs *observer.Server
	idx *indexdb.SQLiteIndex

	mu        sync.Mutex
	lastSaved int
	lastPath  string
}

type appConfig struct {
	WorldDir string
	Load     func() (*world.World, error)
	Decider  world.Decider
	Interval time.Duration
	Index    *indexdb.SQLiteIndex
	Observer *observer.Server
	// TickLogger is attached to the world when it is loaded.
	TickLogger world.TickLogger
	Logger     *log.Logger
}

func newApp(ctx context.Context, cfg appConfig) *app {
	a := &app{
		baseCtx:   ctx,
		logger:    cfg.Logger,
		worldDir:  cfg.WorldDir,
		obs:       cfg.Observer,
		idx:       cfg.Index,
		lastSaved: -1,
	}
	if a.obs == nil {
		a.obs = observer.NewServer(observer.Options{Logger: cfg.Logger})
	}
	load := func() (*world.World, error) {
		w, err := cfg.Load()
		if err != nil {
			return nil, err
		}
		var sinks persistlog.Tee
		if cfg.TickLogger != nil {
			sinks = append(sinks, cfg.TickLogger)
		}
		if cfg.Index != nil {
			sinks = append(sinks, cfg.Index)
		}
		if len(sinks) > 0 {
			w.SetTickLogger(sinks)
		}
		if cfg.Index != nil {
			cfg.Index.SetMeta("world_id", w.ID())
			cfg.Index.SetMeta("run_id", w.RunID())
		}
		a.logger.Printf("loaded world %s run %s: %d places, %d agents, %d bridges",
			w.ID(), w.RunID(), w.Graph().Len(), len(w.Agents()), len(w.Bridges()))
		return w, nil
	}
	a.ctl = controller.New(controller.Config{
		Load:     load,
		Decider:  cfg.Decider,
		Interval: cfg.Interval,
		Logger:   cfg.Logger,
		OnTick:   a.onTick,
	})
	return a
}

// onTick runs on the ticking goroutine, between ticks.
func (a *app) onTick(e world.TickLogEntry, st controller.State) {
	var views []observer.AgentView
	_ = a.ctl.WithWorld(func(w *world.World) error {
		views = observer.Views(w)
		return nil
	})
	a.obs.Publish(observer.TickFrame(e, string(st.Phase), st.Alive, views))
	if st.MaxTicks > 0 && st.TicksRun >= st.MaxTicks {
		if _, err := a.saveSnapshot(); err != nil {
			a.logger.Printf("snapshot: %v", err)
		}
	}
}

// saveSnapshot writes the world at its current tick unless that tick is
// already on disk.
func (a *app) saveSnapshot() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var path string
	err := a.ctl.WithWorld(func(w *world.World) error {
		if w.Tick() == a.lastSaved {
			path = a.lastPath
			return nil
		}
		path = snapshot.Path(a.worldDir, w.Tick())
		if err := snapshot.WriteSnapshot(path, w.ExportSnapshot()); err != nil {
			return err
		}
		a.lastSaved, a.lastPath = w.Tick(), path
		a.logger.Printf("snapshot written: %s", path)
		return nil
	})
	return path, err
}

// shutdown stops the driver and persists the final state.
func (a *app) shutdown() {
	a.ctl.Stop()
	if st := a.ctl.GetState(); st.WorldID != "" {
		if _, err := a.saveSnapshot(); err != nil {
			a.logger.Printf("snapshot: %v", err)
		}
	}
}

func (a *app) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", a.handleMetrics)
	mux.HandleFunc("/v1/state", a.handleState)
	mux.HandleFunc("/v1/control/", a.handleControl)
	mux.HandleFunc("/v1/observe", a.obs.Handler())
	return mux
}

type stateResponse struct {
	State    controller.State `json:"state"`
	Metrics  *world.Metrics   `json:"metrics,omitempty"`
	Index    *indexdb.Stats   `json:"index,omitempty"`
	Observer observer.Stats   `json:"observer"`
	Snapshot string           `json:"snapshot,omitempty"`
}

func (a *app) state() stateResponse {
	resp := stateResponse{State: a.ctl.GetState(), Observer: a.obs.Stats()}
	if m, ok := a.ctl.Metrics(); ok {
		resp.Metrics = &m
	}
	if a.idx != nil {
		st := a.idx.Stats()
		resp.Index = &st
	}
	return resp
}

func (a *app) handleState(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(rw, http.StatusOK, a.state())
}

func (a *app) handleControl(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch cmd := strings.TrimPrefix(r.URL.Path, "/v1/control/"); cmd {
	case "start":
		maxTicks := 0
		if s := r.URL.Query().Get("max_ticks"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				writeError(rw, http.StatusBadRequest, fmt.Errorf("bad max_ticks: %q", s))
				return
			}
			maxTicks = n
		}
		// The driver outlives the request.
		if err := a.ctl.Start(a.baseCtx, nil, maxTicks); err != nil {
			writeError(rw, statusFor(err), err)
			return
		}
	case "pause":
		a.ctl.Pause()
	case "resume":
		a.ctl.Resume()
	case "stop":
		a.ctl.Stop()
		var path string
		if a.ctl.GetState().WorldID != "" {
			p, err := a.saveSnapshot()
			if err != nil {
				writeError(rw, http.StatusInternalServerError, err)
				return
			}
			path = p
		}
		resp := a.state()
		resp.Snapshot = path
		writeJSON(rw, http.StatusOK, resp)
		return
	case "step":
		entry, err := a.ctl.Step(r.Context())
		if err != nil {
			writeError(rw, statusFor(err), err)
			return
		}
		writeJSON(rw, http.StatusOK, entry)
		return
	case "speed":
		secs, err := strconv.ParseFloat(r.URL.Query().Get("seconds"), 64)
		if err != nil {
			writeError(rw, http.StatusBadRequest, fmt.Errorf("bad seconds: %v", err))
			return
		}
		if err := a.ctl.SetSpeed(time.Duration(secs * float64(time.Second))); err != nil {
			writeError(rw, statusFor(err), err)
			return
		}
	default:
		http.NotFound(rw, r)
		return
	}
	writeJSON(rw, http.StatusOK, a.state())
}

func (a *app) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	st := a.state()
	id := st.State.WorldID

	fmt.Fprintf(rw, "# HELP llmsim_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE llmsim_world_tick gauge\n")
	fmt.Fprintf(rw, "llmsim_world_tick{world=%q} %d\n", id, st.State.Tick)

	fmt.Fprintf(rw, "# HELP llmsim_world_agents Agents in the world, living and dead.\n")
	fmt.Fprintf(rw, "# TYPE llmsim_world_agents gauge\n")
	fmt.Fprintf(rw, "llmsim_world_agents{world=%q,state=%q} %d\n", id, "alive", st.State.Alive)
	fmt.Fprintf(rw, "llmsim_world_agents{world=%q,state=%q} %d\n", id, "dead", st.State.AgentCount-st.State.Alive)

	if m := st.Metrics; m != nil {
		fmt.Fprintf(rw, "# HELP llmsim_world_total World counters since the run started.\n")
		fmt.Fprintf(rw, "# TYPE llmsim_world_total counter\n")
		fmt.Fprintf(rw, "llmsim_world_total{world=%q,metric=%q} %d\n", id, "broadcasts", m.Broadcasts)
		fmt.Fprintf(rw, "llmsim_world_total{world=%q,metric=%q} %d\n", id, "dropped_events", m.DroppedEvents)
		fmt.Fprintf(rw, "llmsim_world_total{world=%q,metric=%q} %d\n", id, "oracle_failures", m.OracleFailures)
		fmt.Fprintf(rw, "llmsim_world_total{world=%q,metric=%q} %d\n", id, "oracle_repairs", m.OracleRepairs)
		fmt.Fprintf(rw, "llmsim_world_total{world=%q,metric=%q} %d\n", id, "agent_errors", m.AgentErrors)
		fmt.Fprintf(rw, "llmsim_world_total{world=%q,metric=%q} %d\n", id, "deaths", m.Deaths)
		fmt.Fprintf(rw, "llmsim_world_total{world=%q,metric=%q} %d\n", id, "suppressed", m.Suppressed)
	}

	if ix := st.Index; ix != nil {
		fmt.Fprintf(rw, "# HELP llmsim_index_queue_depth Index writer backlog.\n")
		fmt.Fprintf(rw, "# TYPE llmsim_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "llmsim_index_queue_depth %d\n", ix.QueueDepth)
		fmt.Fprintf(rw, "# HELP llmsim_index_dropped_total Tick entries dropped because the index fell behind.\n")
		fmt.Fprintf(rw, "# TYPE llmsim_index_dropped_total counter\n")
		fmt.Fprintf(rw, "llmsim_index_dropped_total %d\n", ix.DropTickTotal)
	}

	fmt.Fprintf(rw, "# HELP llmsim_observer_clients Connected observer clients.\n")
	fmt.Fprintf(rw, "# TYPE llmsim_observer_clients gauge\n")
	fmt.Fprintf(rw, "llmsim_observer_clients %d\n", st.Observer.Clients)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, controller.ErrAlreadyRunning), errors.Is(err, controller.ErrRunning):
		return http.StatusConflict
	case errors.Is(err, controller.ErrBadInterval):
		return http.StatusBadRequest
	case errors.Is(err, controller.ErrNoWorld):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, code int, err error) {
	writeJSON(rw, code, map[string]any{"ok": false, "error": err.Error()})
}

// latestSnapshot returns the highest-tick snapshot under worldDir, or "".
func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	bestTick := -1
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.Atoi(strings.TrimSuffix(name, ".snap.zst"))
		if err != nil {
			continue
		}
		if tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
