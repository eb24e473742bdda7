package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"llmsim.ai/internal/oracle"
	"llmsim.ai/internal/persistence/indexdb"
	persistlog "llmsim.ai/internal/persistence/log"
	"llmsim.ai/internal/persistence/snapshot"
	"llmsim.ai/internal/sim/catalogs"
	"llmsim.ai/internal/sim/memory"
	"llmsim.ai/internal/sim/tuning"
	"llmsim.ai/internal/sim/world"
	"llmsim.ai/internal/transport/observer"
	"llmsim.ai/internal/worldfile"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldPath  = flag.String("world", "./worlds/town.yaml", "world file (yaml or json)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: built-in tuning)")
		itemsPath  = flag.String("items", "", "path to items.json (default: built-in catalog)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		seed       = flag.Int64("seed", 0, "world seed override (0: use the world file's)")
		maxTicks   = flag.Int("max_ticks", 0, "stop after this many ticks when autostarted (0: run until stopped)")
		resume     = flag.Bool("resume", false, "resume from the latest snapshot in the data dir if present")

		oracleKind = flag.String("oracle", "rules", "decision oracle: rules | ollama")
		ollamaURL  = flag.String("ollama_url", oracle.DefaultOllamaURL, "ollama base url")
		model      = flag.String("model", oracle.DefaultChatModel, "ollama chat model")
		embedModel = flag.String("embed_model", oracle.DefaultEmbedModel, "ollama embedding model")

		disableDB   = flag.Bool("disable_db", false, "disable the sqlite index")
		autostart   = flag.Bool("autostart", false, "start ticking immediately")
		allowRemote = flag.Bool("observe_remote", false, "accept non-loopback observer clients")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune := tuning.Defaults()
	if tp := strings.TrimSpace(*tuningPath); tp != "" {
		t, err := tuning.Load(tp)
		if err != nil {
			logger.Fatalf("load tuning: %v", err)
		}
		tune = t
	}
	items := catalogs.Default()
	if ip := strings.TrimSpace(*itemsPath); ip != "" {
		c, err := catalogs.Load(ip)
		if err != nil {
			logger.Fatalf("load items: %v", err)
		}
		items = c
	}

	wf, err := worldfile.Load(*worldPath)
	if err != nil {
		logger.Fatalf("load world: %v", err)
	}
	worldID := wf.ID
	if worldID == "" {
		worldID = strings.TrimSuffix(filepath.Base(*worldPath), filepath.Ext(*worldPath))
	}
	worldDir := filepath.Join(*dataDir, "worlds", worldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	var (
		base     oracle.Oracle
		embedder memory.Embedder
	)
	switch *oracleKind {
	case "rules":
		base = oracle.Rules{TicksPerDay: tune.TicksPerDay, MinutesPerTick: tune.MinutesPerTick}
	case "ollama":
		o := oracle.NewOllama(oracle.OllamaConfig{
			BaseURL:    *ollamaURL,
			Model:      *model,
			EmbedModel: *embedModel,
			Seed:       int(*seed),
		})
		base, embedder = o, o
	default:
		logger.Fatalf("unknown -oracle %q (want rules or ollama)", *oracleKind)
	}
	repairs := tune.Oracle.MaxRepairs
	if repairs == 0 {
		repairs = oracle.NoRepairs
	}
	decider := oracle.NewResolver(base, oracle.ResolverConfig{
		Timeout:    time.Duration(tune.Oracle.TimeoutMs) * time.Millisecond,
		MaxRepairs: repairs,
		Backoff:    time.Duration(tune.Oracle.BackoffMs) * time.Millisecond,
		Logger:     logger,
	})

	snapPath := ""
	if *resume {
		snapPath = latestSnapshot(worldDir)
	}
	load := func() (*world.World, error) {
		cfg := world.Config{ID: worldID, Seed: *seed, Tuning: tune, Embedder: embedder, Logger: logger}
		if snapPath != "" {
			snap, err := snapshot.ReadSnapshot(snapPath)
			if err != nil {
				return nil, err
			}
			w, err := world.ImportSnapshot(cfg, items, snap)
			if err != nil {
				return nil, err
			}
			logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapPath), w.Tick())
			return w, nil
		}
		return worldfile.Build(wf, worldfile.BuildOptions{
			ID:       worldID,
			Seed:     *seed,
			Tuning:   tune,
			Items:    items,
			Embedder: embedder,
			Logger:   logger,
		})
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(worldDir)
	defer tickLog.Close()

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		// The index is a read model; the run proceeds without it.
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"), "")
		if err != nil {
			logger.Printf("index disabled: %v", err)
			idx = nil
		} else {
			defer idx.Close()
		}
	}

	a := newApp(ctx, appConfig{
		WorldDir:   worldDir,
		Load:       load,
		Decider:    decider,
		Interval:   time.Duration(tune.TickIntervalMs) * time.Millisecond,
		Index:      idx,
		Observer:   observer.NewServer(observer.Options{AllowRemote: *allowRemote, Logger: logger}),
		TickLogger: tickLog,
		Logger:     logger,
	})

	if *autostart {
		if err := a.ctl.Start(ctx, nil, *maxTicks); err != nil {
			logger.Fatalf("start: %v", err)
		}
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
		a.shutdown()
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Printf("server: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
