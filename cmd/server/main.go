package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"npcsim.ai/internal/persistence/archive"
	"npcsim.ai/internal/persistence/indexdb"
	persistlog "npcsim.ai/internal/persistence/log"
	"npcsim.ai/internal/persistence/snapshot"
	"npcsim.ai/internal/sim/catalogs"
	"npcsim.ai/internal/sim/decision"
	"npcsim.ai/internal/sim/kernel"
	"npcsim.ai/internal/sim/tuning"
	"npcsim.ai/internal/sim/world"
	"npcsim.ai/internal/transport/observer"
	"npcsim.ai/internal/transport/ws"
)

type serverFlags struct {
	Addr       string
	ConfigDir  string
	DataDir    string
	SeedWorld  string
	Snapshot   string
	LoadLatest bool
	DisableDB  bool
	TuningPath string
	LogLevel   string
}

func main() {
	var f serverFlags
	flag.StringVar(&f.Addr, "addr", ":8080", "http listen address")
	flag.StringVar(&f.ConfigDir, "configs", "./configs", "config directory")
	flag.StringVar(&f.DataDir, "data", "./data", "runtime data directory")
	flag.StringVar(&f.SeedWorld, "seed_world", "", "world seed yaml (default: <configs>/world.yaml)")
	flag.StringVar(&f.Snapshot, "snapshot", "", "path to snapshot to resume from (optional)")
	flag.BoolVar(&f.LoadLatest, "load_latest_snapshot", true, "resume from the latest snapshot in the data dir when -snapshot is empty")
	flag.BoolVar(&f.DisableDB, "disable_db", false, "disable the sqlite read-model index")
	flag.StringVar(&f.TuningPath, "tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
	flag.StringVar(&f.LogLevel, "log_level", "", "override tuning log_level (debug|info|warn|error)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, f); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f serverFlags) error {
	tp := strings.TrimSpace(f.TuningPath)
	if tp == "" {
		tp = filepath.Join(f.ConfigDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load tuning: %w", err)
		}
		tune = tuning.Defaults()
	}
	level := tune.LogLevel
	if f.LogLevel != "" {
		level = f.LogLevel
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("tuning not found; using defaults", "path", tp)
	}

	items, err := catalogs.Load(f.ConfigDir)
	if err != nil {
		return fmt.Errorf("load catalogs: %w", err)
	}

	w, err := loadWorld(f, tune, items, logger)
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	worldDir := filepath.Join(f.DataDir, "worlds", w.ID())
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		return err
	}
	logger = logger.With("world", w.ID())
	logger.Info("world ready", "run_id", runID, "tick", w.CurrentTick(), "agents", len(w.AgentIDs()))

	idx, err := openRuntimeIndex(worldDir, f.DisableDB)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.BeginRun(ctx, indexdb.RunInfo{RunID: runID, WorldID: w.ID(), Seed: tune.Seed, StartTick: w.CurrentTick()}); err != nil {
			logger.Warn("index: begin run", "err", err)
		}
		if err := idx.UpsertCatalogs(items, tune); err != nil {
			logger.Warn("index: upsert catalogs", "err", err)
		}
	}

	tickLog := persistlog.NewTickLogger(worldDir)
	defer tickLog.Close()
	msgLog := persistlog.NewMessageLogger(worldDir, func(err error) { logger.Warn("message log write", "err", err) })
	defer msgLog.Close()

	hub := ws.NewHub(logger)
	ticks := multiTickLogger{tickLog}
	presenters := multiPresenter{hub, msgLog}
	if idx != nil {
		ticks = append(ticks, idx)
		presenters = append(presenters, idx.Messages(runID))
	}

	// Exported before the kernel owns the world.
	boot := observer.NewBootstrap(w.ExportSnapshot(runID), tune.TickRateHz)

	snapCh := make(chan snapshot.SnapshotV1, 2)
	k := kernel.New(w, deciderFactory(tune), kernel.Config{
		TickRateHz:         tune.TickRateHz,
		Workers:            tune.Workers,
		EventQueueSize:     tune.EventQueueSize,
		InputQueueSize:     tune.InputQueueSize,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
		RunID:              runID,
	},
		kernel.WithLogger(logger),
		kernel.WithTickLogger(ticks),
		kernel.WithPresenter(presenters),
		kernel.WithSnapshotSink(snapCh),
	)

	wsSrv, err := ws.NewServer(hub, k, logger, ws.Options{})
	if err != nil {
		return fmt.Errorf("ws server: %w", err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(w.ID(), k, hub, idx))
	mux.HandleFunc("/v1/observe", wsSrv.Handler())
	mux.HandleFunc("/v1/observe/bootstrap", observer.BootstrapHandler(boot))
	if envBool("NPCSIM_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		registerAdmin(mux, w.ID(), runID, k)
	}
	srv := &http.Server{
		Addr:              f.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := k.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("kernel: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		writeSnapshots(gctx, worldDir, snapCh, idx, logger)
		return nil
	})
	g.Go(func() error {
		logger.Info("listening", "addr", f.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	err = g.Wait()
	logger.Info("server stopped", "tick", k.Stats().Tick)
	return err
}

// deciderFactory gives each worker its own composer and random source.
func deciderFactory(tune tuning.Tuning) func(shard int) kernel.Decider {
	return func(shard int) kernel.Decider {
		rng := rand.New(rand.NewPCG(uint64(tune.Seed), uint64(shard)))
		c := decision.Default(tune.Fallback, rng)
		if tune.Greetings {
			c.Insert(&decision.Greet{Chance: tune.GreetChance, Rand: rng})
		}
		return c
	}
}

func loadWorld(f serverFlags, tune tuning.Tuning, items *catalogs.ItemCatalog, logger *slog.Logger) (*world.World, error) {
	seedPath := strings.TrimSpace(f.SeedWorld)
	if seedPath == "" {
		seedPath = filepath.Join(f.ConfigDir, "world.yaml")
	}
	seed, err := world.LoadSeed(seedPath)
	if err != nil {
		return nil, fmt.Errorf("load world seed: %w", err)
	}
	events, err := world.LoadEventsIn(f.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	logger.Info("scheduled events loaded", "events", len(events.Events))

	snapPath := strings.TrimSpace(f.Snapshot)
	if snapPath == "" && f.LoadLatest && seed.WorldID != "" {
		snapPath = latestSnapshot(filepath.Join(f.DataDir, "worlds", seed.WorldID))
	}
	if snapPath != "" {
		snap, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		if seed.WorldID != "" && snap.Header.WorldID != seed.WorldID {
			return nil, fmt.Errorf("snapshot world id mismatch: seed=%s snap=%s", seed.WorldID, snap.Header.WorldID)
		}
		w, err := world.FromSnapshot(snap, items, world.WithEvents(events))
		if err != nil {
			return nil, fmt.Errorf("import snapshot: %w", err)
		}
		logger.Info("resumed from snapshot", "path", filepath.Base(snapPath), "tick", w.CurrentTick())
		return w, nil
	}

	w, err := seed.Build(world.ConfigFromTuning(seed.WorldID, tune), items, world.WithEvents(events))
	if err != nil {
		return nil, fmt.Errorf("build world: %w", err)
	}
	return w, nil
}

func writeSnapshots(ctx context.Context, worldDir string, ch <-chan snapshot.SnapshotV1, idx *indexdb.SQLiteIndex, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Error("snapshot write", "tick", snap.Header.Tick, "err", err)
				continue
			}
			logger.Debug("snapshot written", "path", path)
			if idx != nil {
				idx.RecordSnapshot(path, snap)
			}
			if day, dst, ok, err := archive.ArchiveDaySnapshot(worldDir, path, snap); err != nil {
				logger.Warn("snapshot archive", "tick", snap.Header.Tick, "err", err)
			} else if ok {
				logger.Info("day archived", "day", day, "path", dst)
			}
		}
	}
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

// parseLogLevel defaults to info for empty or unknown names.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
