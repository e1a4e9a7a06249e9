package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	persistlog "npcsim.ai/internal/persistence/log"
	"npcsim.ai/internal/persistence/snapshot"
	"npcsim.ai/internal/protocol"
	"npcsim.ai/internal/sim/catalogs"
	"npcsim.ai/internal/sim/tuning"
	"npcsim.ai/internal/sim/world"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst to start from (optional)")
		seedPath   = flag.String("seed_world", "", "world seed yaml used when no snapshot is given (default: <configs>/world.yaml)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml for seeded starts (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		runID      = flag.String("run", "", "run id to verify (default: the run that continues from the start tick)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	items, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Error("load catalogs", "err", err)
		os.Exit(1)
	}
	w, err := startWorld(*snapPath, *seedPath, *configDir, *tuningPath, items)
	if err != nil {
		logger.Error("start world", "err", err)
		os.Exit(1)
	}

	worldDir := filepath.Join(*dataDir, "worlds", w.ID())
	res, err := replay(w, worldDir, *runID, *toTick)
	if err != nil {
		logger.Error("replay failed", "world", w.ID(), "run_id", res.RunID, "checked", res.Checked, "err", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: world=%s run=%s ticks=%d..%d checked=%d events=%d\n",
		w.ID(), res.RunID, res.FirstTick, res.LastTick, res.Checked, res.Events)
}

// startWorld loads the same event table the server ran with; scheduled
// events fire inside timer ticks, so replay needs them to match digests.
func startWorld(snapPath, seedPath, configDir, tuningPath string, items *catalogs.ItemCatalog) (*world.World, error) {
	events, err := world.LoadEventsIn(configDir)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	if snapPath != "" {
		snap, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		return world.FromSnapshot(snap, items, world.WithEvents(events))
	}
	if seedPath == "" {
		seedPath = filepath.Join(configDir, "world.yaml")
	}
	if tuningPath == "" {
		tuningPath = filepath.Join(configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tuningPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load tuning: %w", err)
		}
		tune = tuning.Defaults()
	}
	seed, err := world.LoadSeed(seedPath)
	if err != nil {
		return nil, fmt.Errorf("load world seed: %w", err)
	}
	return seed.Build(world.ConfigFromTuning(seed.WorldID, tune), items, world.WithEvents(events))
}

type result struct {
	RunID     string
	FirstTick uint64
	LastTick  uint64
	Checked   uint64
	Events    uint64
}

var errNoTicks = errors.New("no tick records continue from the start tick")

// replay re-applies every logged event of one run onto w and compares the
// state digest after each tick. Records of other runs are skipped.
func replay(w *world.World, worldDir, runID string, toTick uint64) (result, error) {
	res := result{RunID: runID}
	start := w.CurrentTick()

	err := persistlog.ReadTicks(worldDir, func(rec protocol.TickRecord) error {
		if toTick != 0 && rec.Tick > toTick {
			return persistlog.ErrStop
		}
		if res.RunID == "" {
			if rec.Tick != start+1 {
				return nil
			}
			res.RunID = rec.RunID
		}
		if rec.RunID != res.RunID || rec.Tick <= start {
			return nil
		}
		if rec.Tick != w.CurrentTick()+1 {
			return fmt.Errorf("tick gap: world at %d, next record %d", w.CurrentTick(), rec.Tick)
		}
		for _, ev := range rec.Events {
			if err := ev.Validate(); err != nil {
				return fmt.Errorf("tick %d: %w", rec.Tick, err)
			}
			world.ApplyEvent(w, ev)
			res.Events++
		}
		if w.CurrentTick() != rec.Tick {
			return fmt.Errorf("tick %d: world stepped to %d", rec.Tick, w.CurrentTick())
		}
		if got := world.StateDigest(w); got != rec.Digest {
			return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", rec.Tick, shortDigest(got), shortDigest(rec.Digest))
		}
		if res.FirstTick == 0 {
			res.FirstTick = rec.Tick
		}
		res.LastTick = rec.Tick
		res.Checked++
		return nil
	})
	if err != nil {
		return res, err
	}
	if res.Checked == 0 {
		return res, errNoTicks
	}
	return res, nil
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return strings.TrimSpace(d)
}
