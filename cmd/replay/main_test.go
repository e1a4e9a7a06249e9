package main

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	persistlog "npcsim.ai/internal/persistence/log"
	"npcsim.ai/internal/protocol"
	"npcsim.ai/internal/sim/catalogs"
	"npcsim.ai/internal/sim/decision"
	"npcsim.ai/internal/sim/kernel"
	"npcsim.ai/internal/sim/tuning"
	"npcsim.ai/internal/sim/world"
)

const configDir = "../../configs"

func seededWorld(t *testing.T) *world.World {
	t.Helper()
	items, err := catalogs.Load(configDir)
	require.NoError(t, err)
	w, err := startWorld("", "", configDir, "", items)
	require.NoError(t, err)
	return w
}

// record runs a live kernel on the seeded world until it reaches ticks and
// returns the world dir holding its tick log.
func record(t *testing.T, runID string, ticks uint64) string {
	t.Helper()
	w := seededWorld(t)
	worldDir := filepath.Join(t.TempDir(), "worlds", w.ID())
	tickLog := persistlog.NewTickLogger(worldDir)

	tune := tuning.Defaults()
	k := kernel.New(w, func(shard int) kernel.Decider {
		return decision.Default(tune.Fallback, rand.New(rand.NewPCG(9, uint64(shard))))
	}, kernel.Config{TickRateHz: 100, Workers: 2, RunID: runID},
		kernel.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		kernel.WithTickLogger(tickLog),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()
	require.NoError(t, k.Submit(ctx, protocol.NewInput("notice market day")))
	require.NoError(t, k.Submit(ctx, protocol.NewInput("spawn town 4 4 bread 2")))
	require.Eventually(t, func() bool { return k.Stats().Tick >= ticks }, 10*time.Second, 5*time.Millisecond)
	cancel()
	<-done
	require.NoError(t, tickLog.Close())
	return worldDir
}

func TestReplay_ReproducesEveryDigest(t *testing.T) {
	worldDir := record(t, "run-1", 25)

	res, err := replay(seededWorld(t), worldDir, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, uint64(1), res.FirstTick)
	assert.GreaterOrEqual(t, res.Checked, uint64(25))
	assert.Equal(t, res.LastTick, res.Checked)
	assert.Greater(t, res.Events, res.Checked, "intents and inputs are replayed, not just timers")
}

func TestReplay_StopsAtToTick(t *testing.T) {
	worldDir := record(t, "run-1", 10)

	w := seededWorld(t)
	res, err := replay(w, worldDir, "run-1", 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), res.Checked)
	assert.Equal(t, uint64(5), w.CurrentTick())
}

func TestReplay_DetectsDivergence(t *testing.T) {
	worldDir := record(t, "run-1", 5)

	// A world that differs from the recorded start diverges on the first tick.
	w := seededWorld(t)
	world.ApplyEvent(w, protocol.NewInput("spawn town 1 1 rock 1"))
	_, err := replay(w, worldDir, "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "digest mismatch at tick 1")
}

func TestReplay_UnknownRun(t *testing.T) {
	worldDir := record(t, "run-1", 3)
	_, err := replay(seededWorld(t), worldDir, "run-2", 0)
	assert.ErrorIs(t, err, errNoTicks)
}
