package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"npcsim.ai/internal/persistence/snapshot"
	"npcsim.ai/internal/protocol"
	"npcsim.ai/internal/sim/catalogs"
	"npcsim.ai/internal/sim/decision"
	"npcsim.ai/internal/sim/kernel"
	"npcsim.ai/internal/sim/tuning"
	"npcsim.ai/internal/transport/ws"
)

const configDir = "../../configs"

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, latestSnapshot(dir))

	snaps := filepath.Join(dir, "snapshots")
	require.NoError(t, os.MkdirAll(snaps, 0o755))
	for _, name := range []string{"900.snap.zst", "12000.snap.zst", "3000.snap.zst", "junk.snap.zst", "5000.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(snaps, name), nil, 0o644))
	}
	assert.Equal(t, filepath.Join(snaps, "12000.snap.zst"), latestSnapshot(dir))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func TestLoadWorld_SeedThenSnapshot(t *testing.T) {
	items, err := catalogs.Load(configDir)
	require.NoError(t, err)
	tune := tuning.Defaults()
	data := t.TempDir()
	f := serverFlags{ConfigDir: configDir, DataDir: data, LoadLatest: true}

	w, err := loadWorld(f, tune, items, quiet)
	require.NoError(t, err)
	assert.Equal(t, "riverside", w.ID())
	assert.Equal(t, uint64(0), w.CurrentTick())

	// A snapshot in the data dir wins over the seed.
	snap := w.ExportSnapshot("run-a")
	snap.Header.Tick = 42
	require.NoError(t, snapshot.WriteSnapshot(filepath.Join(data, "worlds", "riverside", "snapshots", "42.snap.zst"), snap))

	w2, err := loadWorld(f, tune, items, quiet)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), w2.CurrentTick())

	f.LoadLatest = false
	w3, err := loadWorld(f, tune, items, quiet)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), w3.CurrentTick())
}

func TestDeciderFactory(t *testing.T) {
	tune := tuning.Defaults()
	c, ok := deciderFactory(tune)(0).(*decision.Composer)
	require.True(t, ok)
	assert.Len(t, c.Strategies(), 5)

	tune.Greetings = true
	c = deciderFactory(tune)(1).(*decision.Composer)
	require.Len(t, c.Strategies(), 6)
	_, isGreet := c.Strategies()[4].(*decision.Greet)
	assert.True(t, isGreet, "greeting runs just before the fallback")
}

type fixedStats kernel.Stats

func (s fixedStats) Stats() kernel.Stats { return kernel.Stats(s) }

func TestWriteMetrics(t *testing.T) {
	var buf bytes.Buffer
	writeMetrics(&buf, "riverside", kernel.Stats{Tick: 12, Workers: 2, EventsApplied: 30, ViewsDropped: 1, ViewsDeferred: 4}, ws.NewHub(quiet), nil)
	out := buf.String()
	assert.Contains(t, out, `npcsim_world_tick{world="riverside"} 12`)
	assert.Contains(t, out, `npcsim_kernel_workers{world="riverside"} 2`)
	assert.Contains(t, out, `npcsim_events_applied_total{world="riverside"} 30`)
	assert.Contains(t, out, `npcsim_view_batches_replaced_total{world="riverside"} 1`)
	assert.Contains(t, out, `npcsim_view_batches_deferred_total{world="riverside"} 4`)
	assert.Contains(t, out, `npcsim_observers{world="riverside"} 0`)
	assert.NotContains(t, out, "npcsim_index_")

	_ = metricsHandler("riverside", fixedStats{Tick: 1}, nil, nil)
}

type failingTickLogger struct{ n int }

func (f *failingTickLogger) WriteTick(protocol.TickRecord) error {
	f.n++
	return errors.New("disk full")
}

type countingTickLogger struct{ n int }

func (c *countingTickLogger) WriteTick(protocol.TickRecord) error {
	c.n++
	return nil
}

func TestMultiTickLogger_WritesAll(t *testing.T) {
	bad, good := &failingTickLogger{}, &countingTickLogger{}
	err := multiTickLogger{bad, good}.WriteTick(protocol.TickRecord{Tick: 1})
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, 1, bad.n)
	assert.Equal(t, 1, good.n)
}

func TestOpenRuntimeIndex(t *testing.T) {
	idx, err := openRuntimeIndex(t.TempDir(), true)
	require.NoError(t, err)
	assert.Nil(t, idx)

	t.Setenv("NPCSIM_INDEX_BACKEND", "bogus")
	_, err = openRuntimeIndex(t.TempDir(), false)
	assert.Error(t, err)

	t.Setenv("NPCSIM_INDEX_BACKEND", "sqlite")
	idx, err = openRuntimeIndex(t.TempDir(), false)
	require.NoError(t, err)
	require.NotNil(t, idx)
	require.NoError(t, idx.Close())
}

type adminStub struct {
	requested int
	err       error
}

func (a *adminStub) Stats() kernel.Stats { return kernel.Stats{Tick: 7, Workers: 2} }

func (a *adminStub) RequestSnapshot() error {
	a.requested++
	return a.err
}

func TestAdminEndpoints(t *testing.T) {
	stub := &adminStub{}
	mux := http.NewServeMux()
	registerAdmin(mux, "riverside", "run-1", stub)

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var state struct {
		WorldID string `json:"world_id"`
		RunID   string `json:"run_id"`
		Tick    uint64 `json:"tick"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "riverside", state.WorldID)
	assert.Equal(t, "run-1", state.RunID)
	assert.Equal(t, uint64(7), state.Tick)

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "10.1.2.3:4000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/snapshot", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/v1/snapshot", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, stub.requested)

	stub.err = kernel.ErrNoSnapshotSink
	req = httptest.NewRequest(http.MethodPost, "/admin/v1/snapshot", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no snapshot sink")
}

func TestEnvBool(t *testing.T) {
	t.Setenv("NPCSIM_TEST_FLAG", "")
	assert.True(t, envBool("NPCSIM_TEST_FLAG", true))
	t.Setenv("NPCSIM_TEST_FLAG", "false")
	assert.False(t, envBool("NPCSIM_TEST_FLAG", true))
	t.Setenv("NPCSIM_TEST_FLAG", "maybe")
	assert.True(t, envBool("NPCSIM_TEST_FLAG", true))

	t.Setenv("DEPLOY_ENV", "production")
	assert.False(t, defaultEnableAdminHTTP())
	t.Setenv("DEPLOY_ENV", "dev")
	assert.True(t, defaultEnableAdminHTTP())
}

func TestWriteSnapshots_WritesAndArchives(t *testing.T) {
	worldDir := t.TempDir()
	ch := make(chan snapshot.SnapshotV1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		writeSnapshots(ctx, worldDir, ch, nil, quiet)
		close(done)
	}()

	ch <- snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, WorldID: "riverside", RunID: "r1", Tick: 30}}
	archived := filepath.Join(worldDir, "archives", "day_001", "meta.json")
	require.Eventually(t, func() bool {
		_, err := os.Stat(archived)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, filepath.Join(worldDir, "snapshots", "30.snap.zst"), latestSnapshot(worldDir))

	cancel()
	<-done
}
