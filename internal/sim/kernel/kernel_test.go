package kernel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"npcsim.ai/internal/persistence/snapshot"
	"npcsim.ai/internal/protocol"
	"npcsim.ai/internal/sim/catalogs"
	"npcsim.ai/internal/sim/decision"
	"npcsim.ai/internal/sim/tuning"
	"npcsim.ai/internal/sim/world"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func testWorld(t *testing.T) *world.World {
	t.Helper()
	items, err := catalogs.NewItemCatalog([]catalogs.ItemDef{
		{ID: "apple", Kind: catalogs.KindFood, HealHP: 10},
		{ID: "potion", Kind: catalogs.KindConsumable, HealHP: 80},
	})
	require.NoError(t, err)
	w := world.New(world.WorldConfig{ID: "test", GameSpeed: 60}, items)
	m := world.NewGameMap("town", "Town", 10, 10, world.Terrain{Kind: "GRASS", Walkable: true})
	require.True(t, m.AddItem(protocol.Position{X: 5, Y: 5}, "apple", 1))
	require.NoError(t, w.AddMap(m))
	require.NoError(t, w.AddAgent(&world.Agent{
		ID: "a", Name: "Alice", MapID: "town", Pos: protocol.Position{X: 5, Y: 5},
		HP: 30, MaxHP: 100, Inventory: map[string]int{"potion": 1},
	}))
	return w
}

func defaultDeciders(shard int) Decider {
	return decision.Default(tuning.Defaults().Fallback, rand.New(rand.NewPCG(uint64(shard), 1)))
}

type deciderFunc func(v *protocol.AgentView) *protocol.Intent

func (f deciderFunc) Decide(v *protocol.AgentView) *protocol.Intent { return f(v) }

type recordingPresenter struct {
	mu    sync.Mutex
	ticks []uint64
	msgs  []protocol.Message
}

func (p *recordingPresenter) Present(tick uint64, msgs []protocol.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticks = append(p.ticks, tick)
	p.msgs = append(p.msgs, msgs...)
}

type memTickLog struct{ recs []protocol.TickRecord }

func (m *memTickLog) WriteTick(r protocol.TickRecord) error {
	m.recs = append(m.recs, r)
	return nil
}

func TestViewQueue_DropsOldest(t *testing.T) {
	q := NewViewQueue(2)
	assert.False(t, q.Send(ViewBatch{Tick: 1}))
	assert.False(t, q.Send(ViewBatch{Tick: 2}))
	assert.True(t, q.Send(ViewBatch{Tick: 3}))
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 2, q.Cap())
	assert.Equal(t, uint64(1), q.Dropped())

	q.Close()
	q.Close()
	assert.False(t, q.Send(ViewBatch{Tick: 4}), "send after close is ignored")

	var got []uint64
	for b := range q.C() {
		got = append(got, b.Tick)
	}
	assert.Equal(t, []uint64{2, 3}, got, "newest batches survive")
}

func TestViewQueue_ReplaceOnlyUntakenBatch(t *testing.T) {
	q := NewViewQueue(1)
	assert.False(t, q.Replace(ViewBatch{Tick: 1}), "nothing queued")
	assert.Equal(t, 0, q.Len())

	q.Send(ViewBatch{Tick: 1})
	assert.True(t, q.Replace(ViewBatch{Tick: 2}))
	assert.Equal(t, uint64(1), q.Dropped())

	b := <-q.C()
	assert.Equal(t, uint64(2), b.Tick)
	assert.False(t, q.Replace(ViewBatch{Tick: 3}), "taken batches are not replaced")
	assert.Equal(t, 0, q.Len())
}

func TestWorker_PreservesViewOrderAndClosesEvents(t *testing.T) {
	q := NewViewQueue(4)
	w := NewWorker(0, q, deciderFunc(func(v *protocol.AgentView) *protocol.Intent {
		if v.AgentID == "skip" {
			return nil
		}
		in := protocol.Speak(v.AgentID)
		return &in
	}), 16, quiet)

	q.Send(ViewBatch{Tick: 1, Views: []protocol.AgentView{{AgentID: "a"}, {AgentID: "skip"}, {AgentID: "b"}}})
	q.Send(ViewBatch{Tick: 2, Views: []protocol.AgentView{{AgentID: "a"}, {AgentID: "b"}}})
	q.Close()

	require.NoError(t, w.Run(context.Background()))

	var got []string
	var ticks []uint64
	for out := range w.Events() {
		if out.BatchDone {
			got = append(got, "done")
			ticks = append(ticks, out.Tick)
			continue
		}
		require.Len(t, out.Event.Intents, 1)
		got = append(got, out.Event.AgentID)
		ticks = append(ticks, out.Event.ViewTick)
	}
	assert.Equal(t, []string{"a", "b", "done", "a", "b", "done"}, got)
	assert.Equal(t, []uint64{1, 1, 1, 2, 2, 2}, ticks)
}

func TestWorker_EmptyDecisionsStillEndBatch(t *testing.T) {
	q := NewViewQueue(1)
	w := NewWorker(0, q, deciderFunc(func(*protocol.AgentView) *protocol.Intent { return nil }), 4, quiet)
	q.Send(ViewBatch{Tick: 7, Views: []protocol.AgentView{{AgentID: "a"}}})
	q.Close()
	require.NoError(t, w.Run(context.Background()))

	out, ok := <-w.Events()
	require.True(t, ok)
	assert.True(t, out.BatchDone)
	assert.Equal(t, uint64(7), out.Tick)
	_, ok = <-w.Events()
	assert.False(t, ok)
}

func TestWorker_CancelledSendReturns(t *testing.T) {
	q := NewViewQueue(1)
	w := NewWorker(0, q, deciderFunc(func(*protocol.AgentView) *protocol.Intent {
		in := protocol.Idle()
		return &in
	}), 1, quiet)
	q.Send(ViewBatch{Tick: 1, Views: []protocol.AgentView{{AgentID: "a"}, {AgentID: "b"}}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// The second send blocks on the full channel until cancel.
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not return")
	}
}

func TestShardFor_Stable(t *testing.T) {
	for _, id := range []string{"a", "guard", "merchant", "porter"} {
		s := shardFor(id, 4)
		assert.GreaterOrEqual(t, s, 0)
		assert.Less(t, s, 4)
		assert.Equal(t, s, shardFor(id, 4))
		assert.Equal(t, 0, shardFor(id, 1))
	}
}

// A hurt agent standing on an apple with a potion in its bag uses the potion:
// one step builds the view, the next applies the worker's single intent.
func TestStep_HealBeatsPickup(t *testing.T) {
	w := testWorld(t)
	p := &recordingPresenter{}
	tl := &memTickLog{}
	k := New(w, defaultDeciders, Config{Workers: 1}, WithLogger(quiet), WithPresenter(p), WithTickLogger(tl))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker := k.shards[0].worker
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	assert.Empty(t, k.Step(200*time.Millisecond))
	// The intent, then the end of its batch.
	require.Eventually(t, func() bool { return len(worker.Events()) == 2 }, 2*time.Second, 5*time.Millisecond)

	msgs := k.Step(200 * time.Millisecond)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.MsgItemUse, msgs[0].Kind)
	assert.Equal(t, "potion", msgs[0].Item)
	assert.Equal(t, "restores 70 HP", msgs[0].Text)

	a := w.Agent("a")
	assert.Equal(t, 100, a.HP)
	assert.Equal(t, 1, w.Map("town").ItemCount(protocol.Position{X: 5, Y: 5}, "apple"))

	assert.Equal(t, []uint64{1, 2}, p.ticks)
	require.Len(t, tl.recs, 2)
	assert.Len(t, tl.recs[0].Events, 1, "timer only")
	assert.Len(t, tl.recs[1].Events, 2, "intent then timer")
	assert.Equal(t, protocol.EventAgentIntents, tl.recs[1].Events[0].Kind)
	assert.Equal(t, world.StateDigest(w), tl.recs[1].Digest)

	k.closeViews()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after views closed")
	}
	st := k.Stats()
	assert.Equal(t, uint64(2), st.Tick)
	assert.Equal(t, uint64(1), st.EventsApplied)
}

// gatedMover walks right, one view per value received on gate.
type gatedMover struct {
	gate chan struct{}
	mu   sync.Mutex
	seen []int
}

func (g *gatedMover) Decide(v *protocol.AgentView) *protocol.Intent {
	<-g.gate
	g.mu.Lock()
	g.seen = append(g.seen, v.Pos.X)
	g.mu.Unlock()
	in := protocol.Move(protocol.DirRight)
	return &in
}

func (g *gatedMover) decidedAt() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.seen...)
}

// A worker that falls behind must never decide a view older than its own last
// applied intent, or the agent acts twice on one state.
func TestStep_LaggingWorkerDecidesEachStateOnce(t *testing.T) {
	w := testWorld(t)
	g := &gatedMover{gate: make(chan struct{})}
	k := New(w, func(int) Decider { return g }, Config{Workers: 1}, WithLogger(quiet))
	s := k.shards[0]
	ch := s.worker.Events()

	// No worker running yet: the second batch replaces the first.
	k.Step(0)
	k.Step(0)
	assert.Equal(t, 1, s.queue.Len())
	assert.Equal(t, uint64(1), k.Stats().ViewsDropped)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.worker.Run(ctx) }()

	// The worker holds the tick 2 batch; nothing new is queued behind it.
	require.Eventually(t, func() bool { return s.queue.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	k.Step(0)
	assert.Equal(t, 0, s.queue.Len())
	assert.Equal(t, uint64(1), k.Stats().ViewsDeferred)

	g.gate <- struct{}{}
	require.Eventually(t, func() bool { return len(ch) == 2 }, 2*time.Second, 5*time.Millisecond)
	k.Step(0)
	assert.Equal(t, 6, w.Agent("a").Pos.X)
	assert.True(t, s.pending, "fresh batch sent after the acknowledgement")

	g.gate <- struct{}{}
	require.Eventually(t, func() bool { return len(ch) == 2 }, 2*time.Second, 5*time.Millisecond)
	k.Step(0)
	assert.Equal(t, 7, w.Agent("a").Pos.X)
	assert.Equal(t, []int{5, 6}, g.decidedAt())
	assert.Equal(t, uint64(2), k.Stats().EventsApplied)

	k.closeViews()
	close(g.gate)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit")
	}
}

func TestPollShard_PanicsOnNonIntentEvent(t *testing.T) {
	k := New(testWorld(t), defaultDeciders, Config{Workers: 1}, WithLogger(quiet))
	s := k.shards[0]
	s.worker.events <- Output{Event: protocol.NewInput("notice hi")}
	assert.Panics(t, func() { k.pollShard(s) })
}

func TestStep_ClosedWorkerIsSkipped(t *testing.T) {
	k := New(testWorld(t), defaultDeciders, Config{Workers: 1}, WithLogger(quiet))
	s := k.shards[0]
	s.queue.Close()
	require.NoError(t, s.worker.Run(context.Background()))

	k.Step(0)
	assert.True(t, s.done)
	k.Step(0)
	assert.Equal(t, uint64(2), k.Stats().Tick)
}

func TestSubmit_AppliedOnNextStep(t *testing.T) {
	k := New(testWorld(t), defaultDeciders, Config{Workers: 1}, WithLogger(quiet))
	require.NoError(t, k.Submit(context.Background(), protocol.NewInput("notice market opens")))

	msgs := k.Step(0)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.MsgSystem, msgs[0].Kind)
	assert.Equal(t, "market opens", msgs[0].Text)
	assert.Equal(t, uint64(1), msgs[0].Seq)
	assert.Equal(t, uint64(1), k.Stats().InputsApplied)

	assert.Error(t, k.Submit(context.Background(), protocol.Event{Kind: "BOGUS"}))
}

func TestSnapshotEveryTicks(t *testing.T) {
	ch := make(chan snapshot.SnapshotV1, 1)
	k := New(testWorld(t), defaultDeciders, Config{Workers: 1, SnapshotEveryTicks: 2, RunID: "run-1"}, WithLogger(quiet), WithSnapshotSink(ch))

	k.Step(0)
	assert.Empty(t, ch)
	k.Step(0)
	require.Len(t, ch, 1)
	k.Step(0)
	k.Step(0)
	assert.Equal(t, uint64(1), k.Stats().SnapshotsDropped, "full channel drops, never blocks")

	s := <-ch
	assert.Equal(t, uint64(2), s.Header.Tick)
	assert.Equal(t, "run-1", s.Header.RunID)
}

func TestRequestSnapshot(t *testing.T) {
	k := New(testWorld(t), defaultDeciders, Config{Workers: 1}, WithLogger(quiet))
	assert.ErrorIs(t, k.RequestSnapshot(), ErrNoSnapshotSink)

	ch := make(chan snapshot.SnapshotV1, 1)
	k = New(testWorld(t), defaultDeciders, Config{Workers: 1}, WithLogger(quiet), WithSnapshotSink(ch))
	k.Step(0)
	assert.Empty(t, ch, "periodic snapshots are off")

	require.NoError(t, k.RequestSnapshot())
	k.Step(0)
	require.Len(t, ch, 1)
	assert.Equal(t, uint64(2), (<-ch).Header.Tick)

	k.Step(0)
	assert.Empty(t, ch, "a request is served once")
}

func TestRun_ShutdownAndStop(t *testing.T) {
	p := &recordingPresenter{}
	k := New(testWorld(t), defaultDeciders, Config{TickRateHz: 50, Workers: 3}, WithLogger(quiet), WithPresenter(p))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	require.Eventually(t, func() bool { return k.Stats().Tick >= 3 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
	for _, s := range k.shards {
		_, open := <-s.worker.Events()
		for open {
			_, open = <-s.worker.Events()
		}
	}
	assert.ErrorIs(t, k.Submit(context.Background(), protocol.NewInput("notice late")), ErrStopped)
	assert.ErrorIs(t, k.Run(context.Background()), ErrStarted)
}
