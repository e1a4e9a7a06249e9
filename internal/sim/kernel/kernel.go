// Package kernel runs the simulation: a single goroutine owns the world and
// applies events, while decision workers receive views and send intents back
// over channels.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"npcsim.ai/internal/persistence/snapshot"
	"npcsim.ai/internal/protocol"
	"npcsim.ai/internal/sim/sink"
	"npcsim.ai/internal/sim/world"
)

var (
	ErrStopped = errors.New("kernel stopped")
	ErrStarted = errors.New("kernel already started")

	ErrNoSnapshotSink = errors.New("kernel has no snapshot sink")
)

// Presenter receives each tick's drained messages. It is called from the main
// loop and must not block.
type Presenter interface {
	Present(tick uint64, msgs []protocol.Message)
}

type TickLogger interface {
	WriteTick(rec protocol.TickRecord) error
}

type Config struct {
	TickRateHz         int
	Workers            int
	EventQueueSize     int
	InputQueueSize     int
	SnapshotEveryTicks int
	RunID              string
}

func (c *Config) applyDefaults() {
	if c.TickRateHz <= 0 {
		c.TickRateHz = 5
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = 256
	}
	if c.InputQueueSize <= 0 {
		c.InputQueueSize = 64
	}
}

type Option func(*Kernel)

func WithLogger(l *slog.Logger) Option { return func(k *Kernel) { k.log = l } }

func WithPresenter(p Presenter) Option { return func(k *Kernel) { k.presenter = p } }

func WithTickLogger(t TickLogger) Option { return func(k *Kernel) { k.ticks = t } }

// WithSnapshotSink makes the kernel export a snapshot every
// Config.SnapshotEveryTicks ticks. Sends never block; a full channel drops
// the snapshot.
func WithSnapshotSink(ch chan<- snapshot.SnapshotV1) Option {
	return func(k *Kernel) { k.snapshots = ch }
}

type shard struct {
	queue  *ViewQueue
	worker *Worker
	// A batch was sent and its BatchDone has not been seen yet.
	pending bool
	// Set once the worker's event channel is seen closed.
	done bool
}

// Kernel owns the world. Step and everything it calls run on one goroutine.
type Kernel struct {
	cfg Config
	log *slog.Logger

	world  *world.World
	sink   *sink.Sink
	shards []*shard

	inbox chan protocol.Event

	presenter Presenter
	ticks     TickLogger
	snapshots chan<- snapshot.SnapshotV1

	// Per-step event record, reused.
	applied []protocol.Event

	started atomic.Bool
	stopped chan struct{}

	tick             atomic.Uint64
	eventsApplied    atomic.Uint64
	inputsApplied    atomic.Uint64
	viewsDeferred    atomic.Uint64
	snapshotsDropped atomic.Uint64
	tickLogErrors    atomic.Uint64

	snapshotRequested atomic.Bool
}

// New builds a kernel around w. newDecider is called once per worker; each
// worker owns its decider, so deciders need not be goroutine-safe.
func New(w *world.World, newDecider func(shard int) Decider, cfg Config, opts ...Option) *Kernel {
	cfg.applyDefaults()
	k := &Kernel{
		cfg:     cfg,
		log:     slog.Default(),
		world:   w,
		sink:    sink.New(),
		inbox:   make(chan protocol.Event, cfg.InputQueueSize),
		stopped: make(chan struct{}),
	}
	for _, o := range opts {
		o(k)
	}
	for i := 0; i < cfg.Workers; i++ {
		q := NewViewQueue(1)
		k.shards = append(k.shards, &shard{
			queue:  q,
			worker: NewWorker(i, q, newDecider(i), cfg.EventQueueSize, k.log),
		})
	}
	k.tick.Store(w.CurrentTick())
	return k
}

// Run starts the workers and the tick loop and blocks until ctx is done.
// On return every view queue is closed and every worker has exited.
func (k *Kernel) Run(ctx context.Context) error {
	if !k.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	defer close(k.stopped)

	k.log.Info("kernel start", "world", k.world.ID(), "tick", k.world.CurrentTick(), "workers", len(k.shards), "tick_rate_hz", k.cfg.TickRateHz)

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range k.shards {
		g.Go(func() error { return s.worker.Run(gctx) })
	}
	g.Go(func() error {
		defer k.closeViews()
		return k.loop(gctx)
	})
	err := g.Wait()
	k.log.Info("kernel stop", "tick", k.world.CurrentTick(), "err", err)
	return err
}

func (k *Kernel) loop(ctx context.Context) error {
	interval := time.Second / time.Duration(k.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			k.Step(now.Sub(last))
			last = now
		}
	}
}

func (k *Kernel) closeViews() {
	for _, s := range k.shards {
		s.queue.Close()
	}
}

// Submit queues an external event for the next step. It blocks while the
// input queue is full and never drops.
func (k *Kernel) Submit(ctx context.Context, ev protocol.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	select {
	case <-k.stopped:
		return ErrStopped
	default:
	}
	select {
	case k.inbox <- ev:
		return nil
	case <-k.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Step advances the world by one tick and returns the messages it drained.
// It must only be called from the goroutine that owns the kernel: the Run
// loop, or a test that never calls Run.
func (k *Kernel) Step(elapsed time.Duration) []protocol.Message {
	k.applied = k.applied[:0]

	k.pollWorkers()
	k.pollInputs()
	k.apply(protocol.NewTimerTick(elapsed))

	tick := k.world.CurrentTick()
	k.tick.Store(tick)
	k.dispatchViews(tick)

	msgs := k.sink.Drain()
	k.logTick(tick, len(msgs))
	if k.presenter != nil {
		k.presenter.Present(tick, msgs)
	}
	k.maybeSnapshot(tick)
	return msgs
}

func (k *Kernel) apply(ev protocol.Event) {
	k.sink.Push(world.ApplyEvent(k.world, ev)...)
	k.applied = append(k.applied, ev)
}

// pollWorkers takes whatever intents are ready without waiting. A closed
// event channel means that worker has no more intents.
func (k *Kernel) pollWorkers() {
	for _, s := range k.shards {
		if s.done {
			continue
		}
		k.pollShard(s)
	}
}

// pollShard reads at most one channel's worth of outputs so a fast worker
// cannot hold the loop. Workers only build AgentIntents events, so anything
// else is a bug and panics.
func (k *Kernel) pollShard(s *shard) {
	ch := s.worker.Events()
	for n := 0; n <= cap(ch); n++ {
		select {
		case out, ok := <-ch:
			if !ok {
				s.done = true
				k.log.Debug("worker events closed", "worker", s.worker.id)
				return
			}
			if out.BatchDone {
				s.pending = false
				continue
			}
			if err := out.Event.Validate(); err != nil || out.Event.Kind != protocol.EventAgentIntents {
				panic(fmt.Sprintf("kernel: worker %d sent a %q event: %v", s.worker.id, out.Event.Kind, err))
			}
			k.apply(out.Event)
			k.eventsApplied.Add(1)
		default:
			return
		}
	}
}

func (k *Kernel) pollInputs() {
	for {
		select {
		case ev := <-k.inbox:
			k.apply(ev)
			k.inputsApplied.Add(1)
		default:
			return
		}
	}
}

// dispatchViews keeps at most one undecided batch per shard. While the
// worker has not taken it, a newer batch replaces it; once the worker has
// started on it, the shard gets nothing until its BatchDone arrives. A view
// is therefore never decided against a state its own earlier intent has not
// reached yet.
func (k *Kernel) dispatchViews(tick uint64) {
	views := world.BuildViews(k.world)
	if len(views) == 0 {
		return
	}
	batches := make([][]protocol.AgentView, len(k.shards))
	for id, v := range views {
		i := shardFor(id, len(k.shards))
		batches[i] = append(batches[i], v)
	}
	for i, s := range k.shards {
		if s.done || len(batches[i]) == 0 {
			continue
		}
		b := batches[i]
		sort.Slice(b, func(x, y int) bool { return b[x].AgentID < b[y].AgentID })
		batch := ViewBatch{Tick: tick, Views: b}
		switch {
		case !s.pending:
			s.queue.Send(batch)
			s.pending = true
		case s.queue.Replace(batch):
			k.log.Debug("view batch replaced", "worker", i, "tick", tick)
		default:
			k.viewsDeferred.Add(1)
			k.log.Debug("view batch deferred: worker busy", "worker", i, "tick", tick)
		}
	}
}

// shardFor pins an agent to one worker so its views are decided in order.
func shardFor(agentID string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(agentID))
	return int(h.Sum32() % uint32(n))
}

func (k *Kernel) logTick(tick uint64, messages int) {
	if k.ticks == nil {
		return
	}
	rec := protocol.TickRecord{
		RunID:    k.cfg.RunID,
		Tick:     tick,
		Events:   append([]protocol.Event(nil), k.applied...),
		Messages: messages,
		Digest:   world.StateDigest(k.world),
	}
	if err := k.ticks.WriteTick(rec); err != nil {
		k.tickLogErrors.Add(1)
		k.log.Warn("tick log write", "tick", tick, "err", err)
	}
}

// RequestSnapshot asks for a snapshot at the end of the next step,
// regardless of SnapshotEveryTicks.
func (k *Kernel) RequestSnapshot() error {
	if k.snapshots == nil {
		return ErrNoSnapshotSink
	}
	k.snapshotRequested.Store(true)
	return nil
}

func (k *Kernel) maybeSnapshot(tick uint64) {
	if k.snapshots == nil {
		return
	}
	every := uint64(k.cfg.SnapshotEveryTicks)
	forced := k.snapshotRequested.Swap(false)
	if !forced && (every == 0 || tick%every != 0) {
		return
	}
	select {
	case k.snapshots <- k.world.ExportSnapshot(k.cfg.RunID):
	default:
		k.snapshotsDropped.Add(1)
		k.log.Warn("snapshot dropped: writer busy", "tick", tick)
	}
}

type Stats struct {
	Tick             uint64
	Workers          int
	EventsApplied    uint64
	InputsApplied    uint64
	ViewsDropped     uint64
	ViewsDeferred    uint64
	SnapshotsDropped uint64
	TickLogErrors    uint64
}

// Stats is safe to call from any goroutine.
func (k *Kernel) Stats() Stats {
	s := Stats{
		Tick:             k.tick.Load(),
		Workers:          len(k.shards),
		EventsApplied:    k.eventsApplied.Load(),
		InputsApplied:    k.inputsApplied.Load(),
		ViewsDeferred:    k.viewsDeferred.Load(),
		SnapshotsDropped: k.snapshotsDropped.Load(),
		TickLogErrors:    k.tickLogErrors.Load(),
	}
	for _, sh := range k.shards {
		s.ViewsDropped += sh.queue.Dropped()
	}
	return s
}
