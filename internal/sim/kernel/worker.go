package kernel

import (
	"context"
	"log/slog"

	"npcsim.ai/internal/protocol"
)

// Decider turns a view into at most one intent. *decision.Composer is one.
type Decider interface {
	Decide(v *protocol.AgentView) *protocol.Intent
}

// Output is one item on a worker's output channel: an intents event, or the
// marker sent once every view of the batch for Tick has been decided.
type Output struct {
	Event     protocol.Event
	BatchDone bool
	Tick      uint64
}

// Worker runs decisions for one shard. It only ever reads views it owns and
// writes events; it has no access to the world.
type Worker struct {
	id     int
	views  *ViewQueue
	events chan Output
	decide Decider
	log    *slog.Logger
}

func NewWorker(id int, views *ViewQueue, decide Decider, eventQueueSize int, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		id:     id,
		views:  views,
		events: make(chan Output, max(1, eventQueueSize)),
		decide: decide,
		log:    log.With("worker", id),
	}
}

// Events is closed when Run returns. Every batch ends with a BatchDone
// output, after that batch's intents.
func (w *Worker) Events() <-chan Output { return w.events }

// Run decides every view it receives until the view queue is closed. Sends
// block until the main loop takes them; ctx only aborts such a send.
// A panicking strategy is not recovered.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.events)
	defer w.log.Debug("worker stopped")

	for batch := range w.views.C() {
		for i := range batch.Views {
			v := &batch.Views[i]
			in := w.decide.Decide(v)
			if in == nil {
				continue
			}
			if err := w.send(ctx, Output{Event: protocol.NewAgentIntents(v.AgentID, batch.Tick, *in), Tick: batch.Tick}); err != nil {
				return err
			}
		}
		if err := w.send(ctx, Output{BatchDone: true, Tick: batch.Tick}); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) send(ctx context.Context, out Output) error {
	select {
	case w.events <- out:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
