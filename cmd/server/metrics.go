package main

import (
	"fmt"
	"io"
	"net/http"

	"npcsim.ai/internal/persistence/indexdb"
	"npcsim.ai/internal/sim/kernel"
	"npcsim.ai/internal/transport/ws"
)

type statser interface {
	Stats() kernel.Stats
}

// metricsHandler serves a minimal Prometheus text exposition.
func metricsHandler(worldID string, k statser, hub *ws.Hub, idx *indexdb.SQLiteIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, worldID, k.Stats(), hub, idx)
	}
}

func writeMetrics(w io.Writer, worldID string, s kernel.Stats, hub *ws.Hub, idx *indexdb.SQLiteIndex) {
	gauge := func(name, help string, v uint64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s{world=%q} %d\n", name, worldID, v)
	}
	counter := func(name, help string, v uint64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s{world=%q} %d\n", name, worldID, v)
	}

	gauge("npcsim_world_tick", "Current world tick.", s.Tick)
	gauge("npcsim_kernel_workers", "Decision workers.", uint64(s.Workers))
	counter("npcsim_events_applied_total", "Agent intent events applied.", s.EventsApplied)
	counter("npcsim_inputs_applied_total", "External input events applied.", s.InputsApplied)
	counter("npcsim_view_batches_replaced_total", "Queued view batches replaced before their worker took them.", s.ViewsDropped)
	counter("npcsim_view_batches_deferred_total", "View batches not sent because the worker was still deciding.", s.ViewsDeferred)
	counter("npcsim_snapshots_dropped_total", "Snapshots dropped because the writer was busy.", s.SnapshotsDropped)
	counter("npcsim_tick_log_errors_total", "Tick log write failures.", s.TickLogErrors)

	if hub != nil {
		gauge("npcsim_observers", "Connected observers.", uint64(hub.Clients()))
		counter("npcsim_observer_frames_dropped_total", "Frames dropped for slow observers.", hub.FramesDropped())
	}
	if idx != nil {
		st := idx.Stats()
		gauge("npcsim_index_queue_depth", "Index writer backlog.", uint64(st.QueueDepth))
		counter("npcsim_index_dropped_total", "Index writes dropped under load.", st.DropTickTotal+st.DropMessageTotal+st.DropSnapshotTotal)
		counter("npcsim_index_write_errors_total", "Index write failures.", st.WriteErrorTotal)
	}
}
