package main

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"

	"npcsim.ai/internal/sim/kernel"
	"npcsim.ai/internal/transport/ws"
)

type adminKernel interface {
	Stats() kernel.Stats
	RequestSnapshot() error
}

// registerAdmin adds local-only admin endpoints. They never affect simulation
// determinism.
func registerAdmin(mux *http.ServeMux, worldID, runID string, k adminKernel) {
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !ws.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			WorldID string       `json:"world_id"`
			RunID   string       `json:"run_id"`
			Tick    uint64       `json:"tick"`
			Stats   kernel.Stats `json:"stats"`
		}{WorldID: worldID, RunID: runID}
		resp.Stats = k.Stats()
		resp.Tick = resp.Stats.Tick
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !ws.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		tick := k.Stats().Tick
		if err := k.RequestSnapshot(); err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "after_tick": tick})
	})
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
