package observer

import (
	"encoding/json"
	"net/http"

	"npcsim.ai/internal/observerproto"
	"npcsim.ai/internal/persistence/snapshot"
	"npcsim.ai/internal/sim/encoding"
)

// NewBootstrap builds the observer bootstrap from a world snapshot taken
// before the kernel starts.
func NewBootstrap(s snapshot.SnapshotV1, tickRateHz int) observerproto.BootstrapResponse {
	resp := observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		WorldID:         s.Header.WorldID,
		RunID:           s.Header.RunID,
		StartTick:       s.Header.Tick,
		WorldParams: observerproto.WorldParams{
			TickRateHz:       tickRateHz,
			Seed:             s.Seed,
			GameSpeed:        s.GameSpeed,
			VisibilityRadius: s.VisibilityRadius,
		},
		Maps:   make([]observerproto.MapTiles, 0, len(s.Maps)),
		Agents: make([]observerproto.AgentInfo, 0, len(s.Agents)),
	}
	for _, m := range s.Maps {
		tiles := observerproto.MapTiles{
			ID:       m.ID,
			Name:     m.Name,
			Width:    m.Width,
			Height:   m.Height,
			Palette:  make([]observerproto.Terrain, 0, len(m.Palette)),
			Encoding: observerproto.EncodingPaletteRLE,
			Data:     encoding.EncodeRLE(m.Cells),
		}
		for _, t := range m.Palette {
			tiles.Palette = append(tiles.Palette, observerproto.Terrain{Kind: t.Kind, Walkable: t.Walkable})
		}
		resp.Maps = append(resp.Maps, tiles)
	}
	for _, a := range s.Agents {
		resp.Agents = append(resp.Agents, observerproto.AgentInfo{
			ID:    a.ID,
			Name:  a.Name,
			Kind:  a.Kind,
			MapID: a.MapID,
			Pos:   [2]int{a.X, a.Y},
		})
	}
	return resp
}

// BootstrapHandler serves a fixed bootstrap document.
func BootstrapHandler(resp observerproto.BootstrapResponse) http.HandlerFunc {
	body, err := json.Marshal(resp)
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err != nil {
			http.Error(rw, "bootstrap unavailable", http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write(body)
	}
}
