package world

import (
	"fmt"
	"sort"

	"npcsim.ai/internal/persistence/snapshot"
	"npcsim.ai/internal/protocol"
	"npcsim.ai/internal/sim/catalogs"
)

// ExportSnapshot copies the full state into a value that shares no memory
// with w.
func (w *World) ExportSnapshot(runID string) snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			RunID:   runID,
			Tick:    w.tick,
		},
		Seed:              w.cfg.Seed,
		VisibilityRadius:  w.cfg.VisibilityRadius,
		GameSpeed:         w.cfg.GameSpeed,
		MoveFailure:       w.cfg.MoveFailure,
		CombatMemoryTicks: w.cfg.CombatMemoryTicks,
		TradeSessionTicks: w.cfg.TradeSessionTicks,
		RateLimits: snapshot.RateLimitsV1{
			SayWindowTicks: w.cfg.RateLimits.SayWindowTicks,
			SayMax:         w.cfg.RateLimits.SayMax,
		},
		Clock:    snapshot.ClockV1{Seconds: w.clock.Seconds, CarryMs: w.clock.CarryMs},
		Counters: snapshot.CountersV1{NextTrade: w.nextTradeNum},
	}
	for _, id := range w.mapIDs() {
		s.Maps = append(s.Maps, exportMap(w.maps[id]))
	}
	for _, id := range w.AgentIDs() {
		s.Agents = append(s.Agents, exportAgent(w.agents[id]))
	}
	for _, id := range w.tradeIDs() {
		t := w.trades[id]
		s.Trades = append(s.Trades, snapshot.TradeV1{
			ID: t.ID, A: t.A, B: t.B, OpenedTick: t.OpenedTick, ExpiresTick: t.ExpiresTick,
		})
	}
	for _, id := range w.eventRunIDs() {
		r := w.eventRuns[id]
		s.Events = append(s.Events, snapshot.EventRunV1{ID: id, Count: r.Count, LastFired: r.LastFired})
	}
	return s
}

func exportMap(m *GameMap) snapshot.MapV1 {
	out := snapshot.MapV1{ID: m.ID, Name: m.Name, Width: m.Width, Height: m.Height, Cells: make([]uint16, len(m.terrain))}
	pal := map[Terrain]uint16{}
	for i, t := range m.terrain {
		idx, ok := pal[t]
		if !ok {
			idx = uint16(len(out.Palette))
			pal[t] = idx
			out.Palette = append(out.Palette, snapshot.TerrainV1{Kind: t.Kind, Walkable: t.Walkable, Description: t.Description})
		}
		out.Cells[i] = idx
	}
	for _, p := range m.itemCells() {
		for _, it := range m.ItemsAt(p) {
			out.Items = append(out.Items, snapshot.GroundItemV1{X: p.X, Y: p.Y, Item: it.Item, Count: it.Count})
		}
	}
	return out
}

func exportAgent(a *Agent) snapshot.AgentV1 {
	out := snapshot.AgentV1{
		ID:           a.ID,
		Name:         a.Name,
		Kind:         string(a.Kind),
		MapID:        a.MapID,
		X:            a.Pos.X,
		Y:            a.Pos.Y,
		HP:           a.HP,
		MaxHP:        a.MaxHP,
		MP:           a.MP,
		MaxMP:        a.MaxMP,
		Interacting:  a.Interacting,
		PartyID:      a.PartyID,
		PartyLeader:  a.PartyLeader,
		Dialogue:     append([]string(nil), a.Dialogue...),
		CombatTarget: a.CombatTarget,
		CombatUntil:  a.CombatUntil,
		Dead:         a.Dead,
	}
	if len(a.Inventory) > 0 {
		out.Inventory = make(map[string]int, len(a.Inventory))
		for k, v := range a.Inventory {
			if v != 0 {
				out.Inventory[k] = v
			}
		}
	}
	kinds := make([]string, 0, len(a.rl))
	for k := range a.rl {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		rw := a.rl[k]
		out.RateWindows = append(out.RateWindows, snapshot.RateWindowV1{
			Kind: k, StartTick: rw.StartTick, Count: rw.Count, Window: rw.Window, Max: rw.Max,
		})
	}
	return out
}

// FromSnapshot rebuilds a world. Rule parameters come from the snapshot so a
// resumed run keeps behaving like the one that wrote it.
func FromSnapshot(s snapshot.SnapshotV1, items *catalogs.ItemCatalog, opts ...Option) (*World, error) {
	cfg := WorldConfig{
		ID:                s.Header.WorldID,
		Seed:              s.Seed,
		VisibilityRadius:  s.VisibilityRadius,
		GameSpeed:         s.GameSpeed,
		MoveFailure:       s.MoveFailure,
		CombatMemoryTicks: s.CombatMemoryTicks,
		TradeSessionTicks: s.TradeSessionTicks,
		RateLimits: RateLimitConfig{
			SayWindowTicks: s.RateLimits.SayWindowTicks,
			SayMax:         s.RateLimits.SayMax,
		},
	}
	w := New(cfg, items, opts...)
	w.tick = s.Header.Tick
	w.clock = Clock{Seconds: s.Clock.Seconds, CarryMs: s.Clock.CarryMs}
	w.nextTradeNum = s.Counters.NextTrade

	for _, ms := range s.Maps {
		m, err := importMap(ms)
		if err != nil {
			return nil, err
		}
		if err := w.AddMap(m); err != nil {
			return nil, err
		}
	}
	for _, as := range s.Agents {
		a := importAgent(as)
		if err := w.AddAgent(a); err != nil {
			return nil, err
		}
		// initDefaults must not revive the dead.
		a.HP = as.HP
	}
	for _, ts := range s.Trades {
		if w.agents[ts.A] == nil || w.agents[ts.B] == nil {
			return nil, fmt.Errorf("trade %s: unknown party", ts.ID)
		}
		w.trades[ts.ID] = &tradeSession{ID: ts.ID, A: ts.A, B: ts.B, OpenedTick: ts.OpenedTick, ExpiresTick: ts.ExpiresTick}
	}
	for _, es := range s.Events {
		w.eventRuns[es.ID] = &eventRun{Count: es.Count, LastFired: es.LastFired}
	}
	return w, nil
}

func importMap(ms snapshot.MapV1) (*GameMap, error) {
	if ms.Width <= 0 || ms.Height <= 0 || len(ms.Cells) != ms.Width*ms.Height {
		return nil, fmt.Errorf("map %q: %dx%d with %d cells", ms.ID, ms.Width, ms.Height, len(ms.Cells))
	}
	m := NewGameMap(ms.ID, ms.Name, ms.Width, ms.Height, Terrain{})
	for i, idx := range ms.Cells {
		if int(idx) >= len(ms.Palette) {
			return nil, fmt.Errorf("map %q: palette index %d out of range", ms.ID, idx)
		}
		t := ms.Palette[idx]
		m.terrain[i] = Terrain{Kind: t.Kind, Walkable: t.Walkable, Description: t.Description}
	}
	for _, it := range ms.Items {
		if !m.AddItem(protocol.Position{X: it.X, Y: it.Y}, it.Item, it.Count) {
			return nil, fmt.Errorf("map %q: bad ground item %s at (%d,%d)", ms.ID, it.Item, it.X, it.Y)
		}
	}
	return m, nil
}

func importAgent(as snapshot.AgentV1) *Agent {
	a := &Agent{
		ID:           as.ID,
		Name:         as.Name,
		Kind:         protocol.EntityType(as.Kind),
		MapID:        as.MapID,
		Pos:          protocol.Position{X: as.X, Y: as.Y},
		HP:           as.HP,
		MaxHP:        as.MaxHP,
		MP:           as.MP,
		MaxMP:        as.MaxMP,
		Inventory:    map[string]int{},
		Interacting:  as.Interacting,
		PartyID:      as.PartyID,
		PartyLeader:  as.PartyLeader,
		Dialogue:     append([]string(nil), as.Dialogue...),
		CombatTarget: as.CombatTarget,
		CombatUntil:  as.CombatUntil,
		Dead:         as.Dead,
		rl:           map[string]*rateWindow{},
	}
	for k, v := range as.Inventory {
		a.Inventory[k] = v
	}
	for _, rw := range as.RateWindows {
		a.rl[rw.Kind] = &rateWindow{StartTick: rw.StartTick, Count: rw.Count, Window: rw.Window, Max: rw.Max}
	}
	return a
}
