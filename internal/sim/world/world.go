package world

import (
	"fmt"
	"sort"

	"npcsim.ai/internal/protocol"
	"npcsim.ai/internal/sim/catalogs"
)

// World is the authoritative simulation state. It is not safe for concurrent
// use: all state must be accessed only from the goroutine that owns it, and
// mutated only through ApplyEvent.
type World struct {
	cfg   WorldConfig
	items *catalogs.ItemCatalog

	maps   map[string]*GameMap
	agents map[string]*Agent
	trades map[string]*tradeSession

	clock Clock
	tick  uint64

	nextTradeNum uint64

	events    *EventTable
	eventRuns map[string]*eventRun

	mapSvc MapService
	combat CombatResolver
	broker TradeBroker
}

func New(cfg WorldConfig, items *catalogs.ItemCatalog, opts ...Option) *World {
	cfg.applyDefaults()
	w := &World{
		cfg:       cfg,
		items:     items,
		maps:      map[string]*GameMap{},
		agents:    map[string]*Agent{},
		trades:    map[string]*tradeSession{},
		eventRuns: map[string]*eventRun{},
		clock:     ClockAt(cfg.StartTime),
		combat:    FlatDamage{},
		broker:    OpenTrades{},
	}
	w.mapSvc = gridMaps{maps: w.maps}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *World) ID() string              { return w.cfg.ID }
func (w *World) Config() WorldConfig     { return w.cfg }
func (w *World) CurrentTick() uint64     { return w.tick }
func (w *World) Time() protocol.GameTime { return w.clock.Time() }

func (w *World) Items() *catalogs.ItemCatalog { return w.items }

func (w *World) AddMap(m *GameMap) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("map: missing id")
	}
	if _, dup := w.maps[m.ID]; dup {
		return fmt.Errorf("map %q already exists", m.ID)
	}
	w.maps[m.ID] = m
	return nil
}

func (w *World) Map(id string) *GameMap { return w.maps[id] }

// AddAgent places a new agent. Its map must exist and its cell must be in bounds.
func (w *World) AddAgent(a *Agent) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("agent: missing id")
	}
	if _, dup := w.agents[a.ID]; dup {
		return fmt.Errorf("agent %q already exists", a.ID)
	}
	m := w.maps[a.MapID]
	if m == nil {
		return fmt.Errorf("agent %q: unknown map %q", a.ID, a.MapID)
	}
	if !m.InBounds(a.Pos) {
		return fmt.Errorf("agent %q: position %s outside map %q", a.ID, a.Pos, m.ID)
	}
	a.initDefaults()
	w.agents[a.ID] = a
	return nil
}

// Agent returns the live agent. Callers outside the owning goroutine must not
// keep the pointer.
func (w *World) Agent(id string) *Agent { return w.agents[id] }

// AgentIDs returns every agent id sorted.
func (w *World) AgentIDs() []string {
	ids := make([]string, 0, len(w.agents))
	for id := range w.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ActiveAgentIDs returns the sorted ids of agents that make decisions: living NPCs.
func (w *World) ActiveAgentIDs() []string {
	ids := make([]string, 0, len(w.agents))
	for id, a := range w.agents {
		if a.Alive() && a.Kind == protocol.EntityNPC {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (w *World) eventRunIDs() []string {
	ids := make([]string, 0, len(w.eventRuns))
	for id := range w.eventRuns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (w *World) mapIDs() []string {
	ids := make([]string, 0, len(w.maps))
	for id := range w.maps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (w *World) healAmount(item string) int {
	d, ok := w.items.Get(item)
	if !ok || !d.Usable() {
		return 0
	}
	return d.HealHP
}
