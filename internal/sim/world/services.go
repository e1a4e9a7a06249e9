package world

import "npcsim.ai/internal/protocol"

// MapService answers terrain questions. The default implementation reads the
// world's own GameMaps.
type MapService interface {
	Walkable(mapID string, x, y int) bool
	TerrainAt(mapID string, x, y int) protocol.TerrainInfo
}

type Combatant struct {
	ID    string
	HP    int
	MaxHP int
}

type CombatOutcome struct {
	Damage int
}

// CombatResolver decides the outcome of one attack. It must be deterministic
// for replay to reproduce the same world.
type CombatResolver interface {
	Resolve(attacker, target Combatant) CombatOutcome
}

// TradeBroker is consulted before two agents enter a trade session.
type TradeBroker interface {
	Open(initiator, target string) (ok bool, reason string)
}

type Option func(*World)

func WithMapService(s MapService) Option { return func(w *World) { w.mapSvc = s } }

func WithCombatResolver(r CombatResolver) Option { return func(w *World) { w.combat = r } }

func WithTradeBroker(b TradeBroker) Option { return func(w *World) { w.broker = b } }

type gridMaps struct {
	maps map[string]*GameMap
}

func (g gridMaps) Walkable(mapID string, x, y int) bool {
	m := g.maps[mapID]
	return m != nil && m.Walkable(protocol.Position{X: x, Y: y})
}

func (g gridMaps) TerrainAt(mapID string, x, y int) protocol.TerrainInfo {
	m := g.maps[mapID]
	if m == nil {
		return protocol.TerrainInfo{Kind: "VOID", Description: "unknown map"}
	}
	return m.TerrainAt(protocol.Position{X: x, Y: y}).Info()
}

// FlatDamage deals a tenth of the attacker's max HP, at least 1.
type FlatDamage struct{}

func (FlatDamage) Resolve(attacker, _ Combatant) CombatOutcome {
	return CombatOutcome{Damage: max(1, attacker.MaxHP/10)}
}

// OpenTrades accepts every trade request.
type OpenTrades struct{}

func (OpenTrades) Open(string, string) (bool, string) { return true, "" }
