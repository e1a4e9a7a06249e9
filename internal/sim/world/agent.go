package world

import (
	"sort"

	"npcsim.ai/internal/protocol"
)

type Agent struct {
	ID   string
	Name string
	Kind protocol.EntityType

	MapID string
	Pos   protocol.Position

	HP    int
	MaxHP int
	MP    int
	MaxMP int

	Inventory map[string]int

	// Interacting is set while the agent is in a trade session.
	Interacting bool

	PartyID     string
	PartyLeader bool

	Dialogue []string

	CombatTarget string
	CombatUntil  uint64
	Dead         bool

	// Rate limiting windows (per action type).
	rl map[string]*rateWindow
}

type rateWindow struct {
	StartTick uint64
	Count     int
	Window    uint64
	Max       int
}

func (a *Agent) initDefaults() {
	if a.Inventory == nil {
		a.Inventory = map[string]int{}
	}
	if a.Kind == "" {
		a.Kind = protocol.EntityNPC
	}
	if a.Name == "" {
		a.Name = a.ID
	}
	if a.MaxHP <= 0 {
		a.MaxHP = 100
	}
	if a.HP <= 0 && !a.Dead {
		a.HP = a.MaxHP
	}
	if a.HP > a.MaxHP {
		a.HP = a.MaxHP
	}
	if a.MP > a.MaxMP {
		a.MaxMP = a.MP
	}
	if a.rl == nil {
		a.rl = map[string]*rateWindow{}
	}
}

func (a *Agent) Alive() bool { return !a.Dead }

// RateLimitAllow counts one use of kind at nowTick against a fixed window.
func (a *Agent) RateLimitAllow(kind string, nowTick uint64, window uint64, max int) (ok bool, cooldownTicks uint64) {
	if a.rl == nil {
		a.rl = map[string]*rateWindow{}
	}
	w, ok := a.rl[kind]
	if !ok {
		w = &rateWindow{StartTick: nowTick, Window: window, Max: max}
		a.rl[kind] = w
	}
	w.Window = window
	w.Max = max
	if w.Window == 0 || w.Max <= 0 {
		return true, 0
	}
	if nowTick-w.StartTick >= w.Window {
		w.StartTick = nowTick
		w.Count = 0
	}
	w.Count++
	if w.Count <= w.Max {
		return true, 0
	}
	return false, (w.StartTick + w.Window) - nowTick
}

// InventoryList returns the non-empty stacks sorted by item id.
func (a *Agent) InventoryList() []protocol.InventoryEntry {
	out := make([]protocol.InventoryEntry, 0, len(a.Inventory))
	for item, n := range a.Inventory {
		if n > 0 {
			out = append(out, protocol.InventoryEntry{Item: item, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

func (a *Agent) take(item string, n int) bool {
	if n <= 0 || a.Inventory[item] < n {
		return false
	}
	a.Inventory[item] -= n
	if a.Inventory[item] == 0 {
		delete(a.Inventory, item)
	}
	return true
}

func (a *Agent) give(item string, n int) {
	if n <= 0 {
		return
	}
	a.Inventory[item] += n
}

func (a *Agent) clearCombat() {
	a.CombatTarget = ""
	a.CombatUntil = 0
}
