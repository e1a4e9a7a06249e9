package protocol

import "fmt"

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Position) Add(dx, dy int) Position { return Position{X: p.X + dx, Y: p.Y + dy} }

func (p Position) String() string { return fmt.Sprintf("(%d, %d)", p.X, p.Y) }

// Chebyshev returns the king-move distance between two cells.
func Chebyshev(a, b Position) int {
	return max(abs(a.X-b.X), abs(a.Y-b.Y))
}

// Manhattan returns the taxicab distance between two cells.
func Manhattan(a, b Position) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

type GameTime struct {
	Day    uint32 `json:"day"`
	Hour   uint8  `json:"hour"`
	Minute uint8  `json:"minute"`
	Second uint8  `json:"second"`
}

func (t GameTime) String() string {
	return fmt.Sprintf("Day %d %02d:%02d:%02d", t.Day, t.Hour, t.Minute, t.Second)
}

type EntityType string

const (
	EntityPlayer EntityType = "PLAYER"
	EntityNPC    EntityType = "NPC"
)

type EntityInfo struct {
	ID   string     `json:"id"`
	Type EntityType `json:"type"`
	Pos  Position   `json:"pos"`
	Name string     `json:"name"`
}

type ItemInfo struct {
	Item  string   `json:"item"`
	Count int      `json:"count"`
	Pos   Position `json:"pos"`
}

type TerrainInfo struct {
	Walkable    bool   `json:"walkable"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

// InventoryEntry summarizes one stack the agent carries. HealHP is copied from
// the item catalog so decision code never needs to look anything up.
type InventoryEntry struct {
	Item   string `json:"item"`
	Count  int    `json:"count"`
	HealHP int    `json:"heal_hp,omitempty"`
}

type CombatInfo struct {
	TargetID string `json:"target_id"`
}

// AgentView is an immutable point-in-time copy of everything one agent may
// base a decision on. It shares no memory with the world it was built from.
type AgentView struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Tick    uint64 `json:"tick"`

	Pos   Position `json:"pos"`
	HP    int      `json:"hp"`
	MaxHP int      `json:"max_hp"`
	MP    int      `json:"mp"`
	MaxMP int      `json:"max_mp"`

	Inventory []InventoryEntry `json:"inventory"`
	MapID     string           `json:"map_id"`
	Time      GameTime         `json:"time"`

	Nearby  []EntityInfo `json:"nearby"`
	Items   []ItemInfo   `json:"items"`
	Terrain TerrainInfo  `json:"terrain"`

	Interacting bool        `json:"interacting"`
	InParty     bool        `json:"in_party"`
	PartyLeader string      `json:"party_leader,omitempty"`
	Combat      *CombatInfo `json:"combat,omitempty"`
	Dialogue    []string    `json:"dialogue,omitempty"`
}

// Clone returns a deep copy of v.
func (v AgentView) Clone() AgentView {
	out := v
	out.Inventory = append([]InventoryEntry(nil), v.Inventory...)
	out.Nearby = append([]EntityInfo(nil), v.Nearby...)
	out.Items = append([]ItemInfo(nil), v.Items...)
	out.Dialogue = append([]string(nil), v.Dialogue...)
	if v.Combat != nil {
		c := *v.Combat
		out.Combat = &c
	}
	return out
}

func (v AgentView) ItemCount(item string) int {
	for _, e := range v.Inventory {
		if e.Item == item {
			return e.Count
		}
	}
	return 0
}

func (v AgentView) Entity(id string) (EntityInfo, bool) {
	for _, e := range v.Nearby {
		if e.ID == id {
			return e, true
		}
	}
	return EntityInfo{}, false
}

// ItemsHere returns the ground items lying on the agent's own cell.
func (v AgentView) ItemsHere() []ItemInfo {
	var out []ItemInfo
	for _, it := range v.Items {
		if it.Pos == v.Pos && it.Count > 0 {
			out = append(out, it)
		}
	}
	return out
}
