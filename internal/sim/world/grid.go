package world

import (
	"sort"

	"npcsim.ai/internal/protocol"
)

type Terrain struct {
	Kind        string
	Walkable    bool
	Description string
}

func (t Terrain) Info() protocol.TerrainInfo {
	return protocol.TerrainInfo{Walkable: t.Walkable, Kind: t.Kind, Description: t.Description}
}

// GameMap is a rectangular grid of terrain with item stacks lying on cells.
type GameMap struct {
	ID     string
	Name   string
	Width  int
	Height int

	terrain []Terrain
	items   map[protocol.Position]map[string]int
}

func NewGameMap(id, name string, width, height int, fill Terrain) *GameMap {
	m := &GameMap{
		ID:      id,
		Name:    name,
		Width:   width,
		Height:  height,
		terrain: make([]Terrain, width*height),
		items:   map[protocol.Position]map[string]int{},
	}
	for i := range m.terrain {
		m.terrain[i] = fill
	}
	return m
}

func (m *GameMap) InBounds(p protocol.Position) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < m.Width && p.Y < m.Height
}

func (m *GameMap) idx(p protocol.Position) int { return p.Y*m.Width + p.X }

func (m *GameMap) SetTerrain(p protocol.Position, t Terrain) bool {
	if !m.InBounds(p) {
		return false
	}
	m.terrain[m.idx(p)] = t
	return true
}

// TerrainAt reports an unwalkable void outside the map.
func (m *GameMap) TerrainAt(p protocol.Position) Terrain {
	if !m.InBounds(p) {
		return Terrain{Kind: "VOID", Description: "edge of the world"}
	}
	return m.terrain[m.idx(p)]
}

func (m *GameMap) Walkable(p protocol.Position) bool {
	return m.InBounds(p) && m.terrain[m.idx(p)].Walkable
}

func (m *GameMap) ItemCount(p protocol.Position, item string) int {
	return m.items[p][item]
}

func (m *GameMap) AddItem(p protocol.Position, item string, n int) bool {
	if n <= 0 || item == "" || !m.InBounds(p) {
		return false
	}
	cell := m.items[p]
	if cell == nil {
		cell = map[string]int{}
		m.items[p] = cell
	}
	cell[item] += n
	return true
}

// RemoveItem takes n units or nothing.
func (m *GameMap) RemoveItem(p protocol.Position, item string, n int) bool {
	if n <= 0 {
		return false
	}
	cell := m.items[p]
	if cell[item] < n {
		return false
	}
	cell[item] -= n
	if cell[item] == 0 {
		delete(cell, item)
	}
	if len(cell) == 0 {
		delete(m.items, p)
	}
	return true
}

// ItemsAt lists the stacks on one cell sorted by item id.
func (m *GameMap) ItemsAt(p protocol.Position) []protocol.ItemInfo {
	cell := m.items[p]
	if len(cell) == 0 {
		return nil
	}
	out := make([]protocol.ItemInfo, 0, len(cell))
	for item, n := range cell {
		out = append(out, protocol.ItemInfo{Item: item, Count: n, Pos: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

// itemCells returns every cell that holds items, in row-major order.
func (m *GameMap) itemCells() []protocol.Position {
	out := make([]protocol.Position, 0, len(m.items))
	for p := range m.items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}
