package world

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"npcsim.ai/internal/protocol"
	"npcsim.ai/internal/sim/catalogs"
)

// Seed is the hand-authored starting content of a world, as read from YAML.
type Seed struct {
	WorldID   string      `yaml:"world_id"`
	StartTime *SeedTime   `yaml:"start_time"`
	Maps      []SeedMap   `yaml:"maps"`
	Items     []SeedItem  `yaml:"ground_items"`
	Agents    []SeedAgent `yaml:"agents"`
}

type SeedTime struct {
	Day    uint32 `yaml:"day"`
	Hour   uint8  `yaml:"hour"`
	Minute uint8  `yaml:"minute"`
}

// SeedMap draws terrain with one legend character per cell.
type SeedMap struct {
	ID     string                 `yaml:"id"`
	Name   string                 `yaml:"name"`
	Legend map[string]SeedTerrain `yaml:"legend"`
	Rows   []string               `yaml:"rows"`
}

type SeedTerrain struct {
	Kind        string `yaml:"kind"`
	Walkable    bool   `yaml:"walkable"`
	Description string `yaml:"description"`
}

type SeedItem struct {
	Map   string `yaml:"map"`
	X     int    `yaml:"x"`
	Y     int    `yaml:"y"`
	Item  string `yaml:"item"`
	Count int    `yaml:"count"`
}

type SeedAgent struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Kind      string         `yaml:"kind"`
	Map       string         `yaml:"map"`
	X         int            `yaml:"x"`
	Y         int            `yaml:"y"`
	HP        int            `yaml:"hp"`
	MaxHP     int            `yaml:"max_hp"`
	MP        int            `yaml:"mp"`
	MaxMP     int            `yaml:"max_mp"`
	Inventory map[string]int `yaml:"inventory"`
	Party     string         `yaml:"party"`
	Leader    bool           `yaml:"leader"`
	Dialogue  []string       `yaml:"dialogue"`
}

func LoadSeed(path string) (Seed, error) {
	var s Seed
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("world seed: %w", err)
	}
	return s, nil
}

// Build creates a world from the seed. cfg.ID and cfg.StartTime are taken
// from the seed when it sets them.
func (s Seed) Build(cfg WorldConfig, items *catalogs.ItemCatalog, opts ...Option) (*World, error) {
	if s.WorldID != "" {
		cfg.ID = s.WorldID
	}
	if s.StartTime != nil {
		cfg.StartTime = protocol.GameTime{Day: s.StartTime.Day, Hour: s.StartTime.Hour, Minute: s.StartTime.Minute}
	}
	w := New(cfg, items, opts...)
	for _, sm := range s.Maps {
		m, err := sm.build()
		if err != nil {
			return nil, err
		}
		if err := w.AddMap(m); err != nil {
			return nil, err
		}
	}
	for _, it := range s.Items {
		m := w.maps[it.Map]
		if m == nil {
			return nil, fmt.Errorf("ground item %s: unknown map %q", it.Item, it.Map)
		}
		item := items.Resolve(it.Item)
		if items != nil {
			if _, ok := items.Get(item); !ok {
				return nil, fmt.Errorf("ground item %q: not in catalog", it.Item)
			}
		}
		if !m.AddItem(protocol.Position{X: it.X, Y: it.Y}, item, it.Count) {
			return nil, fmt.Errorf("ground item %s at (%d,%d) on %s: invalid", it.Item, it.X, it.Y, it.Map)
		}
	}
	for _, sa := range s.Agents {
		a, err := sa.agent(items)
		if err != nil {
			return nil, err
		}
		if err := w.AddAgent(a); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// agent builds a fresh, unplaced agent. Each call returns new state.
func (sa SeedAgent) agent(items *catalogs.ItemCatalog) (*Agent, error) {
	a := &Agent{
		ID:          sa.ID,
		Name:        sa.Name,
		Kind:        protocol.EntityType(sa.Kind),
		MapID:       sa.Map,
		Pos:         protocol.Position{X: sa.X, Y: sa.Y},
		HP:          sa.HP,
		MaxHP:       sa.MaxHP,
		MP:          sa.MP,
		MaxMP:       sa.MaxMP,
		Inventory:   map[string]int{},
		PartyID:     sa.Party,
		PartyLeader: sa.Leader,
		Dialogue:    append([]string(nil), sa.Dialogue...),
	}
	switch a.Kind {
	case "", protocol.EntityNPC, protocol.EntityPlayer:
	default:
		return nil, fmt.Errorf("agent %q: unknown kind %q", sa.ID, sa.Kind)
	}
	for item, n := range sa.Inventory {
		a.give(items.Resolve(item), n)
	}
	return a, nil
}

func (sm SeedMap) build() (*GameMap, error) {
	if sm.ID == "" || len(sm.Rows) == 0 {
		return nil, fmt.Errorf("map %q: missing id or rows", sm.ID)
	}
	width := len([]rune(sm.Rows[0]))
	m := NewGameMap(sm.ID, sm.Name, width, len(sm.Rows), Terrain{})
	for y, row := range sm.Rows {
		cells := []rune(row)
		if len(cells) != width {
			return nil, fmt.Errorf("map %q: row %d has width %d, want %d", sm.ID, y, len(cells), width)
		}
		for x, ch := range cells {
			lt, ok := sm.Legend[string(ch)]
			if !ok {
				return nil, fmt.Errorf("map %q: no legend entry for %q at (%d,%d)", sm.ID, ch, x, y)
			}
			m.SetTerrain(protocol.Position{X: x, Y: y}, Terrain{Kind: lt.Kind, Walkable: lt.Walkable, Description: lt.Description})
		}
	}
	return m, nil
}
