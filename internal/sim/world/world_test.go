package world

import (
	"testing"

	"github.com/stretchr/testify/require"

	"npcsim.ai/internal/protocol"
	"npcsim.ai/internal/sim/catalogs"
	"npcsim.ai/internal/sim/tuning"
)

var grass = Terrain{Kind: "GRASS", Walkable: true, Description: "open meadow"}
var wall = Terrain{Kind: "WALL", Description: "stone wall"}

func testItems(t *testing.T) *catalogs.ItemCatalog {
	t.Helper()
	c, err := catalogs.NewItemCatalog([]catalogs.ItemDef{
		{ID: "apple", Kind: catalogs.KindFood, HealHP: 10},
		{ID: "potion", Kind: catalogs.KindConsumable, HealHP: 80, Aliases: []string{"healing potion"}},
		{ID: "rock", Kind: catalogs.KindMisc},
	})
	require.NoError(t, err)
	return c
}

// newTestWorld builds a 10x10 grass map "town" with a wall at (5,4) and a
// single NPC "a" at (5,5).
func newTestWorld(t *testing.T, mutate ...func(*WorldConfig)) *World {
	t.Helper()
	cfg := WorldConfig{
		ID:               "test",
		VisibilityRadius: 5,
		GameSpeed:        60,
		MoveFailure:      tuning.MoveFailureSilent,
		RateLimits:       RateLimitConfig{SayWindowTicks: 10, SayMax: 2},
	}
	for _, f := range mutate {
		f(&cfg)
	}
	w := New(cfg, testItems(t))
	m := NewGameMap("town", "Town", 10, 10, grass)
	m.SetTerrain(protocol.Position{X: 5, Y: 4}, wall)
	require.NoError(t, w.AddMap(m))
	require.NoError(t, w.AddAgent(&Agent{ID: "a", Name: "Alice", MapID: "town", Pos: protocol.Position{X: 5, Y: 5}, HP: 100, MaxHP: 100}))
	return w
}

func addAgent(t *testing.T, w *World, a *Agent) *Agent {
	t.Helper()
	if a.MapID == "" {
		a.MapID = "town"
	}
	require.NoError(t, w.AddAgent(a))
	return a
}

func intents(id string, in ...protocol.Intent) protocol.Event {
	return protocol.NewAgentIntents(id, 0, in...)
}
