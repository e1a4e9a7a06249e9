package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"npcsim.ai/internal/protocol"
)

func TestBuildViews_SnapshotIsolation(t *testing.T) {
	w := newTestWorld(t)
	a := w.Agent("a")
	a.Inventory["potion"] = 2
	a.Dialogue = []string{"hi"}
	require.True(t, w.Map("town").AddItem(a.Pos, "apple", 3))
	addAgent(t, w, &Agent{ID: "b", Pos: protocol.Position{X: 6, Y: 5}})

	views := BuildViews(w)
	v := views["a"]
	before := v.Clone()

	// Mutate the live world in every way the view could alias.
	a.Pos = protocol.Position{X: 0, Y: 0}
	a.HP = 1
	a.Inventory["potion"] = 9
	a.Dialogue[0] = "changed"
	w.Map("town").RemoveItem(protocol.Position{X: 5, Y: 5}, "apple", 3)
	w.Agent("b").Pos = protocol.Position{X: 9, Y: 9}
	ApplyEvent(w, protocol.NewTimerTick(0))

	assert.Equal(t, before, v)
	assert.Equal(t, before, views["a"])
}

func TestBuildViews_EmptyWorld(t *testing.T) {
	w := New(WorldConfig{}, nil)
	views := BuildViews(w)
	assert.NotNil(t, views)
	assert.Empty(t, views)
}

func TestBuildViews_CoversLivingNPCsOnly(t *testing.T) {
	w := newTestWorld(t)
	addAgent(t, w, &Agent{ID: "hero", Kind: protocol.EntityPlayer, Pos: protocol.Position{X: 1, Y: 1}})
	addAgent(t, w, &Agent{ID: "ghost", Pos: protocol.Position{X: 2, Y: 2}, Dead: true})

	views := BuildViews(w)
	require.Len(t, views, 1)
	_, ok := views["a"]
	assert.True(t, ok)
}

func TestBuildView_Contents(t *testing.T) {
	w := newTestWorld(t)
	a := w.Agent("a")
	a.HP = 30
	a.Inventory["potion"] = 1
	a.Inventory["rock"] = 2
	m := w.Map("town")
	m.AddItem(a.Pos, "apple", 1)
	m.AddItem(protocol.Position{X: 6, Y: 5}, "rock", 4)

	addAgent(t, w, &Agent{ID: "z", Name: "Zed", Pos: protocol.Position{X: 9, Y: 9}})
	addAgent(t, w, &Agent{ID: "c", Name: "Cat", Pos: protocol.Position{X: 9, Y: 1}})
	addAgent(t, w, &Agent{ID: "b", Name: "Bob", Kind: protocol.EntityPlayer, Pos: protocol.Position{X: 6, Y: 6}})
	addAgent(t, w, &Agent{ID: "d", Pos: protocol.Position{X: 5, Y: 6}, Dead: true})

	v, ok := BuildView(w, "a")
	require.True(t, ok)

	assert.Equal(t, "a", v.AgentID)
	assert.Equal(t, protocol.Position{X: 5, Y: 5}, v.Pos)
	assert.Equal(t, 30, v.HP)
	assert.Equal(t, 100, v.MaxHP)
	assert.Equal(t, "town", v.MapID)
	assert.Equal(t, protocol.GameTime{Day: 1, Hour: 9}, v.Time)
	assert.Equal(t, protocol.TerrainInfo{Walkable: true, Kind: "GRASS", Description: "open meadow"}, v.Terrain)
	assert.False(t, v.Interacting)

	assert.Equal(t, []protocol.InventoryEntry{
		{Item: "potion", Count: 1, HealHP: 80},
		{Item: "rock", Count: 2},
	}, v.Inventory)

	// Only the agent's own cell.
	assert.Equal(t, []protocol.ItemInfo{{Item: "apple", Count: 1, Pos: protocol.Position{X: 5, Y: 5}}}, v.Items)

	// Radius 5 Chebyshev, sorted, no self, no dead.
	ids := make([]string, 0, len(v.Nearby))
	for _, e := range v.Nearby {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"b", "c", "z"}, ids)
	bob, ok := v.Entity("b")
	require.True(t, ok)
	assert.Equal(t, protocol.EntityPlayer, bob.Type)
	assert.Equal(t, "Bob", bob.Name)
}

func TestBuildView_RadiusExcludesFarAgents(t *testing.T) {
	w := newTestWorld(t, func(c *WorldConfig) { c.VisibilityRadius = 2 })
	addAgent(t, w, &Agent{ID: "near", Pos: protocol.Position{X: 7, Y: 7}})
	addAgent(t, w, &Agent{ID: "far", Pos: protocol.Position{X: 8, Y: 5}})

	v, _ := BuildView(w, "a")
	require.Len(t, v.Nearby, 1)
	assert.Equal(t, "near", v.Nearby[0].ID)
}

func TestBuildView_PartyAndCombat(t *testing.T) {
	w := newTestWorld(t)
	a := w.Agent("a")
	a.PartyID = "caravan"
	addAgent(t, w, &Agent{ID: "lead", Pos: protocol.Position{X: 1, Y: 1}, PartyID: "caravan", PartyLeader: true})
	addAgent(t, w, &Agent{ID: "wolf", Pos: protocol.Position{X: 5, Y: 6}})
	a.CombatTarget = "wolf"

	v, _ := BuildView(w, "a")
	assert.True(t, v.InParty)
	assert.Equal(t, "lead", v.PartyLeader)
	require.NotNil(t, v.Combat)
	assert.Equal(t, "wolf", v.Combat.TargetID)

	lv, _ := BuildView(w, "lead")
	assert.True(t, lv.InParty)
	assert.Empty(t, lv.PartyLeader)
	assert.Nil(t, lv.Combat)
}

func TestBuildView_UnknownAgent(t *testing.T) {
	w := newTestWorld(t)
	_, ok := BuildView(w, "nobody")
	assert.False(t, ok)
}
