package world

import (
	"sort"

	"npcsim.ai/internal/protocol"
)

// BuildViews returns one view per active agent. Every view is a deep copy:
// later mutation of w never shows through. With no active agents the map is
// empty.
func BuildViews(w *World) map[string]protocol.AgentView {
	out := make(map[string]protocol.AgentView, len(w.agents))
	for _, id := range w.ActiveAgentIDs() {
		out[id] = buildView(w, w.agents[id])
	}
	return out
}

// BuildView builds the view of a single agent, active or not.
func BuildView(w *World, agentID string) (protocol.AgentView, bool) {
	a := w.agents[agentID]
	if a == nil {
		return protocol.AgentView{}, false
	}
	return buildView(w, a), true
}

func buildView(w *World, a *Agent) protocol.AgentView {
	v := protocol.AgentView{
		AgentID:     a.ID,
		Name:        a.Name,
		Tick:        w.tick,
		Pos:         a.Pos,
		HP:          a.HP,
		MaxHP:       a.MaxHP,
		MP:          a.MP,
		MaxMP:       a.MaxMP,
		MapID:       a.MapID,
		Time:        w.clock.Time(),
		Terrain:     w.mapSvc.TerrainAt(a.MapID, a.Pos.X, a.Pos.Y),
		Interacting: a.Interacting,
		InParty:     a.PartyID != "",
		Dialogue:    append([]string(nil), a.Dialogue...),
	}

	inv := a.InventoryList()
	for i := range inv {
		inv[i].HealHP = w.healAmount(inv[i].Item)
	}
	v.Inventory = inv

	if m := w.maps[a.MapID]; m != nil {
		v.Items = m.ItemsAt(a.Pos)
	}

	v.Nearby = nearbyEntities(w, a)
	if a.PartyID != "" && !a.PartyLeader {
		v.PartyLeader = partyLeader(w, a.PartyID)
	}
	if a.CombatTarget != "" {
		if t := w.agents[a.CombatTarget]; t != nil && t.Alive() {
			v.Combat = &protocol.CombatInfo{TargetID: t.ID}
		}
	}
	return v
}

func nearbyEntities(w *World, self *Agent) []protocol.EntityInfo {
	r := w.cfg.VisibilityRadius
	var out []protocol.EntityInfo
	for id, o := range w.agents {
		if id == self.ID || !o.Alive() || o.MapID != self.MapID {
			continue
		}
		if protocol.Chebyshev(self.Pos, o.Pos) > r {
			continue
		}
		out = append(out, protocol.EntityInfo{ID: o.ID, Type: o.Kind, Pos: o.Pos, Name: o.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func partyLeader(w *World, partyID string) string {
	for _, id := range w.AgentIDs() {
		a := w.agents[id]
		if a.PartyID == partyID && a.PartyLeader && a.Alive() {
			return id
		}
	}
	return ""
}
