package protocol_test

import (
	"encoding/json"
	"testing"
	"time"

	"npcsim.ai/internal/protocol"
)

func TestSchemas_ValidateEncodedValues(t *testing.T) {
	validate := func(name string, v any) {
		t.Helper()
		s, err := protocol.CompileSchema(name)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(doc); err != nil {
			t.Fatalf("validate %s: %v\n%s", name, err, b)
		}
	}

	view := protocol.AgentView{
		AgentID:   "guard",
		Name:      "Guard",
		Tick:      7,
		Pos:       protocol.Position{X: 5, Y: 5},
		HP:        30,
		MaxHP:     100,
		Inventory: []protocol.InventoryEntry{{Item: "potion", Count: 1, HealHP: 80}},
		MapID:     "town",
		Time:      protocol.GameTime{Day: 1, Hour: 9},
		Nearby:    []protocol.EntityInfo{{ID: "hero", Type: protocol.EntityPlayer, Pos: protocol.Position{X: 6, Y: 5}, Name: "Hero"}},
		Items:     []protocol.ItemInfo{{Item: "apple", Count: 1, Pos: protocol.Position{X: 5, Y: 5}}},
		Terrain:   protocol.TerrainInfo{Walkable: true, Kind: "GRASS", Description: "open meadow"},
		Combat:    &protocol.CombatInfo{TargetID: "wolf"},
	}
	validate(protocol.SchemaAgentView, view)

	validate(protocol.SchemaEvent, protocol.NewAgentIntents("guard", 7, protocol.Move(protocol.DirUp), protocol.Pickup("apple", 1)))
	validate(protocol.SchemaEvent, protocol.NewTimerTick(200*time.Millisecond))
	validate(protocol.SchemaEvent, protocol.NewInput("notice hello"))

	from := protocol.Position{X: 1, Y: 1}
	to := protocol.Position{X: 1, Y: 0}
	validate(protocol.SchemaMessage, protocol.Message{Seq: 1, Tick: 3, Kind: protocol.MsgMovement, AgentID: "guard", From: &from, To: &to})
	validate(protocol.SchemaInput, protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: protocol.Version, Text: "notice hi"})
}

func TestSchemas_RejectMalformedIntent(t *testing.T) {
	s, err := protocol.CompileSchema(protocol.SchemaIntent)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var doc any
	_ = json.Unmarshal([]byte(`{"kind":"MOVE"}`), &doc)
	if err := s.Validate(doc); err == nil {
		t.Fatalf("expected MOVE without direction to be rejected")
	}
	_ = json.Unmarshal([]byte(`{"kind":"TELEPORT"}`), &doc)
	if err := s.Validate(doc); err == nil {
		t.Fatalf("expected unknown intent kind to be rejected")
	}
}
