package protocol

import "fmt"

type MessageKind string

const (
	MsgSpeak      MessageKind = "SPEAK"
	MsgSystem     MessageKind = "SYSTEM"
	MsgCombat     MessageKind = "COMBAT"
	MsgItemPickup MessageKind = "ITEM_PICKUP"
	MsgItemUse    MessageKind = "ITEM_USE"
	MsgItemDrop   MessageKind = "ITEM_DROP"
	MsgTrade      MessageKind = "TRADE"
	MsgMovement   MessageKind = "MOVEMENT"
	MsgBlocked    MessageKind = "BLOCKED"
	MsgError      MessageKind = "ERROR"
)

// Message is an output record produced by the applier. Seq is assigned by the
// sink on push and is strictly increasing for the lifetime of a sink.
type Message struct {
	Seq  uint64      `json:"seq"`
	Tick uint64      `json:"tick"`
	Kind MessageKind `json:"kind"`

	AgentID   string `json:"agent_id,omitempty"`
	AgentName string `json:"agent_name,omitempty"`
	Target    string `json:"target,omitempty"`
	Text      string `json:"text,omitempty"`
	Item      string `json:"item,omitempty"`
	Count     int    `json:"count,omitempty"`
	Damage    int    `json:"damage,omitempty"`

	From *Position `json:"from,omitempty"`
	To   *Position `json:"to,omitempty"`

	Code string `json:"code,omitempty"`
}

func (m Message) speaker() string {
	if m.AgentName != "" {
		return m.AgentName
	}
	return m.AgentID
}

// DisplayText renders the message for a human reader.
func (m Message) DisplayText() string {
	switch m.Kind {
	case MsgSpeak:
		return fmt.Sprintf("%s says: %q", m.speaker(), m.Text)
	case MsgCombat:
		return fmt.Sprintf("%s attacks %s for %d damage", m.speaker(), m.Target, m.Damage)
	case MsgItemPickup:
		return fmt.Sprintf("%s picks up %s x%d", m.speaker(), m.Item, m.Count)
	case MsgItemUse:
		return fmt.Sprintf("%s uses %s, %s", m.speaker(), m.Item, m.Text)
	case MsgItemDrop:
		return fmt.Sprintf("%s drops %s x%d", m.speaker(), m.Item, m.Count)
	case MsgTrade:
		return fmt.Sprintf("%s starts trading with %s", m.speaker(), m.Target)
	case MsgMovement:
		if m.To != nil {
			return fmt.Sprintf("%s moves to %s", m.speaker(), *m.To)
		}
		return fmt.Sprintf("%s moves", m.speaker())
	case MsgBlocked:
		return fmt.Sprintf("%s is blocked: %s", m.speaker(), m.Text)
	case MsgError:
		return "error: " + m.Text
	}
	return m.Text
}

// IsLog reports messages meant for logs rather than the main output.
func (m Message) IsLog() bool {
	switch m.Kind {
	case MsgMovement, MsgBlocked, MsgError:
		return true
	}
	return false
}
