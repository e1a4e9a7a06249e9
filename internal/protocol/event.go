package protocol

import (
	"fmt"
	"time"
)

type EventKind string

const (
	EventAgentIntents EventKind = "AGENT_INTENTS"
	EventTimerTick    EventKind = "TIMER_TICK"
	EventInput        EventKind = "INPUT"
)

// Event is the single unit that crosses into the applier. Exactly one of the
// kind-specific field groups is meaningful.
type Event struct {
	Kind EventKind `json:"kind"`

	// AGENT_INTENTS
	AgentID  string   `json:"agent_id,omitempty"`
	ViewTick uint64   `json:"view_tick,omitempty"`
	Intents  []Intent `json:"intents,omitempty"`

	// TIMER_TICK
	ElapsedMs int64 `json:"elapsed_ms,omitempty"`

	// INPUT
	Text string `json:"text,omitempty"`
}

// NewAgentIntents wraps one agent's intents, decided on the view built at viewTick.
func NewAgentIntents(agentID string, viewTick uint64, intents ...Intent) Event {
	return Event{
		Kind:     EventAgentIntents,
		AgentID:  agentID,
		ViewTick: viewTick,
		Intents:  append([]Intent(nil), intents...),
	}
}

func NewTimerTick(elapsed time.Duration) Event {
	return Event{Kind: EventTimerTick, ElapsedMs: elapsed.Milliseconds()}
}

func NewInput(text string) Event {
	return Event{Kind: EventInput, Text: text}
}

// Validate reports structural problems only; world rules are checked by the applier.
func (e Event) Validate() error {
	switch e.Kind {
	case EventAgentIntents:
		if e.AgentID == "" {
			return fmt.Errorf("agent intents: missing agent_id")
		}
	case EventTimerTick:
		if e.ElapsedMs < 0 {
			return fmt.Errorf("timer tick: negative elapsed_ms %d", e.ElapsedMs)
		}
	case EventInput:
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}
