package protocol

import "encoding/json"

// Version is bumped whenever a field of a wire type changes meaning.
// Fields are only ever added; consumers must ignore unknown fields.
const Version = "1.0"

// Frame types exchanged with presentation/input collaborators.
const (
	TypeInput    = "INPUT"
	TypeMessages = "MESSAGES"
	TypeError    = "ERROR"
)

// BaseMessage lets us route unknown JSON frames by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// INPUT (client -> server): free-form command text wrapped as an Input event.
type InputMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Text            string `json:"text"`
}

// ERROR (server -> client): a rejected frame. Code is one of the E_* codes.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

// MESSAGES (server -> client): everything drained from the sink for one tick.
type MessagesFrame struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Tick            uint64    `json:"tick"`
	Messages        []Message `json:"messages"`
}

// TickRecord is one line of the replay log: the events applied during a tick
// in application order, plus the resulting state digest.
type TickRecord struct {
	RunID    string  `json:"run_id,omitempty"`
	Tick     uint64  `json:"tick"`
	Events   []Event `json:"events,omitempty"`
	Messages int     `json:"messages"`
	Digest   string  `json:"digest"`
}
