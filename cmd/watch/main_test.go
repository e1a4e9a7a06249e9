package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"npcsim.ai/internal/protocol"
)

func TestInputFrame(t *testing.T) {
	_, ok := inputFrame("   ")
	assert.False(t, ok)

	b, ok := inputFrame("  notice market day \n")
	require.True(t, ok)
	var in protocol.InputMsg
	require.NoError(t, json.Unmarshal(b, &in))
	assert.Equal(t, protocol.TypeInput, in.Type)
	assert.Equal(t, protocol.Version, in.ProtocolVersion)
	assert.Equal(t, "notice market day", in.Text)
}

func TestPrintFrame(t *testing.T) {
	frame, err := json.Marshal(protocol.MessagesFrame{
		Type:            protocol.TypeMessages,
		ProtocolVersion: protocol.Version,
		Tick:            4,
		Messages:        []protocol.Message{{Seq: 1, Tick: 4, Kind: protocol.MsgSpeak, AgentName: "Guard", Text: "halt"}},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printFrame(&buf, frame, false))
	assert.Equal(t, "[4] Guard says: \"halt\"\n", buf.String())

	buf.Reset()
	require.NoError(t, printFrame(&buf, frame, true))
	assert.Contains(t, buf.String(), `"kind":"SPEAK"`)

	errFrame, err := json.Marshal(protocol.ErrorMsg{Type: protocol.TypeError, Code: protocol.ErrBadRequest, Message: "bad json"})
	require.NoError(t, err)
	buf.Reset()
	require.NoError(t, printFrame(&buf, errFrame, false))
	assert.Equal(t, "! "+protocol.ErrBadRequest+": bad json\n", buf.String())

	assert.Error(t, printFrame(&buf, []byte(`{"type":"HELLO"}`), false))
	assert.Error(t, printFrame(&buf, []byte(`nope`), false))
}
