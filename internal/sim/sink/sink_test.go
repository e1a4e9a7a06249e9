package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"npcsim.ai/internal/protocol"
)

func TestDrain_OrderAndExactlyOnce(t *testing.T) {
	s := New()
	s.Push(protocol.Message{Kind: protocol.MsgSpeak, Text: "one"})
	s.Push(protocol.Message{Kind: protocol.MsgSystem, Text: "two"}, protocol.Message{Kind: protocol.MsgCombat, Text: "three"})
	assert.Equal(t, 3, s.Len())

	got := s.Drain()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{got[0].Text, got[1].Text, got[2].Text})
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{got[0].Seq, got[1].Seq, got[2].Seq})

	assert.Empty(t, s.Drain(), "nothing is delivered twice")

	s.Push(protocol.Message{Text: "four"})
	got2 := s.Drain()
	require.Len(t, got2, 1)
	assert.Equal(t, uint64(4), got2[0].Seq, "seq keeps increasing across drains")

	// Later pushes never write into a slice already handed out.
	s.Push(protocol.Message{Text: "five"})
	assert.Equal(t, "one", got[0].Text)
	assert.Equal(t, "four", got2[0].Text)
}
