package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairKeyNormalized(t *testing.T) {
	assert.Equal(t, PairKey("a", "b", ""), PairKey("b", "a", ""))
	assert.Equal(t, "a:b", PairKey("b", "a", ""))
	assert.Equal(t, "a:b#p1", PairKey("b", "a", "p1"))
	assert.NotEqual(t, PairKey("a", "b", "p1"), PairKey("a", "b", "p2"))

	// Ids containing underscores must not collide across the separator
	assert.NotEqual(t, PairKey("a_b", "c", ""), PairKey("a", "b_c", ""))
}

func TestConversationParticipants(t *testing.T) {
	conv := &Conversation{Participant1: "a", Participant2: "b"}
	assert.True(t, conv.HasParticipant("a"))
	assert.True(t, conv.HasParticipant("b"))
	assert.False(t, conv.HasParticipant("c"))
	assert.Equal(t, "b", conv.OtherParticipant("a"))
	assert.Equal(t, "a", conv.OtherParticipant("b"))
	assert.Equal(t, "", conv.OtherParticipant("c"))
}

func TestSenderName(t *testing.T) {
	// No sender means a system-generated message
	msg := &Message{MsgType: MsgTypeSystem}
	assert.Equal(t, "System", msg.SenderName())

	msg = &Message{SenderId: "u1", Sender: &Profile{FullName: "Nguyen Van A"}}
	assert.Equal(t, "Nguyen Van A", msg.SenderName())

	// Sender known by id but profile missing
	msg = &Message{SenderId: "u1"}
	assert.Equal(t, "Unknown", msg.SenderName())
}

func TestMessageClone(t *testing.T) {
	msg := &Message{Id: "1", Content: "x", Status: StatusSending}
	cp := msg.Clone()

	cp.Content = "y"
	cp.Status = StatusFailed
	assert.Equal(t, "x", msg.Content)
	assert.Equal(t, StatusSending, msg.Status)
}
