package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trangnv/homechat/internal/entity"
)

func TestMemoryDuplicatePair(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	_, err := mem.CreateConversation(ctx, &entity.Conversation{
		Participant1: "a", Participant2: "b", Kind: entity.ConvKindUser,
	})
	require.NoError(t, err)

	// Reversed participant order still collides on the normalized key
	_, err = mem.CreateConversation(ctx, &entity.Conversation{
		Participant1: "b", Participant2: "a", Kind: entity.ConvKindUser,
	})
	require.ErrorIs(t, err, ErrDuplicatePair)

	// A property scope makes a distinct pair
	_, err = mem.CreateConversation(ctx, &entity.Conversation{
		Participant1: "a", Participant2: "b", PropertyId: "p1", Kind: entity.ConvKindUser,
	})
	require.NoError(t, err)
}

func TestMemoryFindConversationScoping(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	scoped, err := mem.CreateConversation(ctx, &entity.Conversation{
		Participant1: "a", Participant2: "b", PropertyId: "p1", Kind: entity.ConvKindUser,
	})
	require.NoError(t, err)

	// Scoped lookup is exact
	got, err := mem.FindConversation(ctx, "b", "a", "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, scoped.Id, got.Id)

	got, err = mem.FindConversation(ctx, "a", "b", "p2")
	require.NoError(t, err)
	require.Nil(t, got)

	// Unscoped lookup matches the pair regardless of property
	got, err = mem.FindConversation(ctx, "a", "b", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, scoped.Id, got.Id)
}

func TestMemoryInsertFansOutToSubscribers(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	conv, err := mem.CreateConversation(ctx, &entity.Conversation{
		Participant1: "a", Participant2: "b", Kind: entity.ConvKindUser,
	})
	require.NoError(t, err)

	var got []*entity.Message
	unsub, err := mem.SubscribeInserts(ctx, conv.Id, func(msg *entity.Message) {
		got = append(got, msg)
	})
	require.NoError(t, err)

	stored, err := mem.InsertMessage(ctx, &entity.Message{
		ConversationId: conv.Id,
		SenderId:       "a",
		Content:        "hello",
		MsgType:        entity.MsgTypeText,
		Status:         entity.StatusSending,
		Sender:         &entity.Profile{Id: "a"},
	})
	require.NoError(t, err)

	// Server id and timestamp assigned; client-only state stripped
	require.NotEmpty(t, stored.Id)
	require.NotZero(t, stored.CreatedAt)
	require.Empty(t, stored.Status)
	require.Nil(t, stored.Sender)

	require.Len(t, got, 1)
	require.Equal(t, stored.Id, got[0].Id)

	// Subscribers own their copy
	got[0].Content = "mutated"
	fetched, err := mem.GetMessage(ctx, stored.Id)
	require.NoError(t, err)
	require.Equal(t, "hello", fetched.Content)

	unsub()
	unsub()
	_, err = mem.InsertMessage(ctx, &entity.Message{
		ConversationId: conv.Id, SenderId: "b", Content: "two", MsgType: entity.MsgTypeText,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestMemoryBroadcastEphemeral(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	var got [][]byte
	unsub, err := mem.SubscribeBroadcast(ctx, TypingChannel("c1"), func(payload []byte) {
		got = append(got, payload)
	})
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, mem.Broadcast(ctx, TypingChannel("c1"), []byte("x")))
	require.NoError(t, mem.Broadcast(ctx, TypingChannel("c2"), []byte("y")))

	require.Len(t, got, 1)
	require.Equal(t, []byte("x"), got[0])
}

func TestMemoryReadStateAndCounts(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	conv, err := mem.CreateConversation(ctx, &entity.Conversation{
		Participant1: "a", Participant2: "b", Kind: entity.ConvKindUser,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := mem.InsertMessage(ctx, &entity.Message{
			ConversationId: conv.Id, SenderId: "b", Content: "m", MsgType: entity.MsgTypeText,
		})
		require.NoError(t, err)
	}
	mine, err := mem.InsertMessage(ctx, &entity.Message{
		ConversationId: conv.Id, SenderId: "a", Content: "mine", MsgType: entity.MsgTypeText,
	})
	require.NoError(t, err)

	count, err := mem.UnreadCount(ctx, conv.Id, "a")
	require.NoError(t, err)
	require.EqualValues(t, 3, count)

	require.NoError(t, mem.MarkConversationRead(ctx, conv.Id, "a"))

	count, err = mem.UnreadCount(ctx, conv.Id, "a")
	require.NoError(t, err)
	require.Zero(t, count)

	// Own message untouched by the exclude-sender sweep
	fetched, err := mem.GetMessage(ctx, mine.Id)
	require.NoError(t, err)
	require.False(t, fetched.IsRead)

	total, err := mem.CountMessages(ctx, conv.Id)
	require.NoError(t, err)
	require.EqualValues(t, 4, total)

	last, err := mem.LastMessage(ctx, conv.Id)
	require.NoError(t, err)
	require.Equal(t, mine.Id, last.Id)
}
