package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trangnv/homechat/internal/entity"
	"github.com/trangnv/homechat/internal/store"
	"github.com/trangnv/homechat/pkg/errcode"
)

func seedStore(t *testing.T) *store.Memory {
	t.Helper()
	mem := store.NewMemory()
	mem.PutProfile(&entity.Profile{Id: "buyer", FullName: "Nguyen Van A"})
	mem.PutProfile(&entity.Profile{Id: "agent", FullName: "Tran Thi B"})
	return mem
}

func TestGetOrCreateIdempotent(t *testing.T) {
	mem := seedStore(t)
	svc := NewConversationService(mem)
	ctx := context.Background()

	conv, err := svc.GetOrCreate(ctx, "buyer", "agent", "")
	require.NoError(t, err)
	require.NotEmpty(t, conv.Id)

	// Same pair, either call order, resolves to the same conversation
	again, err := svc.GetOrCreate(ctx, "agent", "buyer", "")
	require.NoError(t, err)
	require.Equal(t, conv.Id, again.Id)
}

func TestGetOrCreatePropertyScope(t *testing.T) {
	mem := seedStore(t)
	svc := NewConversationService(mem)
	ctx := context.Background()

	house, err := svc.GetOrCreate(ctx, "buyer", "agent", "prop-1")
	require.NoError(t, err)
	flat, err := svc.GetOrCreate(ctx, "buyer", "agent", "prop-2")
	require.NoError(t, err)
	require.NotEqual(t, house.Id, flat.Id)

	// Scoped lookups stay distinct
	again, err := svc.GetOrCreate(ctx, "agent", "buyer", "prop-1")
	require.NoError(t, err)
	require.Equal(t, house.Id, again.Id)
}

func TestGetOrCreateRejectsSelfAndEmpty(t *testing.T) {
	mem := seedStore(t)
	svc := NewConversationService(mem)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "buyer", "buyer", "")
	require.ErrorIs(t, err, errcode.ErrSelfConversation)

	_, err = svc.GetOrCreate(ctx, "buyer", "", "")
	require.ErrorIs(t, err, errcode.ErrInvalidParam)
}

func TestListForUserAggregates(t *testing.T) {
	mem := seedStore(t)
	svc := NewConversationService(mem)
	ctx := context.Background()

	conv, err := svc.GetOrCreate(ctx, "buyer", "agent", "")
	require.NoError(t, err)

	for _, content := range []string{"is the house still available?", "yes, want a viewing?"} {
		_, err := mem.InsertMessage(ctx, &entity.Message{
			ConversationId: conv.Id,
			SenderId:       "agent",
			Content:        content,
			MsgType:        entity.MsgTypeText,
		})
		require.NoError(t, err)
	}

	details, err := svc.ListForUser(ctx, "buyer")
	require.NoError(t, err)
	require.Len(t, details, 1)

	d := details[0]
	require.Equal(t, conv.Id, d.Conversation.Id)
	require.NotNil(t, d.OtherUser)
	require.Equal(t, "Tran Thi B", d.OtherUser.FullName)
	require.Equal(t, "yes, want a viewing?", d.LastMessage)
	require.EqualValues(t, 2, d.UnreadCount)

	// The agent sees zero unread for their own messages
	details, err = svc.ListForUser(ctx, "agent")
	require.NoError(t, err)
	require.Len(t, details, 1)
	require.Zero(t, details[0].UnreadCount)
	require.Equal(t, "Nguyen Van A", details[0].OtherUser.FullName)
}

func TestMessagesMarksReadAndChecksMembership(t *testing.T) {
	mem := seedStore(t)
	svc := NewConversationService(mem)
	ctx := context.Background()

	conv, err := svc.GetOrCreate(ctx, "buyer", "agent", "")
	require.NoError(t, err)
	_, err = mem.InsertMessage(ctx, &entity.Message{
		ConversationId: conv.Id,
		SenderId:       "agent",
		Content:        "hello",
		MsgType:        entity.MsgTypeText,
	})
	require.NoError(t, err)

	_, err = svc.Messages(ctx, "stranger", conv.Id)
	require.ErrorIs(t, err, errcode.ErrNotParticipant)

	_, err = svc.Messages(ctx, "buyer", "nope")
	require.ErrorIs(t, err, errcode.ErrConvNotFound)

	msgs, err := svc.Messages(ctx, "buyer", conv.Id)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.True(t, msgs[0].IsRead)
	require.Equal(t, "Tran Thi B", msgs[0].Sender.FullName)

	count, err := svc.UnreadCount(ctx, "buyer", conv.Id)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestMarkReadNeverUnreads(t *testing.T) {
	mem := seedStore(t)
	svc := NewConversationService(mem)
	ctx := context.Background()

	conv, err := svc.GetOrCreate(ctx, "buyer", "agent", "")
	require.NoError(t, err)
	_, err = mem.InsertMessage(ctx, &entity.Message{
		ConversationId: conv.Id,
		SenderId:       "agent",
		Content:        "ping",
		MsgType:        entity.MsgTypeText,
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, "buyer", conv.Id))
	require.NoError(t, svc.MarkRead(ctx, "buyer", conv.Id))

	msgs, err := mem.ListMessages(ctx, conv.Id)
	require.NoError(t, err)
	require.True(t, msgs[0].IsRead)
}
