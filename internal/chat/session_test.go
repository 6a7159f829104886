package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/trangnv/homechat/internal/entity"
	"github.com/trangnv/homechat/internal/store"
	"github.com/trangnv/homechat/pkg/errcode"
	"github.com/trangnv/homechat/pkg/idgen"
)

var (
	alice = &entity.Profile{Id: "alice", FullName: "Alice Tran"}
	bob   = &entity.Profile{Id: "bob", FullName: "Bob Nguyen"}
)

func newTestStore(t *testing.T) (*store.Memory, *entity.Conversation) {
	t.Helper()
	mem := store.NewMemory()
	mem.PutProfile(alice)
	mem.PutProfile(bob)

	conv, err := mem.CreateConversation(context.Background(), &entity.Conversation{
		Participant1: alice.Id,
		Participant2: bob.Id,
		Kind:         entity.ConvKindUser,
	})
	require.NoError(t, err)
	return mem, conv
}

func openSession(t *testing.T, mem *store.Memory, convId string, self *entity.Profile) (*Session, chan Event) {
	t.Helper()
	events := make(chan Event, 64)
	s := NewSession(Options{
		Store:           mem,
		Feed:            mem,
		Self:            self,
		ConversationId:  convId,
		Sink:            SinkFunc(func(ev Event) { events <- ev }),
		TypingStopDelay: 50 * time.Millisecond,
		TypingExpiry:    80 * time.Millisecond,
	})
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(s.Close)
	return s, events
}

func waitEvent(t *testing.T, events <-chan Event, typ EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

func waitCond(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSessionOpenLoadsHistoryAndMarksRead(t *testing.T) {
	mem, conv := newTestStore(t)
	ctx := context.Background()

	for _, content := range []string{"hello", "anyone there?"} {
		_, err := mem.InsertMessage(ctx, &entity.Message{
			ConversationId: conv.Id,
			SenderId:       bob.Id,
			Content:        content,
			MsgType:        entity.MsgTypeText,
		})
		require.NoError(t, err)
	}

	s, _ := openSession(t, mem, conv.Id, alice)

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	for _, msg := range msgs {
		require.Equal(t, entity.StatusSent, msg.Status)
		require.True(t, msg.IsRead)
		require.NotNil(t, msg.Sender)
		require.Equal(t, "Bob Nguyen", msg.Sender.FullName)
	}

	// Opening the view consumed bob's messages
	count, err := mem.UnreadCount(ctx, conv.Id, alice.Id)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestSessionSendOptimisticThenReconciled(t *testing.T) {
	mem, conv := newTestStore(t)
	release := make(chan struct{})
	mem.InsertHook = func(*entity.Message) error {
		<-release
		return nil
	}

	s, events := openSession(t, mem, conv.Id, alice)

	tempId, err := s.Send(context.Background(), "Xin chào", "")
	require.NoError(t, err)
	require.True(t, idgen.IsTempID(tempId))

	// The entry is visible before the store accepts anything
	ev := waitEvent(t, events, EventMessageAppended)
	require.Equal(t, tempId, ev.Message.Id)
	require.Equal(t, entity.StatusSending, ev.Message.Status)
	require.Equal(t, "Xin chào", ev.Message.Content)
	require.True(t, s.Sending())

	stored, err := mem.ListMessages(context.Background(), conv.Id)
	require.NoError(t, err)
	require.Empty(t, stored)

	close(release)

	ev = waitEvent(t, events, EventMessageUpdated)
	require.Equal(t, entity.StatusSent, ev.Message.Status)
	require.False(t, idgen.IsTempID(ev.Message.Id))
	require.Equal(t, "Xin chào", ev.Message.Content)

	waitCond(t, func() bool { return !s.Sending() }, "send still in flight")

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, ev.Message.Id, msgs[0].Id)

	// Activity timestamp follows the stored message
	got, err := mem.GetConversation(context.Background(), conv.Id)
	require.NoError(t, err)
	require.Equal(t, ev.Message.CreatedAt, got.LastMessageAt)
}

func TestSessionSendValidation(t *testing.T) {
	mem, conv := newTestStore(t)
	events := make(chan Event, 8)
	s := NewSession(Options{
		Store:          mem,
		Feed:           mem,
		Self:           alice,
		ConversationId: conv.Id,
		Sink:           SinkFunc(func(ev Event) { events <- ev }),
		MaxContentLen:  8,
	})
	require.NoError(t, s.Open(context.Background()))
	defer s.Close()

	_, err := s.Send(context.Background(), "   \n\t ", "")
	require.ErrorIs(t, err, errcode.ErrEmptyContent)

	// Limit counts runes, not bytes
	_, err = s.Send(context.Background(), "Xin chào!", "")
	require.ErrorIs(t, err, errcode.ErrContentTooLong)

	_, err = s.Send(context.Background(), "Xin chào", "")
	require.NoError(t, err)
	require.Equal(t, "Xin chào", s.Messages()[0].Content)
}

func TestSessionFailedSendKeepsContentAndRetries(t *testing.T) {
	mem, conv := newTestStore(t)
	failing := true
	mem.InsertHook = func(*entity.Message) error {
		if failing {
			return errors.New("store rejected")
		}
		return nil
	}

	s, events := openSession(t, mem, conv.Id, alice)

	tempId, err := s.Send(context.Background(), "important text", "")
	require.NoError(t, err)

	waitEvent(t, events, EventMessageAppended)
	ev := waitEvent(t, events, EventMessageUpdated)
	require.Equal(t, entity.StatusFailed, ev.Message.Status)
	require.Equal(t, tempId, ev.Message.Id)
	require.Equal(t, "important text", ev.Message.Content)

	errEv := waitEvent(t, events, EventError)
	require.ErrorIs(t, errEv.Err, errcode.ErrSendFailed)

	// Nothing reached the store
	stored, err := mem.ListMessages(context.Background(), conv.Id)
	require.NoError(t, err)
	require.Empty(t, stored)

	// Retry with the original content succeeds and leaves no duplicate
	failing = false
	newTempId, err := s.Retry(context.Background(), tempId)
	require.NoError(t, err)
	require.NotEqual(t, tempId, newTempId)

	waitEvent(t, events, EventMessageAppended)
	ev = waitEvent(t, events, EventMessageUpdated)
	require.Equal(t, entity.StatusSent, ev.Message.Status)
	require.Equal(t, "important text", ev.Message.Content)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "important text", msgs[0].Content)

	stored, err = mem.ListMessages(context.Background(), conv.Id)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestSessionRetryOnlyFailedEntries(t *testing.T) {
	mem, conv := newTestStore(t)
	s, events := openSession(t, mem, conv.Id, alice)

	_, err := s.Retry(context.Background(), "no-such-id")
	require.ErrorIs(t, err, errcode.ErrNotRetriable)

	_, err = s.Send(context.Background(), "delivered fine", "")
	require.NoError(t, err)
	ev := waitEvent(t, events, EventMessageUpdated)
	require.Equal(t, entity.StatusSent, ev.Message.Status)

	// A message the store accepted is never re-sent
	_, err = s.Retry(context.Background(), ev.Message.Id)
	require.ErrorIs(t, err, errcode.ErrNotRetriable)
}

func TestSessionLiveInsertAndSelfDedup(t *testing.T) {
	mem, conv := newTestStore(t)
	aliceSess, aliceEvents := openSession(t, mem, conv.Id, alice)
	bobSess, bobEvents := openSession(t, mem, conv.Id, bob)

	_, err := aliceSess.Send(context.Background(), "hi bob", "")
	require.NoError(t, err)

	// Bob's open view receives and consumes the message
	ev := waitEvent(t, bobEvents, EventMessageAppended)
	require.Equal(t, "hi bob", ev.Message.Content)
	require.True(t, ev.Message.IsRead)
	require.Equal(t, "Alice Tran", ev.Message.Sender.FullName)

	stored, err := mem.ListMessages(context.Background(), conv.Id)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.True(t, stored[0].IsRead)

	// Alice rendered it optimistically; the feed echo must not double it
	waitEvent(t, aliceEvents, EventMessageUpdated)
	msgs := aliceSess.Messages()
	require.Len(t, msgs, 1)

	require.Len(t, bobSess.Messages(), 1)
}

func TestSessionTypingDebounceAndStop(t *testing.T) {
	mem, conv := newTestStore(t)
	aliceSess, _ := openSession(t, mem, conv.Id, alice)
	_, bobEvents := openSession(t, mem, conv.Id, bob)

	aliceSess.NotifyTyping(context.Background())

	ev := waitEvent(t, bobEvents, EventTyping)
	require.True(t, ev.Typing)

	// No further keystrokes: the sender-side debounce broadcasts a stop
	ev = waitEvent(t, bobEvents, EventTyping)
	require.False(t, ev.Typing)
}

func TestSessionTypingExpiryClearsStaleIndicator(t *testing.T) {
	mem, conv := newTestStore(t)
	bobSess, bobEvents := openSession(t, mem, conv.Id, bob)

	// A start signal whose sender dies before broadcasting a stop
	payload, err := json.Marshal(entity.TypingSignal{UserId: alice.Id, Typing: true})
	require.NoError(t, err)
	require.NoError(t, mem.Broadcast(context.Background(), store.TypingChannel(conv.Id), payload))

	ev := waitEvent(t, bobEvents, EventTyping)
	require.True(t, ev.Typing)
	require.True(t, bobSess.OtherTyping())

	ev = waitEvent(t, bobEvents, EventTyping)
	require.False(t, ev.Typing)
	require.False(t, bobSess.OtherTyping())
}

func TestSessionIgnoresOwnTypingSignal(t *testing.T) {
	mem, conv := newTestStore(t)
	aliceSess, aliceEvents := openSession(t, mem, conv.Id, alice)

	aliceSess.NotifyTyping(context.Background())

	select {
	case ev := <-aliceEvents:
		t.Fatalf("unexpected event %s from own typing signal", ev.Type)
	case <-time.After(150 * time.Millisecond):
	}
	require.False(t, aliceSess.OtherTyping())
}

func TestSessionCloseStopsDelivery(t *testing.T) {
	mem, conv := newTestStore(t)
	s, events := openSession(t, mem, conv.Id, alice)

	s.Close()
	s.Close()

	_, err := s.Send(context.Background(), "too late", "")
	require.ErrorIs(t, err, errcode.ErrConnClosed)

	_, err = mem.InsertMessage(context.Background(), &entity.Message{
		ConversationId: conv.Id,
		SenderId:       bob.Id,
		Content:        "anyone?",
		MsgType:        entity.MsgTypeText,
	})
	require.NoError(t, err)

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %s after close", ev.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSessionOrderSurvivesSlowPersist(t *testing.T) {
	mem, conv := newTestStore(t)
	release := make(chan struct{})
	mem.InsertHook = func(msg *entity.Message) error {
		if strings.HasPrefix(msg.Content, "slow") {
			<-release
		}
		return nil
	}

	s, events := openSession(t, mem, conv.Id, alice)

	_, err := s.Send(context.Background(), "slow first", "")
	require.NoError(t, err)
	_, err = s.Send(context.Background(), "fast second", "")
	require.NoError(t, err)

	waitEvent(t, events, EventMessageUpdated)
	close(release)
	waitEvent(t, events, EventMessageUpdated)
	waitCond(t, func() bool { return !s.Sending() }, "sends still in flight")

	// Send order is presentation order even when persistence completes
	// out of order
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "slow first", msgs[0].Content)
	require.Equal(t, "fast second", msgs[1].Content)
}
