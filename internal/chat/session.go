// Package chat implements the realtime conversational messaging core: the
// optimistic send pipeline, live update subscription, typing signals,
// read receipts, and failed-send retry for one open conversation.
package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/trangnv/homechat/internal/entity"
	"github.com/trangnv/homechat/internal/store"
	"github.com/trangnv/homechat/pkg/errcode"
	"github.com/trangnv/homechat/pkg/idgen"
)

// Options configures a Session
type Options struct {
	Store          store.Store
	Feed           store.Feed
	Self           *entity.Profile
	ConversationId string
	Sink           EventSink

	// Zero values fall back to entity.DefaultMaxContentLen, 3s and 4s
	MaxContentLen   int
	TypingStopDelay time.Duration
	TypingExpiry    time.Duration
}

// Session is the live view of one open conversation for one client. It owns
// the in-memory ordered message list; the pipeline and the live subscriber
// are its only mutators. The owner must call Close when the conversation
// view goes away, releasing both feed subscriptions.
type Session struct {
	st     store.Store
	feed   store.Feed
	sink   EventSink
	self   *entity.Profile
	convId string

	maxContentLen   int
	typingStopDelay time.Duration
	typingExpiry    time.Duration

	mu          sync.Mutex
	messages    []*entity.Message
	pending     map[string]*entity.Message // temp id -> optimistic entry
	sending     int
	otherTyping bool
	closed      bool

	unsubInserts store.Unsubscribe
	unsubTyping  store.Unsubscribe

	typingTimer *time.Timer // sender-side debounce auto-stop
	expireTimer *time.Timer // receiver-side stale indicator safety net
}

// NewSession creates a session for one conversation. Call Open before use.
func NewSession(opts Options) *Session {
	s := &Session{
		st:              opts.Store,
		feed:            opts.Feed,
		sink:            opts.Sink,
		self:            opts.Self,
		convId:          opts.ConversationId,
		maxContentLen:   opts.MaxContentLen,
		typingStopDelay: opts.TypingStopDelay,
		typingExpiry:    opts.TypingExpiry,
		pending:         make(map[string]*entity.Message),
	}
	if s.maxContentLen == 0 {
		s.maxContentLen = entity.DefaultMaxContentLen
	}
	if s.typingStopDelay == 0 {
		s.typingStopDelay = 3 * time.Second
	}
	if s.typingExpiry == 0 {
		s.typingExpiry = 4 * time.Second
	}
	if s.sink == nil {
		s.sink = SinkFunc(func(Event) {})
	}
	return s
}

// Open loads the conversation history, marks it read, and starts the live
// insert and typing subscriptions. A failed subscribe leaves the session
// closed; the caller may open a fresh session later.
func (s *Session) Open(ctx context.Context) error {
	if err := s.loadMessages(ctx); err != nil {
		return err
	}

	// Opening the view consumes everything the other side sent
	if err := s.st.MarkConversationRead(ctx, s.convId, s.self.Id); err != nil {
		log.CtxWarn(ctx, "mark conversation read failed: conversation_id=%s, error=%v", s.convId, err)
	}
	s.mu.Lock()
	for _, msg := range s.messages {
		if msg.SenderId != s.self.Id {
			msg.IsRead = true
		}
	}
	s.mu.Unlock()

	unsubInserts, err := s.feed.SubscribeInserts(ctx, s.convId, s.onInsert)
	if err != nil {
		return errcode.ErrSubscribeFailed.Wrap(err)
	}
	unsubTyping, err := s.feed.SubscribeBroadcast(ctx, store.TypingChannel(s.convId), s.onTypingSignal)
	if err != nil {
		unsubInserts()
		return errcode.ErrSubscribeFailed.Wrap(err)
	}

	s.mu.Lock()
	s.unsubInserts = unsubInserts
	s.unsubTyping = unsubTyping
	s.mu.Unlock()
	return nil
}

func (s *Session) loadMessages(ctx context.Context) error {
	msgs, err := s.st.ListMessages(ctx, s.convId)
	if err != nil {
		return errcode.ErrLoadFailed.Wrap(err)
	}

	senderIds := make([]string, 0, len(msgs))
	seen := make(map[string]bool)
	for _, msg := range msgs {
		if msg.SenderId != "" && !seen[msg.SenderId] {
			seen[msg.SenderId] = true
			senderIds = append(senderIds, msg.SenderId)
		}
	}
	profiles, err := s.st.GetProfiles(ctx, senderIds)
	if err != nil {
		log.CtxWarn(ctx, "load sender profiles failed: conversation_id=%s, error=%v", s.convId, err)
		profiles = nil
	}

	for _, msg := range msgs {
		msg.Status = entity.StatusSent
		if msg.SenderId != "" {
			msg.Sender = profiles[msg.SenderId]
		}
	}

	s.mu.Lock()
	s.messages = msgs
	s.mu.Unlock()
	return nil
}

// Send validates content, appends an optimistic entry synchronously, and
// persists it in the background. Returns the temp id of the optimistic
// entry; the sink reports the sending->sent or sending->failed transition.
func (s *Session) Send(ctx context.Context, content, msgType string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errcode.ErrEmptyContent
	}
	if len([]rune(content)) > s.maxContentLen {
		// Rejecting beats silent truncation: the sender keeps their text
		return "", errcode.ErrContentTooLong
	}
	if msgType == "" {
		msgType = entity.MsgTypeText
	}

	tempId := idgen.TempID()
	optimistic := &entity.Message{
		Id:             tempId,
		ConversationId: s.convId,
		SenderId:       s.self.Id,
		Content:        content,
		MsgType:        msgType,
		CreatedAt:      entity.NowUnixMilli(),
		Status:         entity.StatusSending,
		Sender:         s.self,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", errcode.ErrConnClosed
	}
	s.messages = append(s.messages, optimistic)
	s.pending[tempId] = optimistic
	s.sending++
	s.mu.Unlock()

	s.sink.Publish(Event{Type: EventMessageAppended, Message: optimistic.Clone()})

	// The view may close before persistence finishes; the send still runs
	// to completion in the background.
	go s.persist(context.WithoutCancel(ctx), tempId, content, msgType)

	return tempId, nil
}

func (s *Session) persist(ctx context.Context, tempId, content, msgType string) {
	stored, err := s.st.InsertMessage(ctx, &entity.Message{
		ConversationId: s.convId,
		SenderId:       s.self.Id,
		Content:        content,
		MsgType:        msgType,
	})
	if err != nil {
		log.CtxWarn(ctx, "message send failed: conversation_id=%s, temp_id=%s, error=%v", s.convId, tempId, err)
		s.failPending(tempId, err)
		return
	}

	// Activity timestamp moves only after a successful persist so failed
	// sends never reorder the conversation list
	if err := s.st.TouchConversation(ctx, s.convId, stored.CreatedAt); err != nil {
		log.CtxWarn(ctx, "touch conversation failed: conversation_id=%s, error=%v", s.convId, err)
	}

	s.mu.Lock()
	entry, ok := s.pending[tempId]
	if ok {
		// Reconcile in place: the entry keeps its slot in the ordered list
		entry.Id = stored.Id
		entry.CreatedAt = stored.CreatedAt
		entry.IsRead = stored.IsRead
		entry.Metadata = stored.Metadata
		entry.Status = entity.StatusSent
		delete(s.pending, tempId)
	}
	s.sending--
	var ev *Event
	if ok {
		ev = &Event{Type: EventMessageUpdated, Message: entry.Clone()}
	}
	s.mu.Unlock()

	if ev != nil {
		s.sink.Publish(*ev)
	}
}

func (s *Session) failPending(tempId string, cause error) {
	s.mu.Lock()
	entry, ok := s.pending[tempId]
	if ok {
		// The entry stays in the list with its content intact so the user
		// can inspect and retry
		entry.Status = entity.StatusFailed
	}
	s.sending--
	s.mu.Unlock()

	if ok {
		s.sink.Publish(Event{Type: EventMessageUpdated, Message: entry.Clone()})
	}
	s.sink.Publish(Event{Type: EventError, Err: errcode.ErrSendFailed.Wrap(cause)})
}

// Retry re-submits a failed message with its original content. Only entries
// that never persisted are retriable; a sent message is never re-sent.
func (s *Session) Retry(ctx context.Context, messageId string) (string, error) {
	s.mu.Lock()
	var failed *entity.Message
	idx := -1
	for i, msg := range s.messages {
		if msg.Id == messageId && msg.Status == entity.StatusFailed {
			failed = msg
			idx = i
			break
		}
	}
	if failed == nil {
		s.mu.Unlock()
		return "", errcode.ErrNotRetriable
	}
	s.messages = append(s.messages[:idx], s.messages[idx+1:]...)
	delete(s.pending, messageId)
	s.mu.Unlock()

	// Restart the state machine from composing with the original content
	return s.Send(ctx, failed.Content, failed.MsgType)
}

// onInsert handles a live insert from the change feed
func (s *Session) onInsert(msg *entity.Message) {
	// Own messages are already rendered optimistically; appending the feed
	// copy would double-render them
	if msg.SenderId == s.self.Id {
		return
	}

	ctx := context.Background()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	for _, existing := range s.messages {
		if existing.Id == msg.Id {
			s.mu.Unlock()
			return
		}
	}
	s.mu.Unlock()

	if msg.SenderId != "" {
		sender, err := s.st.GetProfile(ctx, msg.SenderId)
		if err != nil {
			log.CtxDebug(ctx, "load sender profile failed: sender_id=%s, error=%v", msg.SenderId, err)
		} else {
			msg.Sender = sender
		}
	}

	// The open view consumes the message immediately
	if err := s.st.MarkMessageRead(ctx, msg.Id); err != nil {
		log.CtxWarn(ctx, "mark message read failed: message_id=%s, error=%v", msg.Id, err)
	}
	msg.IsRead = true
	msg.Status = entity.StatusSent

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.sink.Publish(Event{Type: EventMessageAppended, Message: msg.Clone()})
}

// Messages returns a snapshot of the ordered message list
func (s *Session) Messages() []*entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.Message, 0, len(s.messages))
	for _, msg := range s.messages {
		out = append(out, msg.Clone())
	}
	return out
}

// Sending reports whether any send is still in flight
func (s *Session) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending > 0
}

// OtherTyping reports the remote party's current typing state
func (s *Session) OtherTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.otherTyping
}

// ConversationId returns the conversation this session is bound to
func (s *Session) ConversationId() string {
	return s.convId
}

// Close releases both feed subscriptions and stops all timers. In-flight
// sends finish in the background against the store.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubInserts := s.unsubInserts
	unsubTyping := s.unsubTyping
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	if s.expireTimer != nil {
		s.expireTimer.Stop()
	}
	s.mu.Unlock()

	if unsubInserts != nil {
		unsubInserts()
	}
	if unsubTyping != nil {
		unsubTyping()
	}
}
