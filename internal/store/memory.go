package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/trangnv/homechat/internal/entity"
	"github.com/trangnv/homechat/pkg/idgen"
)

var (
	_ Store = (*Memory)(nil)
	_ Feed  = (*Memory)(nil)
)

// Memory is an in-memory Store and Feed. It backs unit tests and local
// development without a MySQL/Redis pair; the production implementation is
// internal/repository.SQLStore.
type Memory struct {
	mu       sync.RWMutex
	gen      idgen.IDGenerator
	convs    map[string]*entity.Conversation
	msgs     map[string]*memMessage
	profiles map[string]*entity.Profile

	nextSubId  int64
	nextMsgSeq int64
	insertSubs map[string]map[int64]func(*entity.Message)
	bcastSubs  map[string]map[int64]func([]byte)

	// InsertHook, when set, runs before a message insert is accepted. Tests
	// use it to inject latency or a store rejection.
	InsertHook func(msg *entity.Message) error
}

type memMessage struct {
	msg *entity.Message
	seq int64 // insertion order tiebreaker for equal timestamps
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	gen, err := idgen.NewSonyflakeGenerator(1)
	m := &Memory{
		convs:      make(map[string]*entity.Conversation),
		msgs:       make(map[string]*memMessage),
		profiles:   make(map[string]*entity.Profile),
		insertSubs: make(map[string]map[int64]func(*entity.Message)),
		bcastSubs:  make(map[string]map[int64]func([]byte)),
	}
	if err != nil {
		m.gen = idgen.NewUUIDGenerator()
	} else {
		m.gen = gen
	}
	return m
}

// PutProfile seeds a user profile
func (m *Memory) PutProfile(p *entity.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.Id] = &cp
}

// FindConversation finds an existing user-kind conversation for the
// unordered pair, optionally scoped by property
func (m *Memory) FindConversation(ctx context.Context, userA, userB, propertyId string) (*entity.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := entity.PairKey(userA, userB, propertyId)
	for _, conv := range m.convs {
		if conv.Kind != entity.ConvKindUser {
			continue
		}
		if propertyId == "" {
			// Unscoped lookup matches the pair regardless of property
			pair, _, _ := strings.Cut(conv.PairKey, "#")
			if pair == key {
				cp := *conv
				return &cp, nil
			}
		} else if conv.PairKey == key {
			cp := *conv
			return &cp, nil
		}
	}
	return nil, nil
}

// CreateConversation inserts a new conversation row
func (m *Memory) CreateConversation(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *conv
	if cp.Kind == entity.ConvKindUser {
		cp.PairKey = entity.PairKey(cp.Participant1, cp.Participant2, cp.PropertyId)
		for _, existing := range m.convs {
			if existing.Kind == entity.ConvKindUser && existing.PairKey == cp.PairKey {
				return nil, ErrDuplicatePair
			}
		}
	}

	if cp.Id == "" {
		id, err := m.gen.NextID()
		if err != nil {
			return nil, err
		}
		cp.Id = id
	}
	now := entity.NowUnixMilli()
	if cp.CreatedAt == 0 {
		cp.CreatedAt = now
	}
	if cp.LastMessageAt == 0 {
		cp.LastMessageAt = now
	}
	cp.UpdatedAt = now

	m.convs[cp.Id] = &cp
	out := cp
	return &out, nil
}

// GetConversation gets a conversation by id
func (m *Memory) GetConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.convs[id]
	if !ok {
		return nil, nil
	}
	cp := *conv
	return &cp, nil
}

// ListConversations lists a user's conversations, most recent activity first
func (m *Memory) ListConversations(ctx context.Context, userId string) ([]*entity.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*entity.Conversation
	for _, conv := range m.convs {
		if conv.HasParticipant(userId) {
			cp := *conv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt > out[j].LastMessageAt
	})
	return out, nil
}

// ListAllConversations lists every conversation matching the filter,
// most recent activity first (elevated scope)
func (m *Memory) ListAllConversations(ctx context.Context, filter ConversationFilter) ([]*entity.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*entity.Conversation
	for _, conv := range m.convs {
		if filter.FlaggedOnly && !conv.IsFlagged {
			continue
		}
		if filter.CreatedFrom != 0 && conv.CreatedAt < filter.CreatedFrom {
			continue
		}
		if filter.CreatedTo != 0 && conv.CreatedAt > filter.CreatedTo {
			continue
		}
		cp := *conv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt > out[j].LastMessageAt
	})
	return out, nil
}

// TouchConversation updates last_message_at
func (m *Memory) TouchConversation(ctx context.Context, id string, lastMessageAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[id]
	if !ok {
		return nil
	}
	conv.LastMessageAt = lastMessageAt
	conv.UpdatedAt = entity.NowUnixMilli()
	return nil
}

// SetConversationFlag applies or clears a moderation flag
func (m *Memory) SetConversationFlag(ctx context.Context, id string, flag entity.ConversationFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[id]
	if !ok {
		return nil
	}
	conv.IsFlagged = flag.Flagged
	if flag.Flagged {
		conv.FlagReason = flag.Reason
		conv.FlaggedBy = flag.FlaggedBy
		conv.FlaggedAt = flag.FlaggedAt
	} else {
		conv.FlagReason = ""
		conv.FlaggedBy = ""
		conv.FlaggedAt = 0
	}
	conv.UpdatedAt = entity.NowUnixMilli()
	return nil
}

// InsertMessage persists a message, assigns its server id and timestamp, and
// fans it out to the conversation's insert subscribers
func (m *Memory) InsertMessage(ctx context.Context, msg *entity.Message) (*entity.Message, error) {
	if m.InsertHook != nil {
		if err := m.InsertHook(msg); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	id, err := m.gen.NextID()
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	cp := msg.Clone()
	cp.Id = id
	cp.CreatedAt = entity.NowUnixMilli()
	// Transient client state never reaches the store
	cp.Status = ""
	cp.Sender = nil

	m.nextMsgSeq++
	m.msgs[cp.Id] = &memMessage{msg: cp, seq: m.nextMsgSeq}

	subs := make([]func(*entity.Message), 0, 2)
	for _, fn := range m.insertSubs[cp.ConversationId] {
		subs = append(subs, fn)
	}
	out := cp.Clone()
	m.mu.Unlock()

	// Fan out outside the lock; each subscriber gets its own copy
	for _, fn := range subs {
		fn(cp.Clone())
	}

	return out, nil
}

// GetMessage gets a message by id
func (m *Memory) GetMessage(ctx context.Context, id string) (*entity.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mm, ok := m.msgs[id]
	if !ok {
		return nil, nil
	}
	return mm.msg.Clone(), nil
}

// ListMessages lists a conversation's messages in created_at order
func (m *Memory) ListMessages(ctx context.Context, conversationId string) ([]*entity.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []*memMessage
	for _, mm := range m.msgs {
		if mm.msg.ConversationId == conversationId {
			items = append(items, mm)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].msg.CreatedAt != items[j].msg.CreatedAt {
			return items[i].msg.CreatedAt < items[j].msg.CreatedAt
		}
		return items[i].seq < items[j].seq
	})

	out := make([]*entity.Message, 0, len(items))
	for _, mm := range items {
		out = append(out, mm.msg.Clone())
	}
	return out, nil
}

// MarkMessageRead marks a single message read. Read state only ever moves
// false to true.
func (m *Memory) MarkMessageRead(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mm, ok := m.msgs[id]; ok {
		mm.msg.IsRead = true
	}
	return nil
}

// MarkConversationRead marks all messages not authored by excludeSender read
func (m *Memory) MarkConversationRead(ctx context.Context, conversationId, excludeSender string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mm := range m.msgs {
		if mm.msg.ConversationId == conversationId && mm.msg.SenderId != excludeSender {
			mm.msg.IsRead = true
		}
	}
	return nil
}

// UnreadCount counts unread messages not authored by excludeSender
func (m *Memory) UnreadCount(ctx context.Context, conversationId, excludeSender string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for _, mm := range m.msgs {
		if mm.msg.ConversationId == conversationId && mm.msg.SenderId != excludeSender && !mm.msg.IsRead {
			count++
		}
	}
	return count, nil
}

// CountMessages counts all messages in a conversation
func (m *Memory) CountMessages(ctx context.Context, conversationId string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for _, mm := range m.msgs {
		if mm.msg.ConversationId == conversationId {
			count++
		}
	}
	return count, nil
}

// LastMessage returns the most recent message in a conversation
func (m *Memory) LastMessage(ctx context.Context, conversationId string) (*entity.Message, error) {
	msgs, err := m.ListMessages(ctx, conversationId)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return msgs[len(msgs)-1], nil
}

// Stats computes system-wide counters
func (m *Memory) Stats(ctx context.Context) (*entity.ChatStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &entity.ChatStats{}
	dayAgo := entity.NowUnixMilli() - 24*60*60*1000
	for _, conv := range m.convs {
		stats.TotalConversations++
		if conv.LastMessageAt >= dayAgo {
			stats.ActiveToday++
		}
		if conv.IsFlagged {
			stats.Flagged++
		}
	}
	for _, mm := range m.msgs {
		stats.TotalMessages++
		if !mm.msg.IsRead {
			stats.UnreadMessages++
		}
	}
	return stats, nil
}

// GetProfile gets a profile by user id, nil when unknown
func (m *Memory) GetProfile(ctx context.Context, userId string) (*entity.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userId]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// GetProfiles gets profiles for a set of user ids
func (m *Memory) GetProfiles(ctx context.Context, userIds []string) (map[string]*entity.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*entity.Profile, len(userIds))
	for _, id := range userIds {
		if p, ok := m.profiles[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

// SubscribeInserts registers fn for every message persisted into the
// conversation
func (m *Memory) SubscribeInserts(ctx context.Context, conversationId string, fn func(*entity.Message)) (Unsubscribe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSubId++
	subId := m.nextSubId
	if m.insertSubs[conversationId] == nil {
		m.insertSubs[conversationId] = make(map[int64]func(*entity.Message))
	}
	m.insertSubs[conversationId][subId] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.insertSubs[conversationId], subId)
	}, nil
}

// Broadcast fans a payload out to the channel's subscribers. Nothing is
// persisted; a channel with no subscribers drops the payload.
func (m *Memory) Broadcast(ctx context.Context, channel string, payload []byte) error {
	m.mu.RLock()
	subs := make([]func([]byte), 0, len(m.bcastSubs[channel]))
	for _, fn := range m.bcastSubs[channel] {
		subs = append(subs, fn)
	}
	m.mu.RUnlock()

	for _, fn := range subs {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		fn(cp)
	}
	return nil
}

// SubscribeBroadcast registers fn on an ephemeral channel
func (m *Memory) SubscribeBroadcast(ctx context.Context, channel string, fn func([]byte)) (Unsubscribe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSubId++
	subId := m.nextSubId
	if m.bcastSubs[channel] == nil {
		m.bcastSubs[channel] = make(map[int64]func([]byte))
	}
	m.bcastSubs[channel][subId] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.bcastSubs[channel], subId)
	}, nil
}
