package repository

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"
	"github.com/trangnv/homechat/internal/entity"
	"github.com/trangnv/homechat/internal/store"
)

// RedisFeed implements store.Feed on Redis pub/sub. Insert events are
// published by the store after a successful write; typing signals ride
// plain broadcast channels and never touch storage.
type RedisFeed struct {
	rdb       *redis.Client
	keyPrefix string
}

// NewRedisFeed creates a new RedisFeed
func NewRedisFeed(rdb *redis.Client, keyPrefix string) *RedisFeed {
	return &RedisFeed{rdb: rdb, keyPrefix: keyPrefix}
}

// PublishInsert fans a persisted message out to conversation subscribers
func (f *RedisFeed) PublishInsert(ctx context.Context, msg *entity.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, f.keyPrefix+store.ChatChannel(msg.ConversationId), payload).Err()
}

// SubscribeInserts subscribes to the insert feed of a conversation
func (f *RedisFeed) SubscribeInserts(ctx context.Context, conversationId string, fn func(*entity.Message)) (store.Unsubscribe, error) {
	return f.subscribe(ctx, store.ChatChannel(conversationId), func(payload []byte) {
		var msg entity.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.CtxWarn(ctx, "drop malformed insert event on conv %s: %v", conversationId, err)
			return
		}
		fn(&msg)
	})
}

// Broadcast publishes an ephemeral payload to a channel
func (f *RedisFeed) Broadcast(ctx context.Context, channel string, payload []byte) error {
	return f.rdb.Publish(ctx, f.keyPrefix+channel, payload).Err()
}

// SubscribeBroadcast subscribes to an ephemeral channel
func (f *RedisFeed) SubscribeBroadcast(ctx context.Context, channel string, fn func(payload []byte)) (store.Unsubscribe, error) {
	return f.subscribe(ctx, channel, fn)
}

func (f *RedisFeed) subscribe(ctx context.Context, channel string, fn func(payload []byte)) (store.Unsubscribe, error) {
	ps := f.rdb.Subscribe(ctx, f.keyPrefix+channel)

	// Wait for the subscription to be confirmed so callers never miss
	// events published right after this returns
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	go func() {
		for m := range ps.Channel() {
			fn([]byte(m.Payload))
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := ps.Close(); err != nil {
				log.CtxWarn(ctx, "close subscription %s: %v", channel, err)
			}
		})
	}, nil
}
