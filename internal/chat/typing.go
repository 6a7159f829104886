package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/trangnv/homechat/internal/entity"
	"github.com/trangnv/homechat/internal/store"
)

// NotifyTyping broadcasts a typing=true signal and (re)arms the debounce
// timer that broadcasts typing=false after TypingStopDelay of inactivity.
// Repeated calls while composing reset the timer instead of emitting
// stop/start pairs. Broadcast failures are logged and dropped: a lost typing
// signal self-heals through the receiver's expiry window.
func (s *Session) NotifyTyping(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingTimer = time.AfterFunc(s.typingStopDelay, func() {
		s.broadcastTyping(context.Background(), false)
	})
	s.mu.Unlock()

	s.broadcastTyping(ctx, true)
}

func (s *Session) broadcastTyping(ctx context.Context, typing bool) {
	payload, err := json.Marshal(entity.TypingSignal{UserId: s.self.Id, Typing: typing})
	if err != nil {
		return
	}
	if err := s.feed.Broadcast(ctx, store.TypingChannel(s.convId), payload); err != nil {
		log.CtxDebug(ctx, "typing broadcast failed: conversation_id=%s, error=%v", s.convId, err)
	}
}

// onTypingSignal handles a typing broadcast from the conversation channel
func (s *Session) onTypingSignal(payload []byte) {
	var sig entity.TypingSignal
	if err := json.Unmarshal(payload, &sig); err != nil {
		log.Debug("drop malformed typing signal: %v", err)
		return
	}
	if sig.UserId == s.self.Id {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	changed := s.otherTyping != sig.Typing
	s.otherTyping = sig.Typing

	if s.expireTimer != nil {
		s.expireTimer.Stop()
		s.expireTimer = nil
	}
	if sig.Typing {
		// Safety net against a dropped stop signal; intentionally longer
		// than the sender's debounce window so it never preempts a
		// well-behaved stop broadcast
		s.expireTimer = time.AfterFunc(s.typingExpiry, s.expireTyping)
	}
	s.mu.Unlock()

	if changed {
		s.sink.Publish(Event{Type: EventTyping, Typing: sig.Typing})
	}
}

func (s *Session) expireTyping() {
	s.mu.Lock()
	if s.closed || !s.otherTyping {
		s.mu.Unlock()
		return
	}
	s.otherTyping = false
	s.expireTimer = nil
	s.mu.Unlock()

	s.sink.Publish(Event{Type: EventTyping, Typing: false})
}
