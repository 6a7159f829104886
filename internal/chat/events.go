package chat

import "github.com/trangnv/homechat/internal/entity"

// EventType identifies a session state change
type EventType string

const (
	// EventMessageAppended fires when a message enters the local list:
	// an optimistic send or a live remote insert
	EventMessageAppended EventType = "message_appended"
	// EventMessageUpdated fires when an existing entry changes state:
	// sending->sent reconciliation or sending->failed
	EventMessageUpdated EventType = "message_updated"
	// EventTyping fires when the remote party's typing state changes
	EventTyping EventType = "typing"
	// EventError fires for recoverable failures worth surfacing to the user
	EventError EventType = "error"
)

// Event is a session state change. Message is always a copy the receiver
// may keep.
type Event struct {
	Type    EventType       `json:"type"`
	Message *entity.Message `json:"message,omitempty"`
	Typing  bool            `json:"typing,omitempty"`
	Err     error           `json:"-"`
}

// EventSink receives session events. The presentation layer renders them but
// never mutates session state directly.
type EventSink interface {
	Publish(ev Event)
}

// SinkFunc adapts a function to an EventSink
type SinkFunc func(ev Event)

// Publish calls f(ev)
func (f SinkFunc) Publish(ev Event) {
	f(ev)
}
