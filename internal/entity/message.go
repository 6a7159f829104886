package entity

// Message kinds
const (
	MsgTypeText   = "text"
	MsgTypeImage  = "image"
	MsgTypeFile   = "file"
	MsgTypeSystem = "system"
)

// MessageStatus is the client-side delivery state of a message. It is never
// persisted; a message read back from the store is always StatusSent.
type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

// DefaultMaxContentLen is the default upper bound for message content
const DefaultMaxContentLen = 1000

// Message represents a chat message
type Message struct {
	Id             string  `json:"id" gorm:"column:id;primaryKey"`
	ConversationId string  `json:"conversation_id" gorm:"column:conversation_id;index"`
	SenderId       string  `json:"sender_id,omitempty" gorm:"column:sender_id"`
	Content        string  `json:"content" gorm:"column:content"`
	MsgType        string  `json:"message_type" gorm:"column:message_type"`
	IsRead         bool    `json:"is_read" gorm:"column:is_read"`
	IsFromAI       bool    `json:"is_from_ai" gorm:"column:is_from_ai"`
	Metadata       *string `json:"metadata,omitempty" gorm:"column:metadata;type:json"`
	CreatedAt      int64   `json:"created_at" gorm:"column:created_at"`

	// Client-only state, never persisted
	Status MessageStatus `json:"status,omitempty" gorm:"-"`
	Sender *Profile      `json:"sender,omitempty" gorm:"-"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "chat_messages"
}

// IsSystem reports whether the message has no human sender
func (m *Message) IsSystem() bool {
	return m.SenderId == ""
}

// Clone returns a shallow copy of the message. The session hands out clones
// so callers cannot mutate its internal list.
func (m *Message) Clone() *Message {
	cp := *m
	return &cp
}

// SenderName returns the display name for export/preview rendering
func (m *Message) SenderName() string {
	if m.IsSystem() {
		return "System"
	}
	if m.Sender != nil && m.Sender.FullName != "" {
		return m.Sender.FullName
	}
	return "Unknown"
}
