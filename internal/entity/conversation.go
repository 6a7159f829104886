package entity

// Conversation kinds
const (
	ConvKindUser    = "user"
	ConvKindAI      = "ai"
	ConvKindSupport = "support"
)

// Conversation represents a conversation thread between two participants
// (or a participant and a system/AI counterpart)
type Conversation struct {
	Id            string `json:"id" gorm:"column:id;primaryKey"`
	Participant1  string `json:"participant_1" gorm:"column:participant_1"`
	Participant2  string `json:"participant_2,omitempty" gorm:"column:participant_2"`
	PropertyId    string `json:"property_id,omitempty" gorm:"column:property_id"`
	Kind          string `json:"conversation_type" gorm:"column:conversation_type"`
	PairKey       string `json:"-" gorm:"column:pair_key;uniqueIndex:uk_conversations_pair"`
	LastMessageAt int64  `json:"last_message_at" gorm:"column:last_message_at"`
	IsFlagged     bool   `json:"is_flagged" gorm:"column:is_flagged"`
	FlagReason    string `json:"flag_reason,omitempty" gorm:"column:flag_reason"`
	FlaggedAt     int64  `json:"flagged_at,omitempty" gorm:"column:flagged_at"`
	FlaggedBy     string `json:"flagged_by,omitempty" gorm:"column:flagged_by"`
	CreatedAt     int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt     int64  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for Conversation
func (Conversation) TableName() string {
	return "conversations"
}

// HasParticipant reports whether userId is one of the two participants
func (c *Conversation) HasParticipant(userId string) bool {
	return c.Participant1 == userId || c.Participant2 == userId
}

// OtherParticipant returns the participant that is not userId.
// Empty for system/AI conversations without a second participant.
func (c *Conversation) OtherParticipant(userId string) string {
	switch userId {
	case c.Participant1:
		return c.Participant2
	case c.Participant2:
		return c.Participant1
	}
	return ""
}

// ConversationDetail is a conversation augmented with display info for
// list rendering
type ConversationDetail struct {
	Conversation
	OtherUser    *Profile `json:"other_user,omitempty"`
	LastMessage  string   `json:"last_message,omitempty"`
	UnreadCount  int64    `json:"unread_count"`
	MessageCount int64    `json:"message_count,omitempty"`
}

// ConversationFlag carries a moderation flag update. A nil Reason together
// with Flagged=false clears the flag fields.
type ConversationFlag struct {
	Flagged   bool   `json:"flagged"`
	Reason    string `json:"reason,omitempty"`
	FlaggedBy string `json:"flagged_by,omitempty"`
	FlaggedAt int64  `json:"flagged_at,omitempty"`
}

// ChatStats holds system-wide counters for the moderation dashboard
type ChatStats struct {
	TotalConversations int64 `json:"total_conversations"`
	ActiveToday        int64 `json:"active_today"`
	Flagged            int64 `json:"flagged"`
	TotalMessages      int64 `json:"total_messages"`
	UnreadMessages     int64 `json:"unread_messages"`
}
