package entity

// TypingSignal is an ephemeral presence broadcast scoped to a conversation
// channel. It is never persisted; expiry is purely timer-based on both ends.
type TypingSignal struct {
	UserId string `json:"user_id"`
	Typing bool   `json:"typing"`
}
