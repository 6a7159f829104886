package gateway

import "encoding/json"

// Request identifiers
const (
	WSSendMsg  = 1003 // Send a message in the open conversation
	WSRetryMsg = 1004 // Retry a failed send
	WSTyping   = 1005 // Typing keystroke signal
	WSMarkRead = 1006 // Mark the open conversation read
)

// Push identifiers
const (
	WSPushMsgAppended = 2001 // A message entered the list
	WSPushMsgUpdated  = 2002 // An existing message changed state
	WSPushTyping      = 2003 // The other party's typing state changed
	WSKickOnlineMsg   = 2004 // Server is closing the connection
	WSDataError       = 3001 // Recoverable error worth surfacing
)

// WSRequest represents a WebSocket request message
type WSRequest struct {
	ReqIdentifier int32  `json:"req_identifier"` // Request type
	MsgIncr       string `json:"msg_incr"`       // Client message counter/trace Id
	OperationId   string `json:"operation_id"`   // Operation Id
	Data          []byte `json:"data"`           // Business data
}

// WSResponse represents a WebSocket response or push message
type WSResponse struct {
	ReqIdentifier int32  `json:"req_identifier"` // Request type (echo back)
	MsgIncr       string `json:"msg_incr"`       // Message counter (echo back)
	OperationId   string `json:"operation_id"`   // Operation Id (echo back)
	ErrCode       int    `json:"err_code"`       // Error code, 0 = success
	ErrMsg        string `json:"err_msg"`        // Error message
	Data          []byte `json:"data"`           // Response data
}

// SendMsgReq represents send message request data
type SendMsgReq struct {
	Content string `json:"content"`
	MsgType string `json:"msg_type,omitempty"`
}

// SendMsgResp represents send message response data. The temp id is the
// handle the client holds until the appended entry reconciles.
type SendMsgResp struct {
	TempId string `json:"temp_id"`
}

// RetryMsgReq represents retry request data
type RetryMsgReq struct {
	MessageId string `json:"message_id"`
}

// RetryMsgResp represents retry response data
type RetryMsgResp struct {
	TempId string `json:"temp_id"`
}

// MessageData represents a message in a push frame
type MessageData struct {
	Id             string `json:"id"`
	ConversationId string `json:"conversation_id"`
	SenderId       string `json:"sender_id"`
	Content        string `json:"content"`
	MsgType        string `json:"msg_type"`
	IsRead         bool   `json:"is_read"`
	IsFromAI       bool   `json:"is_from_ai"`
	Status         string `json:"status"`
	SenderName     string `json:"sender_name,omitempty"`
	SenderAvatar   string `json:"sender_avatar,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

// TypingData represents a typing push frame
type TypingData struct {
	UserId string `json:"user_id"`
	Typing bool   `json:"typing"`
}

// Encode encodes data to JSON bytes
func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to struct
func Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
