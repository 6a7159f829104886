package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/mbeoliero/kit/log"
	"github.com/trangnv/homechat/internal/chat"
	"github.com/trangnv/homechat/internal/entity"
	"github.com/trangnv/homechat/pkg/errcode"
)

// Client represents one WebSocket connection holding one open
// conversation. It renders the session's events into push frames; the
// session owns all messaging state.
type Client struct {
	mu        sync.Mutex
	conn      ClientConn
	UserId    string
	ConnId    string
	server    *WsServer
	session   *chat.Session
	closed    atomic.Bool
	closedErr error
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a new client
func NewClient(conn ClientConn, userId, connId string, server *WsServer) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:   conn,
		UserId: userId,
		ConnId: connId,
		server: server,
		ctx:    ctx,
		cancel: cancel,
	}
}

// ConversationId returns the id of the open conversation
func (c *Client) ConversationId() string {
	if c.session == nil {
		return ""
	}
	return c.session.ConversationId()
}

// readLoop continuously reads messages from the connection
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			c.closedErr = ErrPanic
			log.CtxError(c.ctx, "client read loop panic: user_id=%s, error=%v", c.UserId, r)
		}
		c.close()
	}()

	for {
		message, err := c.conn.ReadMessage()
		if err != nil {
			log.CtxDebug(c.ctx, "read message error: user_id=%s, error=%v", c.UserId, err)
			c.closedErr = err
			return
		}

		if c.closed.Load() {
			c.closedErr = ErrConnClosed
			return
		}

		if err := c.handleMessage(message); err != nil {
			log.CtxWarn(c.ctx, "handle message error: user_id=%s, error=%v", c.UserId, err)
			c.closedErr = err
			return
		}
	}
}

// handleMessage handles a single incoming message
func (c *Client) handleMessage(message []byte) error {
	var req WSRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return c.replyError(&req, ErrInvalidProtocol)
	}

	log.CtxDebug(c.ctx, "received message: req_identifier=%d, user_id=%s", req.ReqIdentifier, c.UserId)

	var resp []byte
	var err error

	switch req.ReqIdentifier {
	case WSSendMsg:
		resp, err = c.handleSend(&req)
	case WSRetryMsg:
		resp, err = c.handleRetry(&req)
	case WSTyping:
		c.session.NotifyTyping(c.ctx)
	case WSMarkRead:
		err = c.server.st.MarkConversationRead(c.ctx, c.session.ConversationId(), c.UserId)
	default:
		return c.replyError(&req, ErrInvalidProtocol)
	}

	return c.reply(&req, err, resp)
}

func (c *Client) handleSend(req *WSRequest) ([]byte, error) {
	var sendReq SendMsgReq
	if err := json.Unmarshal(req.Data, &sendReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}

	tempId, err := c.session.Send(c.ctx, sendReq.Content, sendReq.MsgType)
	if err != nil {
		return nil, err
	}
	return json.Marshal(SendMsgResp{TempId: tempId})
}

func (c *Client) handleRetry(req *WSRequest) ([]byte, error) {
	var retryReq RetryMsgReq
	if err := json.Unmarshal(req.Data, &retryReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}

	tempId, err := c.session.Retry(c.ctx, retryReq.MessageId)
	if err != nil {
		return nil, err
	}
	return json.Marshal(RetryMsgResp{TempId: tempId})
}

// Publish implements chat.EventSink: session events become push frames
func (c *Client) Publish(ev chat.Event) {
	switch ev.Type {
	case chat.EventMessageAppended:
		c.pushMessage(WSPushMsgAppended, ev.Message)
	case chat.EventMessageUpdated:
		c.pushMessage(WSPushMsgUpdated, ev.Message)
	case chat.EventTyping:
		data, err := json.Marshal(TypingData{Typing: ev.Typing})
		if err != nil {
			return
		}
		c.writeResponse(WSResponse{ReqIdentifier: WSPushTyping, Data: data})
	case chat.EventError:
		resp := WSResponse{ReqIdentifier: WSDataError, ErrCode: 1}
		var e *errcode.Error
		if errors.As(ev.Err, &e) {
			resp.ErrCode = e.Code
			resp.ErrMsg = e.Msg
		} else if ev.Err != nil {
			resp.ErrMsg = ev.Err.Error()
		}
		c.writeResponse(resp)
	}
}

func (c *Client) pushMessage(identifier int32, msg *entity.Message) {
	if msg == nil {
		return
	}
	data, err := json.Marshal(messageToData(msg))
	if err != nil {
		return
	}
	if err := c.writeResponse(WSResponse{ReqIdentifier: identifier, Data: data}); err != nil {
		log.CtxDebug(c.ctx, "push to client failed: user_id=%s, conn_id=%s, error=%v", c.UserId, c.ConnId, err)
	}
}

// reply sends a response to the client
func (c *Client) reply(req *WSRequest, err error, data []byte) error {
	resp := WSResponse{
		ReqIdentifier: req.ReqIdentifier,
		MsgIncr:       req.MsgIncr,
		OperationId:   req.OperationId,
		Data:          data,
	}

	if err != nil {
		var e *errcode.Error
		if errors.As(err, &e) {
			resp.ErrCode = e.Code
			resp.ErrMsg = e.Msg
		} else {
			resp.ErrCode = 1
			resp.ErrMsg = err.Error()
		}
	}

	return c.writeResponse(resp)
}

// replyError sends an error response
func (c *Client) replyError(req *WSRequest, err error) error {
	return c.reply(req, err, nil)
}

// writeResponse writes a response to the connection
func (c *Client) writeResponse(resp WSResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrConnClosed
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	return c.conn.WriteMessage(data)
}

// KickOnline sends kick message and closes connection
func (c *Client) KickOnline() error {
	c.writeResponse(WSResponse{ReqIdentifier: WSKickOnlineMsg})
	return c.Close()
}

// Close closes the client connection
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	if c.session != nil {
		c.session.Close()
	}
	c.cancel()
	return c.conn.Close()
}

// close handles cleanup when connection is closed
func (c *Client) close() {
	c.Close()
	c.server.UnregisterClient(c)
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

// messageToData converts entity.Message to MessageData
func messageToData(msg *entity.Message) *MessageData {
	data := &MessageData{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		SenderId:       msg.SenderId,
		Content:        msg.Content,
		MsgType:        msg.MsgType,
		IsRead:         msg.IsRead,
		IsFromAI:       msg.IsFromAI,
		Status:         string(msg.Status),
		CreatedAt:      msg.CreatedAt,
	}
	if msg.Sender != nil {
		data.SenderName = msg.Sender.FullName
		data.SenderAvatar = msg.Sender.AvatarUrl
	}
	return data
}
