package gateway

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	hertzws "github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"
	"github.com/trangnv/homechat/internal/chat"
	"github.com/trangnv/homechat/internal/config"
	"github.com/trangnv/homechat/internal/entity"
	"github.com/trangnv/homechat/internal/service"
	"github.com/trangnv/homechat/internal/store"
	"github.com/trangnv/homechat/pkg/jwt"
)

// WsServer hosts the realtime conversation sessions. Each accepted
// connection opens exactly one conversation; the attached session brings
// live inserts and typing signals to the peer.
type WsServer struct {
	upgrader       *websocket.Upgrader
	cfg            *config.Config
	st             store.Store
	feed           store.Feed
	convService    *service.ConversationService
	clientMap      *ClientMap
	registerChan   chan *Client
	unregisterChan chan *Client
	onlineConnNum  atomic.Int64
	maxConnNum     int64
}

// NewWsServer creates a new WebSocket server
func NewWsServer(cfg *config.Config, rdb *redis.Client, st store.Store, feed store.Feed, convService *service.ConversationService) *WsServer {
	upgrader := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	return &WsServer{
		upgrader:       upgrader,
		cfg:            cfg,
		st:             st,
		feed:           feed,
		convService:    convService,
		clientMap:      NewClientMap(rdb, cfg.Redis.KeyPrefix),
		registerChan:   make(chan *Client, 1000),
		unregisterChan: make(chan *Client, 1000),
		maxConnNum:     cfg.WebSocket.MaxConnNum,
	}
}

// Run starts the WebSocket server event loop
func (s *WsServer) Run(ctx context.Context) {
	go s.eventLoop(ctx)
}

// Shutdown closes all live connections
func (s *WsServer) Shutdown() {
	s.clientMap.CloseAll()
}

// eventLoop handles client registration and unregistration
func (s *WsServer) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-s.registerChan:
			s.registerClient(ctx, client)
		case client := <-s.unregisterChan:
			s.unregisterClient(ctx, client)
		}
	}
}

// registerClient registers a client
func (s *WsServer) registerClient(ctx context.Context, client *Client) {
	s.clientMap.Register(ctx, client)
	s.onlineConnNum.Add(1)

	log.CtxInfo(ctx, "client registered: user_id=%s, conn_id=%s, conversation_id=%s, online_conns=%d",
		client.UserId, client.ConnId, client.ConversationId(), s.onlineConnNum.Load())
}

// unregisterClient unregisters a client
func (s *WsServer) unregisterClient(ctx context.Context, client *Client) {
	userOffline := s.clientMap.Unregister(ctx, client)
	s.onlineConnNum.Add(-1)

	log.CtxInfo(ctx, "client unregistered: user_id=%s, conn_id=%s, user_offline=%v, online_conns=%d",
		client.UserId, client.ConnId, userOffline, s.onlineConnNum.Load())
}

// UnregisterClient queues client for unregistration
func (s *WsServer) UnregisterClient(client *Client) {
	select {
	case s.unregisterChan <- client:
	default:
		log.Warn("unregister channel full: user_id=%s", client.UserId)
	}
}

// GetOnlineConnCount returns online connection count
func (s *WsServer) GetOnlineConnCount() int64 {
	return s.onlineConnNum.Load()
}

// authorize validates the token and the caller's conversation membership,
// returning the caller's profile
func (s *WsServer) authorize(ctx context.Context, token, sendId, conversationId string) (*entity.Profile, error) {
	claims, err := jwt.ValidateToken(token, s.cfg.JWT.Secret, sendId)
	if err != nil {
		return nil, err
	}

	if _, err := s.convService.GetForUser(ctx, claims.UserId, conversationId); err != nil {
		return nil, err
	}

	profile, err := s.st.GetProfile(ctx, claims.UserId)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		profile = &entity.Profile{Id: claims.UserId}
	}
	return profile, nil
}

// attachSession opens the conversation session backing a client
func (s *WsServer) attachSession(ctx context.Context, client *Client, self *entity.Profile, conversationId string) error {
	session := chat.NewSession(chat.Options{
		Store:           s.st,
		Feed:            s.feed,
		Self:            self,
		ConversationId:  conversationId,
		Sink:            client,
		MaxContentLen:   s.cfg.Chat.MaxContentLen,
		TypingStopDelay: s.cfg.Chat.TypingStopDelay,
		TypingExpiry:    s.cfg.Chat.TypingExpiry,
	})
	if err := session.Open(ctx); err != nil {
		return err
	}
	client.session = session
	return nil
}

// HandleConnection handles a new WebSocket connection over net/http
func (s *WsServer) HandleConnection(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if s.onlineConnNum.Load() >= s.maxConnNum {
		http.Error(w, "connection limit exceeded", http.StatusServiceUnavailable)
		return
	}

	token := r.URL.Query().Get(QueryToken)
	sendId := r.URL.Query().Get(QuerySendId)
	conversationId := r.URL.Query().Get(QueryConversationId)

	if token == "" || sendId == "" || conversationId == "" {
		http.Error(w, "missing required parameters", http.StatusBadRequest)
		return
	}

	self, err := s.authorize(ctx, token, sendId, conversationId)
	if err != nil {
		log.CtxDebug(ctx, "connection rejected: send_id=%s, error=%v", sendId, err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
		return
	}

	wsConn := NewWebSocketClientConn(conn, s.cfg.WebSocket)
	client := NewClient(wsConn, self.Id, uuid.New().String(), s)

	if err := s.attachSession(ctx, client, self, conversationId); err != nil {
		log.CtxWarn(ctx, "open session failed: user_id=%s, conversation_id=%s, error=%v", self.Id, conversationId, err)
		wsConn.Close()
		return
	}

	s.registerChan <- client
	client.readLoop()
}

// HandleHertzConnection handles a WebSocket connection from Hertz using
// hertz-contrib/websocket
func (s *WsServer) HandleHertzConnection(ctx context.Context, c *app.RequestContext, upgrader *hertzws.HertzUpgrader) {
	if s.onlineConnNum.Load() >= s.maxConnNum {
		c.String(503, "connection limit exceeded")
		return
	}

	token := string(c.Query(QueryToken))
	sendId := string(c.Query(QuerySendId))
	conversationId := string(c.Query(QueryConversationId))

	if token == "" || sendId == "" || conversationId == "" {
		c.String(400, "missing required parameters")
		return
	}

	self, err := s.authorize(ctx, token, sendId, conversationId)
	if err != nil {
		log.CtxDebug(ctx, "connection rejected: send_id=%s, error=%v", sendId, err)
		c.String(401, "unauthorized")
		return
	}

	err = upgrader.Upgrade(c, func(conn *hertzws.Conn) {
		wsConn := NewHertzWebSocketClientConn(conn, s.cfg.WebSocket)
		client := NewClient(wsConn, self.Id, uuid.New().String(), s)

		if err := s.attachSession(context.WithoutCancel(ctx), client, self, conversationId); err != nil {
			log.CtxWarn(ctx, "open session failed: user_id=%s, conversation_id=%s, error=%v", self.Id, conversationId, err)
			wsConn.Close()
			return
		}

		s.registerChan <- client

		// Blocking - handles message loop
		client.readLoop()
	})

	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
		return
	}
}
