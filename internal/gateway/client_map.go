package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const onlineTTL = 60 * time.Second

// ClientMap tracks connected clients per user. Redis mirrors local presence
// so other instances can answer online checks.
type ClientMap struct {
	mu        sync.RWMutex
	users     map[string][]*Client // userId -> clients
	rdb       *redis.Client
	keyPrefix string
}

// NewClientMap creates a new ClientMap
func NewClientMap(rdb *redis.Client, keyPrefix string) *ClientMap {
	return &ClientMap{
		users:     make(map[string][]*Client),
		rdb:       rdb,
		keyPrefix: keyPrefix,
	}
}

func (m *ClientMap) onlineKey(userId string) string {
	return m.keyPrefix + "online:" + userId
}

// Register registers a client
func (m *ClientMap) Register(ctx context.Context, client *Client) {
	m.mu.Lock()
	m.users[client.UserId] = append(m.users[client.UserId], client)
	m.mu.Unlock()

	m.setOnline(ctx, client.UserId)
}

// Unregister unregisters a client. Returns true when the user has no
// connections left.
func (m *ClientMap) Unregister(ctx context.Context, client *Client) bool {
	m.mu.Lock()

	clients := m.users[client.UserId]
	remaining := make([]*Client, 0, len(clients))
	for _, c := range clients {
		if c.ConnId != client.ConnId {
			remaining = append(remaining, c)
		}
	}

	offline := len(remaining) == 0
	if offline {
		delete(m.users, client.UserId)
	} else {
		m.users[client.UserId] = remaining
	}
	m.mu.Unlock()

	if offline {
		m.setOffline(ctx, client.UserId)
	}
	return offline
}

// GetAll gets all clients for a user
func (m *ClientMap) GetAll(userId string) ([]*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clients, exists := m.users[userId]
	if !exists {
		return nil, false
	}

	// Return a copy to avoid race conditions
	out := make([]*Client, len(clients))
	copy(out, clients)
	return out, true
}

// IsOnline checks if user is online (checks Redis for distributed support)
func (m *ClientMap) IsOnline(ctx context.Context, userId string) bool {
	m.mu.RLock()
	local := len(m.users[userId]) > 0
	m.mu.RUnlock()
	if local {
		return true
	}

	if m.rdb != nil {
		exists, _ := m.rdb.Exists(ctx, m.onlineKey(userId)).Result()
		return exists > 0
	}
	return false
}

// OnlineUserCount returns the number of locally online users
func (m *ClientMap) OnlineUserCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

// OnlineConnCount returns the total number of local connections
func (m *ClientMap) OnlineConnCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, clients := range m.users {
		count += len(clients)
	}
	return count
}

// RefreshOnlineStatus refreshes the online status TTL
func (m *ClientMap) RefreshOnlineStatus(ctx context.Context, userId string) {
	if m.rdb == nil {
		return
	}

	m.mu.RLock()
	local := len(m.users[userId]) > 0
	m.mu.RUnlock()
	if local {
		m.rdb.Expire(ctx, m.onlineKey(userId), onlineTTL)
	}
}

// CloseAll closes every connected client, used on shutdown
func (m *ClientMap) CloseAll() {
	m.mu.RLock()
	clients := make([]*Client, 0, len(m.users))
	for _, cs := range m.users {
		clients = append(clients, cs...)
	}
	m.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
}

func (m *ClientMap) setOnline(ctx context.Context, userId string) {
	if m.rdb == nil {
		return
	}
	m.rdb.Set(ctx, m.onlineKey(userId), "1", onlineTTL)
}

func (m *ClientMap) setOffline(ctx context.Context, userId string) {
	if m.rdb == nil {
		return
	}
	m.rdb.Del(ctx, m.onlineKey(userId))
}
