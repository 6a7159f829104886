package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientMapRegisterUnregister(t *testing.T) {
	m := NewClientMap(nil, "test:")
	ctx := context.Background()

	c1 := &Client{UserId: "u1", ConnId: "conn-1"}
	c2 := &Client{UserId: "u1", ConnId: "conn-2"}
	c3 := &Client{UserId: "u2", ConnId: "conn-3"}

	m.Register(ctx, c1)
	m.Register(ctx, c2)
	m.Register(ctx, c3)

	require.Equal(t, 2, m.OnlineUserCount())
	require.Equal(t, 3, m.OnlineConnCount())
	require.True(t, m.IsOnline(ctx, "u1"))
	require.False(t, m.IsOnline(ctx, "nobody"))

	clients, ok := m.GetAll("u1")
	require.True(t, ok)
	require.Len(t, clients, 2)

	// User stays online while another connection remains
	require.False(t, m.Unregister(ctx, c1))
	require.True(t, m.IsOnline(ctx, "u1"))

	require.True(t, m.Unregister(ctx, c2))
	require.False(t, m.IsOnline(ctx, "u1"))
	require.Equal(t, 1, m.OnlineConnCount())

	_, ok = m.GetAll("u1")
	require.False(t, ok)
}

func TestProtocolEncodeDecode(t *testing.T) {
	data, err := Encode(SendMsgReq{Content: "hello", MsgType: "text"})
	require.NoError(t, err)

	var req SendMsgReq
	require.NoError(t, Decode(data, &req))
	require.Equal(t, "hello", req.Content)
	require.Equal(t, "text", req.MsgType)
}
