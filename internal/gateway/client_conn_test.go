package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trangnv/homechat/internal/config"
)

func TestNormalizeWSConfigDefaults(t *testing.T) {
	got := normalizeWSConfig(config.WebSocketConfig{})
	require.Equal(t, int64(MaxMessageSize), got.MaxMessageSize)
	require.Equal(t, WriteWait, got.WriteWait)
	require.Equal(t, PongWait, got.PongWait)
	require.Equal(t, PingPeriod, got.PingPeriod)
	require.Equal(t, WriteChannelSize, got.WriteChannelSize)
	require.Less(t, got.PingPeriod, got.PongWait)
}

func TestNormalizeWSConfigKeepsExplicitValues(t *testing.T) {
	in := config.WebSocketConfig{
		MaxMessageSize:   1024,
		WriteWait:        2 * time.Second,
		PongWait:         15 * time.Second,
		PingPeriod:       12 * time.Second,
		WriteChannelSize: 32,
	}
	require.Equal(t, in, normalizeWSConfig(in))
}
