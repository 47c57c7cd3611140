package nats

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"wlm-agent/internal/config"
	"wlm-agent/internal/natstest"
)

func newTestClient(t *testing.T, ns *server.Server) *Client {
	t.Helper()

	client, err := NewClient(&config.NATSConfig{
		URLs:          []string{ns.ClientURL()},
		Auth:          config.AuthConfig{Type: "none"},
		MaxReconnects: 1,
		ReconnectWait: 100 * time.Millisecond,
		DrainTimeout:  2 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(client.Close)

	client.retryDelay = time.Millisecond
	return client
}

func TestPublishTelemetry(t *testing.T) {
	ns := natstest.StartServer(t)
	js := natstest.AddStream(t, natstest.Connect(t, ns), "WLM", "agents.*.heartbeat")
	client := newTestClient(t, ns)

	require.NoError(t, client.PublishTelemetry("agents.node01.heartbeat", []byte(`{"DataType":"WLM_HEARTBEAT_BLOB"}`)))

	info, err := js.StreamInfo("WLM")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)

	msg, err := js.GetLastMsg("WLM", "agents.node01.heartbeat")
	require.NoError(t, err)
	assert.JSONEq(t, `{"DataType":"WLM_HEARTBEAT_BLOB"}`, string(msg.Data))
}

func TestPublishTelemetryNoStream(t *testing.T) {
	ns := natstest.StartServer(t)
	client := newTestClient(t, ns)

	err := client.PublishTelemetry("agents.node01.heartbeat", []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestNewClientInvalidAuth(t *testing.T) {
	_, err := NewClient(&config.NATSConfig{
		URLs: []string{"nats://127.0.0.1:4222"},
		Auth: config.AuthConfig{Type: "kerberos"},
	}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid auth type")
}

func TestNewClientNoURLs(t *testing.T) {
	_, err := NewClient(&config.NATSConfig{
		Auth: config.AuthConfig{Type: "none"},
	}, zap.NewNop())
	assert.Error(t, err)
}

func TestDrain(t *testing.T) {
	ns := natstest.StartServer(t)
	client := newTestClient(t, ns)
	assert.True(t, client.IsConnected())

	require.NoError(t, client.Drain(2*time.Second))
	assert.False(t, client.IsConnected())

	// A second drain on a closed connection is a no-op
	assert.NoError(t, client.Drain(time.Second))
}
