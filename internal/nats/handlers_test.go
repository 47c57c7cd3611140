package nats

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"wlm-agent/internal/config"
	"wlm-agent/internal/heartbeat"
	"wlm-agent/internal/natstest"
	"wlm-agent/internal/tasks"
)

func setupHandlers(t *testing.T, hostname heartbeat.HostnameFunc) (*CommandHandlers, *tasks.Executor, func(string) []byte) {
	t.Helper()

	ns := natstest.StartServer(t)
	client := newTestClient(t, ns)

	cfg := &config.Config{
		DeviceID:      "node01",
		SubjectPrefix: "agents",
		Heartbeat: config.HeartbeatConfig{
			Enabled:         true,
			Interval:        time.Minute,
			DataType:        "WLM_HEARTBEAT_BLOB",
			IPName:          "10.0.0.5",
			TimestampFormat: config.TimestampRFC3339,
		},
	}
	executor := tasks.NewExecutor(zap.NewNop(), heartbeat.NewBuilder(hostname), cfg.Heartbeat)
	handlers := NewCommandHandlers(zap.NewNop(), cfg, executor)
	require.NoError(t, handlers.SubscribeAll(client))

	requester := natstest.Connect(t, ns)
	request := func(command string) []byte {
		t.Helper()
		msg, err := requester.Request(handlers.CommandSubject(command), nil, 2*time.Second)
		require.NoError(t, err)
		return msg.Data
	}

	return handlers, executor, request
}

func TestCommandSubject(t *testing.T) {
	h := NewCommandHandlers(zap.NewNop(), &config.Config{DeviceID: "node01", SubjectPrefix: "wlm.prod"}, nil)
	assert.Equal(t, "wlm.prod.node01.cmd.ping", h.CommandSubject("ping"))
}

func TestHandlePing(t *testing.T) {
	_, executor, request := setupHandlers(t, heartbeat.HostnameFunc(func() (string, error) { return "node01", nil }))

	var resp pingResponse
	require.NoError(t, json.Unmarshal(request("ping"), &resp))
	assert.Equal(t, "pong", resp.Status)
	assert.NotEmpty(t, resp.Timestamp)
	assert.Equal(t, int64(1), executor.GetAgentMetrics().CommandsProcessed)
}

func TestHandleHeartbeat(t *testing.T) {
	_, _, request := setupHandlers(t, func() (string, error) { return "node01", nil })

	var rec heartbeat.Record
	require.NoError(t, json.Unmarshal(request("heartbeat"), &rec))

	assert.Equal(t, "WLM_HEARTBEAT_BLOB", rec.DataType)
	assert.Equal(t, "10.0.0.5", rec.IPName)
	require.Len(t, rec.DataItems, 1)
	assert.Equal(t, "node01", rec.DataItems[0].Computer)
	assert.Equal(t, []heartbeat.CounterSample{{CounterName: "WLIHeartbeat", Value: 1}}, rec.DataItems[0].Collections)

	_, err := time.Parse(time.RFC3339, rec.DataItems[0].Timestamp)
	assert.NoError(t, err)
}

func TestHandleHeartbeatResolverFailure(t *testing.T) {
	_, executor, request := setupHandlers(t, func() (string, error) {
		return "", errors.New("uname failed")
	})

	var resp errorResponse
	require.NoError(t, json.Unmarshal(request("heartbeat"), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Error, "hostname resolution failed")
	assert.Contains(t, resp.Error, "uname failed")

	m := executor.GetAgentMetrics()
	assert.Equal(t, int64(1), m.CommandsErrored)
}

func TestHandleStatus(t *testing.T) {
	_, executor, request := setupHandlers(t, func() (string, error) { return "node01", nil })
	executor.RecordHeartbeat()

	var resp statusResponse
	require.NoError(t, json.Unmarshal(request("status"), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "node01", resp.DeviceID)
	require.NotNil(t, resp.Tasks)
	assert.Equal(t, int64(1), resp.Tasks.HeartbeatCount)
	require.NotNil(t, resp.Agent)
	assert.Positive(t, resp.Agent.Goroutines)

	// the status request itself has been received on the connection
	require.NotNil(t, resp.NATS)
	assert.True(t, resp.NATS.Connected)
	assert.GreaterOrEqual(t, resp.NATS.InMsgs, uint64(1))
}

func TestNATSStatsBeforeSubscribe(t *testing.T) {
	h := NewCommandHandlers(zap.NewNop(), &config.Config{DeviceID: "node01", SubjectPrefix: "agents"}, nil)
	assert.Nil(t, h.natsStats())
}

func TestHandleMetrics(t *testing.T) {
	_, executor, request := setupHandlers(t, func() (string, error) { return "node01", nil })
	executor.RecordHeartbeat()

	body := string(request("metrics"))
	assert.True(t, strings.Contains(body, `wlm_agent_heartbeats_total{data_type="WLM_HEARTBEAT_BLOB"} 1`), body)
	assert.Contains(t, body, "# TYPE wlm_agent_uptime_seconds gauge")
}
