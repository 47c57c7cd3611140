package scheduler

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"wlm-agent/internal/config"
	"wlm-agent/internal/heartbeat"
	"wlm-agent/internal/tasks"
)

// mockPublisher is a testify mock of the telemetry publisher
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishTelemetry(subject string, data []byte) error {
	args := m.Called(subject, data)
	return args.Error(0)
}

func testConfig() *config.Config {
	return &config.Config{
		DeviceID:      "node01",
		SubjectPrefix: "agents",
		Heartbeat: config.HeartbeatConfig{
			Enabled:         true,
			Interval:        time.Hour,
			DataType:        "WLM_HEARTBEAT_BLOB",
			IPName:          "10.0.0.5",
			TimestampFormat: config.TimestampRFC3339,
		},
	}
}

func newTestScheduler(t *testing.T, cfg *config.Config, pub Publisher, hostname heartbeat.HostnameFunc) (*Scheduler, *tasks.Executor) {
	t.Helper()

	executor := tasks.NewExecutor(zap.NewNop(), heartbeat.NewBuilder(hostname), cfg.Heartbeat)
	s, err := New(zap.NewNop(), pub, executor, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })

	return s, executor
}

func okHost() (string, error) { return "node01", nil }

func TestPublishHeartbeat(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("PublishTelemetry", "agents.node01.heartbeat", mock.Anything).Return(nil)

	s, executor := newTestScheduler(t, testConfig(), pub, okHost)
	s.publishHeartbeat()

	pub.AssertNumberOfCalls(t, "PublishTelemetry", 1)

	data := pub.Calls[0].Arguments.Get(1).([]byte)
	var rec heartbeat.Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "WLM_HEARTBEAT_BLOB", rec.DataType)
	assert.Equal(t, "10.0.0.5", rec.IPName)
	assert.Equal(t, "node01", rec.DataItems[0].Computer)
	assert.Equal(t, heartbeat.CounterName, rec.DataItems[0].Collections[0].CounterName)

	assert.Equal(t, int64(1), executor.GetTaskMetrics().HeartbeatCount)
}

func TestPublishHeartbeatResolverFailure(t *testing.T) {
	pub := new(mockPublisher)

	s, executor := newTestScheduler(t, testConfig(), pub, func() (string, error) {
		return "", errors.New("uname failed")
	})
	s.publishHeartbeat()

	pub.AssertNotCalled(t, "PublishTelemetry", mock.Anything, mock.Anything)

	m := executor.GetTaskMetrics()
	assert.Zero(t, m.HeartbeatCount)
	assert.Equal(t, int64(1), m.HeartbeatFailures)
	assert.Contains(t, m.LastHeartbeatError, "uname failed")
}

func TestPublishHeartbeatPublishFailure(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("PublishTelemetry", mock.Anything, mock.Anything).Return(errors.New("no stream"))

	s, executor := newTestScheduler(t, testConfig(), pub, okHost)
	s.publishHeartbeat()

	m := executor.GetTaskMetrics()
	assert.Zero(t, m.HeartbeatCount)
	assert.Equal(t, int64(1), m.HeartbeatFailures)
}

func TestHeartbeatSubject(t *testing.T) {
	cfg := testConfig()
	cfg.SubjectPrefix = "wlm.prod"

	s, _ := newTestScheduler(t, cfg, new(mockPublisher), okHost)
	assert.Equal(t, "wlm.prod.node01.heartbeat", s.HeartbeatSubject())
}

func TestPublishOnStart(t *testing.T) {
	cfg := testConfig()
	cfg.Heartbeat.PublishOnStart = true

	pub := new(mockPublisher)
	pub.On("PublishTelemetry", "agents.node01.heartbeat", mock.Anything).Return(nil)

	s, executor := newTestScheduler(t, cfg, pub, okHost)
	s.Start()

	assert.Eventually(t, func() bool {
		return executor.GetTaskMetrics().HeartbeatCount == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHeartbeatDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Heartbeat.Enabled = false

	s, _ := newTestScheduler(t, cfg, new(mockPublisher), okHost)
	assert.Empty(t, s.scheduler.Jobs())
}

func TestWrapTaskWithRecovery(t *testing.T) {
	s, _ := newTestScheduler(t, testConfig(), new(mockPublisher), okHost)

	ran := false
	assert.NotPanics(t, func() {
		s.wrapTaskWithRecovery("boom", func() {
			ran = true
			panic("boom")
		})()
	})
	assert.True(t, ran)
}
