package tasks

import (
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"wlm-agent/internal/config"
	"wlm-agent/internal/heartbeat"
	"wlm-agent/internal/utils"
)

// Executor handles all task execution for both scheduled tasks and commands
type Executor struct {
	logger    *zap.Logger
	builder   *heartbeat.Builder
	heartbeat config.HeartbeatConfig
	layout    string
	stats     *ExecutorStats
	taskStats *TaskStats
}

// ExecutorStats tracks executor statistics for self-monitoring
type ExecutorStats struct {
	mu                sync.RWMutex
	startTime         time.Time
	commandsProcessed int64
	commandsErrored   int64
	lastError         string
	lastErrorTime     time.Time
}

// TaskStats tracks scheduled task execution for monitoring
type TaskStats struct {
	mu sync.RWMutex

	lastHeartbeat        time.Time
	lastHeartbeatFailure time.Time
	lastHeartbeatError   string

	heartbeatCount    int64
	heartbeatFailures int64
}

// AgentMetrics represents agent self-monitoring metrics
type AgentMetrics struct {
	MemoryUsageMB     float64 `json:"memory_usage_mb"`
	Goroutines        int     `json:"goroutines"`
	UptimeSeconds     int64   `json:"uptime_seconds"`
	CommandsProcessed int64   `json:"commands_processed"`
	CommandsErrored   int64   `json:"commands_errored"`
	LastError         string  `json:"last_error,omitempty"`
	LastErrorTime     string  `json:"last_error_time,omitempty"`
}

// TaskHealthMetrics represents scheduled task health
type TaskHealthMetrics struct {
	LastHeartbeat        string `json:"last_heartbeat,omitempty"`
	LastHeartbeatFailure string `json:"last_heartbeat_failure,omitempty"`
	LastHeartbeatError   string `json:"last_heartbeat_error,omitempty"`

	HeartbeatCount    int64 `json:"heartbeat_count"`
	HeartbeatFailures int64 `json:"heartbeat_failures"`
}

// NewExecutor creates a new task executor
// The heartbeat timestamp format must already be validated by config.Load
func NewExecutor(logger *zap.Logger, builder *heartbeat.Builder, cfg config.HeartbeatConfig) *Executor {
	layout, err := config.TimestampLayout(cfg.TimestampFormat)
	if err != nil {
		logger.Warn("Unknown heartbeat timestamp format, using RFC3339",
			zap.String("format", cfg.TimestampFormat))
		layout = time.RFC3339
	}

	return &Executor{
		logger:    logger,
		builder:   builder,
		heartbeat: cfg,
		layout:    layout,
		stats: &ExecutorStats{
			startTime: time.Now(),
		},
		taskStats: &TaskStats{},
	}
}

// GetAgentMetrics returns current agent performance metrics
func (e *Executor) GetAgentMetrics() *AgentMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	e.stats.mu.RLock()
	defer e.stats.mu.RUnlock()

	metrics := &AgentMetrics{
		// mem.Sys is the full process footprint, not just heap
		MemoryUsageMB:     utils.Round(float64(mem.Sys) / 1024 / 1024),
		Goroutines:        runtime.NumGoroutine(),
		UptimeSeconds:     int64(time.Since(e.stats.startTime).Seconds()),
		CommandsProcessed: e.stats.commandsProcessed,
		CommandsErrored:   e.stats.commandsErrored,
	}

	if !e.stats.lastErrorTime.IsZero() {
		metrics.LastError = e.stats.lastError
		metrics.LastErrorTime = e.stats.lastErrorTime.Format(time.RFC3339)
	}

	return metrics
}

// GetTaskMetrics returns scheduled task execution metrics
func (e *Executor) GetTaskMetrics() *TaskHealthMetrics {
	e.taskStats.mu.RLock()
	defer e.taskStats.mu.RUnlock()

	metrics := &TaskHealthMetrics{
		HeartbeatCount:    e.taskStats.heartbeatCount,
		HeartbeatFailures: e.taskStats.heartbeatFailures,
	}

	// Only include timestamps if tasks have executed
	if !e.taskStats.lastHeartbeat.IsZero() {
		metrics.LastHeartbeat = e.taskStats.lastHeartbeat.Format(time.RFC3339)
	}
	if !e.taskStats.lastHeartbeatFailure.IsZero() {
		metrics.LastHeartbeatFailure = e.taskStats.lastHeartbeatFailure.Format(time.RFC3339)
		metrics.LastHeartbeatError = e.taskStats.lastHeartbeatError
	}

	return metrics
}

// RecordHeartbeat records a published heartbeat
func (e *Executor) RecordHeartbeat() {
	e.taskStats.mu.Lock()
	defer e.taskStats.mu.Unlock()
	e.taskStats.lastHeartbeat = time.Now()
	e.taskStats.heartbeatCount++
}

// RecordHeartbeatFailure records a heartbeat that could not be built or published
func (e *Executor) RecordHeartbeatFailure(err error) {
	e.taskStats.mu.Lock()
	defer e.taskStats.mu.Unlock()
	e.taskStats.lastHeartbeatFailure = time.Now()
	e.taskStats.lastHeartbeatError = err.Error()
	e.taskStats.heartbeatFailures++
}

// RecordCommandSuccess increments success counter
func (e *Executor) RecordCommandSuccess() {
	e.stats.mu.Lock()
	defer e.stats.mu.Unlock()
	e.stats.commandsProcessed++
}

// RecordCommandError increments error counter and stores last error
func (e *Executor) RecordCommandError(err error) {
	e.stats.mu.Lock()
	defer e.stats.mu.Unlock()

	e.stats.commandsErrored++
	e.stats.commandsProcessed++ // Still counts as processed
	e.stats.lastError = err.Error()
	e.stats.lastErrorTime = time.Now()
}

// lastHeartbeatTime returns when the last heartbeat was published, zero if never
func (e *Executor) lastHeartbeatTime() time.Time {
	e.taskStats.mu.RLock()
	defer e.taskStats.mu.RUnlock()
	return e.taskStats.lastHeartbeat
}
