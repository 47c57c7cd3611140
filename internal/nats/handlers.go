package nats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"wlm-agent/internal/config"
	"wlm-agent/internal/tasks"
)

// CommandHandlers manages all command subscriptions and handlers
type CommandHandlers struct {
	logger        *zap.Logger
	deviceID      string
	subjectPrefix string
	taskExecutor  *tasks.Executor
	client        *Client
}

// NewCommandHandlers creates a new command handler manager
func NewCommandHandlers(logger *zap.Logger, cfg *config.Config, executor *tasks.Executor) *CommandHandlers {
	return &CommandHandlers{
		logger:        logger,
		deviceID:      cfg.DeviceID,
		subjectPrefix: cfg.SubjectPrefix,
		taskExecutor:  executor,
	}
}

// CommandSubject returns the request subject for a command on this device
func (h *CommandHandlers) CommandSubject(command string) string {
	return fmt.Sprintf("%s.%s.cmd.%s", h.subjectPrefix, h.deviceID, command)
}

// SubscribeAll subscribes to all command subjects for this device
func (h *CommandHandlers) SubscribeAll(client *Client) error {
	h.client = client

	handlers := []struct {
		command string
		handler nats.MsgHandler
	}{
		{"ping", h.handlePing},
		{"heartbeat", h.handleHeartbeat},
		{"status", h.handleStatus},
		{"metrics", h.handleMetrics},
	}

	for _, c := range handlers {
		if _, err := client.Subscribe(h.CommandSubject(c.command), c.handler); err != nil {
			return err
		}
	}

	return nil
}

// Response structures

type pingResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type statusResponse struct {
	Status    string                   `json:"status"`
	DeviceID  string                   `json:"device_id"`
	Agent     *tasks.AgentMetrics      `json:"agent"`
	Tasks     *tasks.TaskHealthMetrics `json:"tasks"`
	NATS      *connectionStats         `json:"nats,omitempty"`
	Timestamp string                   `json:"timestamp"`
}

type connectionStats struct {
	Connected  bool   `json:"connected"`
	InMsgs     uint64 `json:"in_msgs"`
	OutMsgs    uint64 `json:"out_msgs"`
	InBytes    uint64 `json:"in_bytes"`
	OutBytes   uint64 `json:"out_bytes"`
	Reconnects uint64 `json:"reconnects"`
}

type errorResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// handlePing responds to ping commands
func (h *CommandHandlers) handlePing(msg *nats.Msg) {
	h.logger.Debug("Received ping command")

	response := pingResponse{
		Status:    "pong",
		Timestamp: now(),
	}

	h.taskExecutor.RecordCommandSuccess()
	h.respond(msg, response)

	h.logger.Debug("Sent pong response")
}

// handleHeartbeat builds a heartbeat record on demand and replies with it
// The record is not published to the telemetry stream
func (h *CommandHandlers) handleHeartbeat(msg *nats.Msg) {
	h.logger.Debug("Received heartbeat command")

	record, err := h.taskExecutor.CreateHeartbeat(time.Now())
	if err != nil {
		h.logger.Error("Failed to build heartbeat on demand", zap.Error(err))
		h.taskExecutor.RecordCommandError(err)
		h.respondError(msg, err.Error())
		return
	}

	h.taskExecutor.RecordCommandSuccess()
	h.respond(msg, record)
}

// handleStatus reports agent and task health
func (h *CommandHandlers) handleStatus(msg *nats.Msg) {
	h.logger.Debug("Received status command")

	response := statusResponse{
		Status:    "ok",
		DeviceID:  h.deviceID,
		Agent:     h.taskExecutor.GetAgentMetrics(),
		Tasks:     h.taskExecutor.GetTaskMetrics(),
		NATS:      h.natsStats(),
		Timestamp: now(),
	}

	h.taskExecutor.RecordCommandSuccess()
	h.respond(msg, response)
}

// handleMetrics replies with agent statistics in the Prometheus text format
func (h *CommandHandlers) handleMetrics(msg *nats.Msg) {
	h.logger.Debug("Received metrics command")

	var buf bytes.Buffer
	if err := h.taskExecutor.WriteExposition(&buf); err != nil {
		h.logger.Error("Failed to render metrics", zap.Error(err))
		h.taskExecutor.RecordCommandError(err)
		h.respondError(msg, err.Error())
		return
	}

	h.taskExecutor.RecordCommandSuccess()
	if err := msg.Respond(buf.Bytes()); err != nil {
		h.logger.Warn("Failed to send metrics response", zap.Error(err))
	}
}

// natsStats snapshots the NATS connection counters, nil before SubscribeAll
func (h *CommandHandlers) natsStats() *connectionStats {
	if h.client == nil {
		return nil
	}

	stats := h.client.Stats()
	return &connectionStats{
		Connected:  h.client.IsConnected(),
		InMsgs:     stats.InMsgs,
		OutMsgs:    stats.OutMsgs,
		InBytes:    stats.InBytes,
		OutBytes:   stats.OutBytes,
		Reconnects: stats.Reconnects,
	}
}

// respond marshals a response and replies to the request
func (h *CommandHandlers) respond(msg *nats.Msg, response any) {
	responseBytes, err := json.Marshal(response)
	if err != nil {
		h.logger.Error("Failed to marshal response", zap.Error(err))
		return
	}

	if err := msg.Respond(responseBytes); err != nil {
		h.logger.Warn("Failed to send response",
			zap.String("subject", msg.Subject),
			zap.Error(err))
	}
}

// respondError sends a generic error response
func (h *CommandHandlers) respondError(msg *nats.Msg, errorMsg string) {
	h.respond(msg, errorResponse{
		Status:    "error",
		Error:     errorMsg,
		Timestamp: now(),
	})
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
