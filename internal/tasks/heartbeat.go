package tasks

import (
	"time"

	"go.uber.org/zap"
	"wlm-agent/internal/heartbeat"
)

// CreateHeartbeat builds a WLM heartbeat record stamped with the given time
// Build failures are returned to the caller, which decides whether to skip the cycle
func (e *Executor) CreateHeartbeat(now time.Time) (*heartbeat.Record, error) {
	timestamp := now.UTC().Format(e.layout)

	record, err := e.builder.Build(timestamp, e.heartbeat.DataType, e.heartbeat.IPName)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Built heartbeat record",
		zap.String("data_type", record.DataType),
		zap.String("computer", record.DataItems[0].Computer),
		zap.String("timestamp", timestamp))

	return record, nil
}
