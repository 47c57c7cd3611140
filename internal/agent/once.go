package agent

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"wlm-agent/internal/config"
)

// PrintHeartbeat builds a single heartbeat record from the configuration
// and writes it as JSON, without connecting to NATS
func PrintHeartbeat(configPath string, w io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	record, err := newExecutor(cfg, zap.NewNop()).CreateHeartbeat(time.Now())
	if err != nil {
		return fmt.Errorf("failed to build heartbeat: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(record); err != nil {
		return fmt.Errorf("failed to encode heartbeat: %w", err)
	}

	return nil
}
