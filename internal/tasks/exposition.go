package tasks

import (
	"fmt"
	"io"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const metricPrefix = "wlm_agent_"

// WriteExposition renders agent and task statistics in the Prometheus text format
func (e *Executor) WriteExposition(w io.Writer) error {
	agent := e.GetAgentMetrics()
	tasks := e.GetTaskMetrics()

	dataType := labelPair("data_type", e.heartbeat.DataType)

	families := []*dto.MetricFamily{
		counterFamily("heartbeats_total", "Heartbeat records published.",
			float64(tasks.HeartbeatCount), dataType),
		counterFamily("heartbeat_failures_total", "Heartbeat cycles that failed to build or publish.",
			float64(tasks.HeartbeatFailures), dataType),
		counterFamily("commands_total", "Commands processed.",
			float64(agent.CommandsProcessed)),
		counterFamily("command_errors_total", "Commands that returned an error.",
			float64(agent.CommandsErrored)),
		gaugeFamily("uptime_seconds", "Seconds since the agent started.",
			float64(agent.UptimeSeconds)),
		gaugeFamily("goroutines", "Number of goroutines.",
			float64(agent.Goroutines)),
		gaugeFamily("memory_usage_megabytes", "Memory obtained from the OS.",
			agent.MemoryUsageMB),
	}

	if last := e.lastHeartbeatTime(); !last.IsZero() {
		families = append(families, gaugeFamily("last_heartbeat_timestamp_seconds",
			"Unix time of the last published heartbeat.",
			float64(last.UnixNano())/1e9, dataType))
	}

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to encode metric family %s: %w", mf.GetName(), err)
		}
	}

	return nil
}

func counterFamily(name, help string, value float64, labels ...*dto.LabelPair) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: ptr(metricPrefix + name),
		Help: ptr(help),
		Type: dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{
			Label:   labels,
			Counter: &dto.Counter{Value: ptr(value)},
		}},
	}
}

func gaugeFamily(name, help string, value float64, labels ...*dto.LabelPair) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: ptr(metricPrefix + name),
		Help: ptr(help),
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{
			Label: labels,
			Gauge: &dto.Gauge{Value: ptr(value)},
		}},
	}
}

func labelPair(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: ptr(name), Value: ptr(value)}
}

func ptr[T any](v T) *T {
	return &v
}
