package scheduler

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"wlm-agent/internal/config"
	"wlm-agent/internal/tasks"
)

// Publisher sends telemetry payloads to a subject
type Publisher interface {
	PublishTelemetry(subject string, data []byte) error
}

// Scheduler manages periodic task execution
type Scheduler struct {
	scheduler     gocron.Scheduler
	logger        *zap.Logger
	publisher     Publisher
	executor      *tasks.Executor
	config        *config.Config
	subjectPrefix string
}

// New creates a new scheduler with configured tasks
func New(
	logger *zap.Logger,
	publisher Publisher,
	executor *tasks.Executor,
	cfg *config.Config,
) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	scheduler := &Scheduler{
		scheduler:     s,
		logger:        logger,
		publisher:     publisher,
		executor:      executor,
		config:        cfg,
		subjectPrefix: cfg.SubjectPrefix,
	}

	if err := scheduler.scheduleTasks(); err != nil {
		return nil, fmt.Errorf("failed to schedule tasks: %w", err)
	}

	return scheduler, nil
}

// wrapTaskWithRecovery wraps a task function with panic recovery
// A panicking task must not take the agent down with it
func (s *Scheduler) wrapTaskWithRecovery(taskName string, taskFunc func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Panic recovered in scheduled task",
					zap.String("task", taskName),
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())))
			}
		}()

		taskFunc()
	}
}

// scheduleTasks sets up all periodic tasks
func (s *Scheduler) scheduleTasks() error {
	if !s.config.Heartbeat.Enabled {
		s.logger.Info("Heartbeat task disabled")
		return nil
	}

	opts := []gocron.JobOption{gocron.WithName("heartbeat")}
	if s.config.Heartbeat.PublishOnStart {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.config.Heartbeat.Interval),
		gocron.NewTask(s.wrapTaskWithRecovery("heartbeat", s.publishHeartbeat)),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to schedule heartbeat: %w", err)
	}

	s.logger.Info("Scheduled heartbeat task",
		zap.Duration("interval", s.config.Heartbeat.Interval),
		zap.String("data_type", s.config.Heartbeat.DataType),
		zap.Bool("publish_on_start", s.config.Heartbeat.PublishOnStart))

	return nil
}

// Start begins executing scheduled tasks
func (s *Scheduler) Start() {
	s.scheduler.Start()
	s.logger.Info("Scheduler started")
}

// Shutdown gracefully stops the scheduler
func (s *Scheduler) Shutdown() error {
	s.logger.Info("Shutting down scheduler")
	return s.scheduler.Shutdown()
}

// HeartbeatSubject returns the subject heartbeat records are published on
func (s *Scheduler) HeartbeatSubject() string {
	return fmt.Sprintf("%s.%s.heartbeat", s.subjectPrefix, s.config.DeviceID)
}

// publishHeartbeat builds and publishes one heartbeat record
// A cycle whose record cannot be built is logged and skipped
func (s *Scheduler) publishHeartbeat() {
	subject := s.HeartbeatSubject()

	record, err := s.executor.CreateHeartbeat(time.Now())
	if err != nil {
		s.logger.Error("Failed to build heartbeat, skipping cycle", zap.Error(err))
		s.executor.RecordHeartbeatFailure(err)
		return
	}

	data, err := json.Marshal(record)
	if err != nil {
		s.logger.Error("Failed to marshal heartbeat", zap.Error(err))
		s.executor.RecordHeartbeatFailure(err)
		return
	}

	if err := s.publisher.PublishTelemetry(subject, data); err != nil {
		s.logger.Error("Failed to publish heartbeat", zap.Error(err))
		s.executor.RecordHeartbeatFailure(err)
		return
	}

	s.executor.RecordHeartbeat()

	s.logger.Debug("Published heartbeat",
		zap.String("subject", subject),
		zap.String("computer", record.DataItems[0].Computer))
}
