package agent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"wlm-agent/internal/config"
	"wlm-agent/internal/heartbeat"
	"wlm-agent/internal/hostname"
	natsclient "wlm-agent/internal/nats"
	"wlm-agent/internal/scheduler"
	"wlm-agent/internal/tasks"
)

// Agent represents the main agent
type Agent struct {
	config    *config.Config
	logger    *zap.Logger
	nats      *natsclient.Client
	scheduler *scheduler.Scheduler
	handlers  *natsclient.CommandHandlers
	executor  *tasks.Executor
	version   string

	shutdownOnce sync.Once
	shutdownErr  error
	done         chan struct{}
}

// New creates a new agent instance
func New(configPath string, version string) (*Agent, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Starting wlm-agent",
		zap.String("version", version),
		zap.String("device_id", cfg.DeviceID))

	executor := newExecutor(cfg, logger)

	logger.Info("Connecting to NATS...")
	natsClient, err := natsclient.NewClient(&cfg.NATS, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	handlers := natsclient.NewCommandHandlers(logger, cfg, executor)

	logger.Info("Subscribing to commands...")
	if err := handlers.SubscribeAll(natsClient); err != nil {
		natsClient.Close()
		return nil, fmt.Errorf("failed to subscribe to commands: %w", err)
	}

	logger.Info("Creating scheduler...")
	sched, err := scheduler.New(logger, natsClient, executor, cfg)
	if err != nil {
		natsClient.Close()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Agent{
		config:    cfg,
		logger:    logger,
		nats:      natsClient,
		scheduler: sched,
		handlers:  handlers,
		executor:  executor,
		version:   version,
		done:      make(chan struct{}),
	}, nil
}

// newExecutor wires the heartbeat builder to the configured hostname source
func newExecutor(cfg *config.Config, logger *zap.Logger) *tasks.Executor {
	if cfg.Heartbeat.ComputerOverride != "" {
		logger.Info("Using configured computer name for heartbeats",
			zap.String("computer", cfg.Heartbeat.ComputerOverride))
	}

	builder := heartbeat.NewBuilder(hostname.FromConfig(cfg.Heartbeat.ComputerOverride))
	return tasks.NewExecutor(logger, builder, cfg.Heartbeat)
}

// Start begins scheduled publishing without blocking
func (a *Agent) Start() {
	a.scheduler.Start()

	a.logger.Info("Agent running",
		zap.String("device_id", a.config.DeviceID),
		zap.String("heartbeat_subject", a.scheduler.HeartbeatSubject()),
		zap.String("version", a.version))
}

// Run starts the agent and blocks until SIGINT/SIGTERM or Shutdown
func (a *Agent) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.run(ctx)
}

// run starts the agent and blocks until ctx is done or the agent is shut down elsewhere
func (a *Agent) run(ctx context.Context) error {
	a.Start()

	select {
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
		return a.Shutdown()
	case <-a.done:
		return a.shutdownErr
	}
}

// Shutdown gracefully shuts down the agent
// Safe to call more than once; only the first call does the work
func (a *Agent) Shutdown() error {
	a.shutdownOnce.Do(func() {
		a.shutdownErr = a.shutdown()
		close(a.done)
	})
	return a.shutdownErr
}

func (a *Agent) shutdown() error {
	a.logger.Info("Shutting down agent gracefully")

	if err := a.scheduler.Shutdown(); err != nil {
		a.logger.Error("Error shutting down scheduler", zap.Error(err))
	}

	// Wait for in-flight messages
	if err := a.nats.Drain(a.config.NATS.DrainTimeout); err != nil {
		a.logger.Error("Error draining NATS", zap.Error(err))
	}

	a.logger.Info("Agent shutdown complete")
	_ = a.logger.Sync()
	return nil
}
