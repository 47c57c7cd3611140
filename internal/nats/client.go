package nats

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"wlm-agent/internal/config"
)

const (
	publishRetries    = 3
	publishRetryDelay = time.Second
)

// Client manages the NATS connection and provides methods for publishing and subscribing
type Client struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	logger     *zap.Logger
	config     *config.NATSConfig
	retryDelay time.Duration
}

// NewClient creates a new NATS client with the specified configuration
func NewClient(cfg *config.NATSConfig, logger *zap.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("wlm-agent"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			} else {
				logger.Info("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			logger.Error("NATS error", fields...)
		}),
	}

	switch cfg.Auth.Type {
	case "creds":
		logger.Info("Using credentials file authentication", zap.String("file", cfg.Auth.CredsFile))
		opts = append(opts, nats.UserCredentials(cfg.Auth.CredsFile))
	case "token":
		logger.Info("Using token authentication")
		opts = append(opts, nats.Token(cfg.Auth.Token))
	case "userpass":
		logger.Info("Using username/password authentication", zap.String("username", cfg.Auth.Username))
		opts = append(opts, nats.UserInfo(cfg.Auth.Username, cfg.Auth.Password))
	case "none", "":
		logger.Info("Using no authentication")
	default:
		return nil, fmt.Errorf("invalid auth type: %s", cfg.Auth.Type)
	}

	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("no NATS URLs configured")
	}

	// nats.Connect accepts a comma separated server list
	logger.Info("Connecting to NATS", zap.Strings("urls", cfg.URLs))
	conn, err := nats.Connect(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("Connected to NATS",
		zap.String("url", conn.ConnectedUrl()),
		zap.String("server_id", conn.ConnectedServerId()))

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Client{
		conn:       conn,
		js:         js,
		logger:     logger,
		config:     cfg,
		retryDelay: publishRetryDelay,
	}, nil
}

// PublishTelemetry publishes a message to JetStream with retries
// Used for heartbeat records
func (c *Client) PublishTelemetry(subject string, data []byte) error {
	var lastErr error
	for attempt := 1; attempt <= publishRetries; attempt++ {
		_, err := c.js.Publish(subject, data)
		if err == nil {
			c.logger.Debug("Published telemetry",
				zap.String("subject", subject),
				zap.Int("bytes", len(data)),
				zap.Int("attempt", attempt))
			return nil
		}

		lastErr = err
		c.logger.Warn("Failed to publish telemetry",
			zap.String("subject", subject),
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", publishRetries))

		if attempt < publishRetries {
			time.Sleep(c.retryDelay * time.Duration(attempt))
		}
	}

	c.logger.Error("Failed to publish telemetry after all retries",
		zap.String("subject", subject),
		zap.Int("retries", publishRetries),
		zap.Error(lastErr))

	return fmt.Errorf("failed to publish to %s after %d attempts: %w", subject, publishRetries, lastErr)
}

// Subscribe creates a subscription to the specified subject
// This is used for command handlers with Core NATS request/reply
func (c *Client) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		c.logger.Error("Failed to subscribe",
			zap.String("subject", subject),
			zap.Error(err))
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	c.logger.Info("Subscribed to subject", zap.String("subject", subject))
	return sub, nil
}

// Drain gracefully closes the connection by draining all subscriptions
// and waiting for in-flight messages to complete
func (c *Client) Drain(timeout time.Duration) error {
	c.logger.Info("Draining NATS connection", zap.Duration("timeout", timeout))

	if c.conn.IsClosed() {
		c.logger.Info("Connection already closed")
		return nil
	}

	if err := c.conn.Drain(); err != nil {
		c.logger.Error("Error during NATS drain", zap.Error(err))
		return err
	}

	// Drain is asynchronous; the connection closes once it completes
	deadline := time.Now().Add(timeout)
	for !c.conn.IsClosed() {
		if time.Now().After(deadline) {
			c.logger.Warn("NATS drain timeout, forcing close")
			c.conn.Close()
			return fmt.Errorf("drain timeout after %v", timeout)
		}
		time.Sleep(10 * time.Millisecond)
	}

	c.logger.Info("NATS drain completed successfully")
	return nil
}

// Close immediately closes the NATS connection
func (c *Client) Close() {
	c.logger.Info("Closing NATS connection")
	c.conn.Close()
}

// IsConnected returns true if the NATS connection is currently active
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

// Stats returns connection statistics
func (c *Client) Stats() nats.Statistics {
	return c.conn.Stats()
}
