package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultConnectAttempts bounds startup retries while the broker comes up
	DefaultConnectAttempts = 10
	connectInitialDelay    = 2 * time.Second
	connectMaxDelay        = 30 * time.Second
)

// ConnectRabbitMQ dials the broker, retrying with exponential backoff
func ConnectRabbitMQ(ctx context.Context, amqpURL string, attempts int, logger *zap.Logger) (*RabbitMQQueue, error) {
	var q *RabbitMQQueue
	err := retryConnect(ctx, attempts, connectInitialDelay, connectMaxDelay, logger, func() error {
		var err error
		q, err = NewRabbitMQQueue(amqpURL, logger)
		return err
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

func retryConnect(ctx context.Context, attempts int, initial, maxDelay time.Duration, logger *zap.Logger, dial func() error) error {
	if attempts <= 0 {
		attempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if lastErr = dial(); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		delay := min(initial*time.Duration(1<<uint(attempt)), maxDelay)
		logger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", attempts),
			zap.Duration("retry_delay", delay),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, lastErr)
}
