package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Publisher is the producer side of a queue.
type Publisher interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// Config controls workers and the retry schedule. A failed message waits
// RetryDelay, then twice that, and so on up to MaxRetryDelay.
type Config struct {
	Workers       int
	RetryLimit    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// Prefix namespaces the Redis keys, e.g. signal_engine:notifications.
	Prefix string
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	if c.MaxRetryDelay < c.RetryDelay {
		c.MaxRetryDelay = 10 * c.RetryDelay
	}
	if c.Prefix == "" {
		c.Prefix = "signal_engine:queue"
	}
}

// retryAfter returns the wait before the given attempt (1-based) is retried,
// or false once the retry budget is spent.
func (c Config) retryAfter(attempt int) (time.Duration, bool) {
	if attempt > c.RetryLimit {
		return 0, false
	}
	d := c.RetryDelay
	for i := 1; i < attempt && d < c.MaxRetryDelay; i++ {
		d *= 2
	}
	if d > c.MaxRetryDelay {
		d = c.MaxRetryDelay
	}
	return d, true
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
	LastError string          `json:"last_error,omitempty"`
}

// Decode unmarshals a job payload into T.
func Decode[T any](payload json.RawMessage) (*T, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &out, nil
}
