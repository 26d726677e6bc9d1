package queue

import (
	"context"
	"encoding/json"
)

// Job consumes one message type.
type Job interface {
	Name() string
	// Type is the message type routed to this job.
	Type() string
	Handle(ctx context.Context, payload json.RawMessage) error
}
