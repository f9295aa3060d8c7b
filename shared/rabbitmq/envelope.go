package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/image-tasks/shared/correlation"
)

// Envelope is the wire format of every message: a typed payload plus the
// trace id of the request that produced it. TTL is in seconds, 0 means unset.
type Envelope[T any] struct {
	Payload T      `json:"payload"`
	TraceID string `json:"trace_id"`
	TTL     int    `json:"ttl"`
}

// NewEnvelope wraps payload with the trace id carried by ctx.
func NewEnvelope[T any](ctx context.Context, payload T) Envelope[T] {
	return Envelope[T]{
		Payload: payload,
		TraceID: correlation.ID(ctx),
	}
}

func (e Envelope[T]) ttlSeconds() int {
	return e.TTL
}

// validator is implemented by payloads that can reject decoded but
// meaningless values.
type validator interface {
	Validate() error
}

// decodeEnvelope parses body into an Envelope[T]. A missing trace id falls
// back to correlation.DefaultID.
func decodeEnvelope[T any](body []byte) (Envelope[T], error) {
	var env Envelope[T]
	if err := json.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("failed to decode message: %w", err)
	}
	if env.TraceID == "" {
		env.TraceID = correlation.DefaultID
	}
	if v, ok := any(env.Payload).(validator); ok {
		if err := v.Validate(); err != nil {
			return env, fmt.Errorf("invalid payload: %w", err)
		}
	}
	return env, nil
}
