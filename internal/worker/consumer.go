package worker

import (
	"context"

	"github.com/cuongbtq/image-tasks/internal/domain"
	"github.com/cuongbtq/image-tasks/shared/rabbitmq"
)

// ConsumeFunc runs one consume loop under tag until ctx is cancelled.
type ConsumeFunc func(ctx context.Context, tag string, handler rabbitmq.Handler[domain.TaskRef]) error

// ConsumeFrom adapts a broker consumer to a ConsumeFunc.
func ConsumeFrom(c *rabbitmq.Consumer) ConsumeFunc {
	return func(ctx context.Context, tag string, handler rabbitmq.Handler[domain.TaskRef]) error {
		return rabbitmq.Consume(ctx, c, tag, handler)
	}
}
