package jobs

import (
	"context"

	"github.com/hibiken/asynq"
)

// Enqueuer schedules gateway submissions from the HTTP layer.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer wraps an Asynq client.
func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// EnqueueSubmit queues an sdi:submit task for the invoice.
func (e *Enqueuer) EnqueueSubmit(ctx context.Context, number string) error {
	task, err := NewSdISubmitTask(number)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}
