package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSdISubmit submits one invoice document to the exchange gateway.
	TaskTypeSdISubmit = "sdi:submit"
	// TaskTypeSdIPoll refreshes the gateway status of every sent invoice.
	TaskTypeSdIPoll = "sdi:poll"
)

// SdISubmitPayload identifies the invoice to submit.
type SdISubmitPayload struct {
	Number string `json:"number"`
}

// NewSdISubmitTask constructs an Asynq task for one submission.
func NewSdISubmitTask(number string) (*asynq.Task, error) {
	data, err := json.Marshal(SdISubmitPayload{Number: number})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSdISubmit, data), nil
}

// NewSdIPollTask constructs the status poll task. It carries no payload.
func NewSdIPollTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSdIPoll, nil)
}
