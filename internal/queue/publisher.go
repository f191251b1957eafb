package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/asyncq/shared/rabbitmq"
)

// JobMessage is the wire payload published for each ready job. Workers look
// the job up by id; the row is the source of truth, not the message.
type JobMessage struct {
	JobID int64 `json:"job_id"`
}

// AMQPPublisher publishes job-ready notifications through RabbitMQ.
type AMQPPublisher struct {
	client *rabbitmq.Client
}

// NewAMQPPublisher wraps a RabbitMQ client as a Publisher.
func NewAMQPPublisher(client *rabbitmq.Client) *AMQPPublisher {
	return &AMQPPublisher{client: client}
}

// PublishJob publishes a JobMessage with retry.
func (p *AMQPPublisher) PublishJob(ctx context.Context, jobID int64) error {
	body, err := json.Marshal(JobMessage{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}
	return p.client.PublishWithRetry(ctx, body, "application/json")
}
