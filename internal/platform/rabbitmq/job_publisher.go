package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"finrag/internal/app"
)

// JobPublisher sends ingest jobs to a durable queue, opening a channel per
// publish.
type JobPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewJobPublisher(conn *amqp.Connection, queueName string) *JobPublisher {
	return &JobPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *JobPublisher) Publish(ctx context.Context, job app.IngestJob) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if _, err := DeclareQueue(ch, p.queueName); err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}

	msg, err := newPublishing(job)
	if err != nil {
		return err
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		msg,
	); err != nil {
		return fmt.Errorf("publish job failed: %w", err)
	}
	return nil
}

func newPublishing(job app.IngestJob) (amqp.Publishing, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal job payload failed: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    job.ID,
		Timestamp:    job.EnqueuedAt,
		Body:         payload,
		DeliveryMode: amqp.Persistent,
	}, nil
}

// DeclareQueue declares the durable, non-exclusive ingest queue.
func DeclareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		nil,
	)
}
