package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"finrag/internal/app"
	"finrag/internal/platform/rabbitmq"
)

// JobProcessor runs one dequeued ingest job.
type JobProcessor interface {
	Process(ctx context.Context, job app.IngestJob) error
}

type IngestWorker struct {
	conn      *amqp.Connection
	processor JobProcessor
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, processor JobProcessor, queueName string) *IngestWorker {
	return &IngestWorker{
		conn:      conn,
		processor: processor,
		queueName: queueName,
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}
	// Ingestion is slow and rate limited; take one job at a time.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	log.Info().Str("queue", w.queueName).Msg("ingest worker started")
	return nil
}

func (w *IngestWorker) handle(ctx context.Context, d amqp.Delivery) {
	if err := HandleDelivery(ctx, w.processor, d.Body); err != nil {
		// Interrupted by shutdown: hand the job back to the broker.
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("message_id", d.MessageId).Msg("ingest job interrupted, requeueing")
			_ = d.Nack(false, true)
			return
		}
		log.Error().Err(err).Str("message_id", d.MessageId).Msg("ingest job failed")
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// HandleDelivery decodes a queue message body and runs the job.
func HandleDelivery(ctx context.Context, processor JobProcessor, body []byte) error {
	var job app.IngestJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("decode ingest job failed: %w", err)
	}
	if job.ID == "" {
		return fmt.Errorf("decode ingest job failed: missing id")
	}
	log.Info().Str("job_id", job.ID).Str("ticker", job.Ticker).Msg("processing ingest job")
	return processor.Process(ctx, job)
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
