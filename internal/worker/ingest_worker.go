// Package worker runs background consumers over RabbitMQ. The ingest worker
// decouples slow chunk/embed/index work from the HTTP request path; request
// handlers only enqueue.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"ragstack/internal/platform/rabbitmq"
)

// IngestRunner runs the ingestion pipeline for one RAG instance.
type IngestRunner interface {
	Run(ctx context.Context, instanceID uint) error
}

// AnswerInvalidator drops cached answers for a collection once its content
// has changed.
type AnswerInvalidator interface {
	Invalidate(ctx context.Context, collection string) error
}

type IngestWorker struct {
	conn      *amqp.Connection
	pipeline  IngestRunner
	cache     AnswerInvalidator
	queueName string
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, pipeline IngestRunner, cache AnswerInvalidator, queueName string, logger *slog.Logger) *IngestWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestWorker{
		conn:      conn,
		pipeline:  pipeline,
		cache:     cache,
		queueName: queueName,
		logger:    logger,
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

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	// one ingestion run at a time per worker; documents parallelise inside
	// the pipeline
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

	return nil
}

// handle runs one ingest job. Pipeline-level failures (missing instance,
// metadata store down) are logged and the message dropped without requeue:
// per-document failures are already recorded on the document rows, and jobs
// are never retried through the queue.
func (w *IngestWorker) handle(ctx context.Context, d amqp.Delivery) {
	var job rabbitmq.IngestJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		w.logger.Error("decode ingest job failed", "error", err)
		_ = d.Nack(false, false)
		return
	}

	w.logger.Info("ingest job received",
		"rag_instance_id", job.RAGInstanceID,
		"collection", job.Collection,
		"user_id", job.UserID)

	if err := w.pipeline.Run(ctx, job.RAGInstanceID); err != nil {
		w.logger.Error("ingest job failed",
			"rag_instance_id", job.RAGInstanceID,
			"error", err)
		_ = d.Nack(false, false)
		return
	}

	// freshly indexed content must not be shadowed by older cached answers
	if w.cache != nil {
		if err := w.cache.Invalidate(ctx, job.Collection); err != nil {
			w.logger.Warn("invalidate answer cache failed", "collection", job.Collection, "error", err)
		}
	}

	_ = d.Ack(false)
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
