// Package worker runs the consuming side of the queue: an AMQP consumer
// dispatches job notifications to a goroutine pool driving the execution
// engine, while background sweeps republish due retries, release stale
// claims and archive old terminal jobs.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/asyncq/internal/engine"
	"github.com/cuongbtq/asyncq/internal/queue"
	"github.com/cuongbtq/asyncq/internal/storage"
	"github.com/cuongbtq/asyncq/shared/rabbitmq"
)

// Config holds worker configuration
type Config struct {
	Logger       *slog.Logger
	Store        *storage.Storage
	RabbitClient *rabbitmq.Client
	Executor     *engine.Executor
	Publisher    queue.Publisher

	Concurrency     int
	JobBuffer       int
	JobTimeout      time.Duration
	PrefetchCount   int
	PollInterval    time.Duration
	PollBatch       int
	ReclaimAge      time.Duration
	ArchiveInterval time.Duration
	ArchiveAge      time.Duration
	ArchiveBatch    int
}

// delivery pairs a parsed job id with the AMQP delivery it arrived on so the
// pool can ack it after the execution transition committed.
type delivery struct {
	jobID   int64
	amqpMsg amqp.Delivery
}

// Worker represents the background job worker
type Worker struct {
	logger       *slog.Logger
	store        *storage.Storage
	rabbitClient *rabbitmq.Client
	executor     *engine.Executor
	publisher    queue.Publisher

	workerID        string
	concurrency     int
	jobTimeout      time.Duration
	prefetchCount   int
	pollInterval    time.Duration
	pollBatch       int
	reclaimAge      time.Duration
	archiveInterval time.Duration
	archiveAge      time.Duration
	archiveBatch    int

	jobsChan chan *delivery
	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	jobBuffer := cfg.JobBuffer
	if jobBuffer <= 0 {
		jobBuffer = cfg.Concurrency
	}

	return &Worker{
		logger:          cfg.Logger,
		store:           cfg.Store,
		rabbitClient:    cfg.RabbitClient,
		executor:        cfg.Executor,
		publisher:       cfg.Publisher,
		workerID:        uuid.New().String(),
		concurrency:     cfg.Concurrency,
		jobTimeout:      cfg.JobTimeout,
		prefetchCount:   cfg.PrefetchCount,
		pollInterval:    cfg.PollInterval,
		pollBatch:       cfg.PollBatch,
		reclaimAge:      cfg.ReclaimAge,
		archiveInterval: cfg.ArchiveInterval,
		archiveAge:      cfg.ArchiveAge,
		archiveBatch:    cfg.ArchiveBatch,
		jobsChan:        make(chan *delivery, jobBuffer),
		stopChan:        make(chan struct{}),
	}
}

// Start begins processing jobs and blocks until ctx is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	w.wg.Add(3)
	go w.startMessageDispatcher(ctx, deliveries)
	go w.runDuePoller(ctx)
	go w.runMaintenance(ctx)

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")
	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...",
		slog.String("worker_id", w.workerID),
	)
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
