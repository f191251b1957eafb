package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/asyncq/internal/job"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				return
			}

			jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
			_, err := w.executor.Execute(jobCtx, msg.jobID)
			cancel()

			w.acknowledge(workerName, msg, err)
		}
	}
}

// acknowledge settles the AMQP delivery after an execution attempt.
//
// A recorded failure is ACKed too: the database reschedule owns the retry,
// and the due-job poller republishes it when the backoff elapses. Requeueing
// here would double-deliver. Only infrastructure errors, where no transition
// committed, go back to the queue.
func (w *Worker) acknowledge(workerName string, msg *delivery, err error) {
	if err != nil && w.shouldRequeue(err) {
		w.logger.Error("Job attempt did not commit, requeueing",
			slog.String("worker_name", workerName),
			slog.Int64("job_id", msg.jobID),
			slog.String("error", err.Error()),
		)
		if nackErr := msg.amqpMsg.Nack(false, true); nackErr != nil {
			w.logger.Error("Failed to NACK message",
				slog.String("worker_name", workerName),
				slog.Int64("job_id", msg.jobID),
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	if ackErr := msg.amqpMsg.Ack(false); ackErr != nil {
		w.logger.Error("Failed to ACK message",
			slog.String("worker_name", workerName),
			slog.Int64("job_id", msg.jobID),
			slog.String("error", ackErr.Error()),
		)
	}
}

// shouldRequeue reports whether the error left the job without a committed
// transition. Claim conflicts and recorded operation failures are settled
// states; anything else is an infrastructure error worth another delivery.
func (w *Worker) shouldRequeue(err error) bool {
	if errors.Is(err, job.ErrJobAlreadyClaimed) || errors.Is(err, job.ErrJobNotFound) {
		return false
	}

	var execErr *job.ExecutionError
	if errors.As(err, &execErr) {
		return false
	}

	var resolutionErr *job.ResolutionError
	if errors.As(err, &resolutionErr) {
		return false
	}

	return true
}
