package worker

import (
	"context"
	"log/slog"
	"time"
)

// runDuePoller periodically republishes pending jobs whose scheduled time has
// passed. This closes the retry loop: a failed job only carries a database
// reschedule, so something has to notify the queue again when the backoff
// elapses. It also recovers jobs whose original notification was lost.
//
// Republishing a job that is already in flight is harmless; the claim rejects
// the second attempt.
func (w *Worker) runDuePoller(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("Due-job poller started",
		slog.Duration("interval", w.pollInterval),
		slog.Int("batch", w.pollBatch),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.publishDueJobs(ctx)
		}
	}
}

func (w *Worker) publishDueJobs(ctx context.Context) {
	due, err := w.store.DueJobs(ctx, time.Now().UTC(), w.pollBatch)
	if err != nil {
		w.logger.Error("Failed to poll due jobs",
			slog.String("error", err.Error()),
		)
		return
	}
	if len(due) == 0 {
		return
	}

	published := 0
	for _, j := range due {
		if err := w.publisher.PublishJob(ctx, j.ID); err != nil {
			w.logger.Warn("Failed to republish due job",
				slog.Int64("job_id", j.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		published++
	}

	w.logger.Info("Republished due jobs",
		slog.Int("due", len(due)),
		slog.Int("published", published),
	)
}

// runMaintenance drives the slow sweeps: releasing claims left behind by
// crashed invocations and moving old terminal jobs into the archive tables.
func (w *Worker) runMaintenance(ctx context.Context) {
	defer w.wg.Done()

	reclaimTicker := time.NewTicker(w.reclaimAge / 2)
	defer reclaimTicker.Stop()

	archiveTicker := time.NewTicker(w.archiveInterval)
	defer archiveTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return

		case <-reclaimTicker.C:
			cutoff := time.Now().UTC().Add(-w.reclaimAge)
			if _, err := w.store.ReclaimStale(ctx, cutoff); err != nil {
				w.logger.Error("Failed to reclaim stale claims",
					slog.String("error", err.Error()),
				)
			}

		case <-archiveTicker.C:
			cutoff := time.Now().UTC().Add(-w.archiveAge)
			if _, err := w.store.ArchiveTerminal(ctx, cutoff, w.archiveBatch); err != nil {
				w.logger.Error("Failed to archive terminal jobs",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
