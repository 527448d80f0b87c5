package notify

import (
	"context"
	"database/sql"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/seamline/ingest/logger"
)

// Queue enqueues notification jobs for a batch's recipient workers. A
// failure to enqueue one worker is logged and does not block the others;
// a completed batch must never be rolled back because a notification
// could not be written.
type Queue struct {
	store  *Store
	logger *zap.SugaredLogger
}

// NewQueue creates a queue over the given database.
func NewQueue(db *sql.DB) *Queue {
	return &Queue{
		store:  NewStore(db),
		logger: logger.ComponentLogger("notify"),
	}
}

// Store exposes the underlying job store.
func (q *Queue) Store() *Store { return q.store }

// Enqueue writes one job per worker carrying the summary payload. It
// returns the workers that were successfully enqueued.
func (q *Queue) Enqueue(ctx context.Context, workers []string, source string, summary interface{}) []string {
	if len(workers) == 0 {
		return nil
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		q.logger.Errorw("Failed to encode notify payload",
			logger.FieldBatch, source,
			"error", err,
		)
		return nil
	}

	var enqueued []string
	for _, worker := range workers {
		job, err := NewJob(worker, source, payload)
		if err != nil {
			q.logger.Warnw("Skipping notify worker",
				"worker", worker,
				"error", err,
			)
			continue
		}
		if err := q.store.CreateJob(ctx, job); err != nil {
			q.logger.Errorw("Failed to enqueue notify job",
				"worker", worker,
				logger.FieldBatch, source,
				"error", err,
			)
			continue
		}
		q.logger.Infow("Enqueued notify job",
			"worker", worker,
			"job_id", job.ID,
			logger.FieldBatch, source,
		)
		enqueued = append(enqueued, worker)
	}
	return enqueued
}
