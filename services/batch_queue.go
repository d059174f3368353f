package services

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"job-feed-api/config"
	"job-feed-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultBatchSize         = 100
	DefaultWorkerConcurrency = 5

	batchMaxAttempts  = 3
	batchBackoffBase  = 2 * time.Second
	batchPollInterval = 500 * time.Millisecond
	batchLeaseTimeout = 60 * time.Second

	// bounded retention of finished queue entries
	keepCompletedBatches = 50
	keepFailedBatches    = 100
)

// BatchQueue is a database-backed, at-least-once work queue. Batches
// are claimed by conditional update, retried with exponential backoff
// up to MaxAttempts, and reclaimed when a worker dies mid-claim (lease
// timeout). Delivery order across workers is not guaranteed.
type BatchQueue struct {
	db          *gorm.DB
	handler     func(*models.ImportBatch) error
	concurrency int

	wg sync.WaitGroup
}

func NewBatchQueue(db *gorm.DB, handler func(*models.ImportBatch) error, concurrency int) *BatchQueue {
	if db == nil {
		db = config.DB
	}
	if concurrency <= 0 {
		concurrency = DefaultWorkerConcurrency
	}
	return &BatchQueue{db: db, handler: handler, concurrency: concurrency}
}

// Enqueue stores one batch as an independent unit of work. The dedupe
// key makes enqueueing the same logical batch twice a no-op.
func (q *BatchQueue) Enqueue(runID, feedURL string, batchIndex, totalBatches int, records []ParsedJob) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return err
	}

	batch := &models.ImportBatch{
		ImportRunID:   runID,
		DedupeKey:     BatchDedupeKey(runID, batchIndex),
		BatchIndex:    batchIndex,
		TotalBatches:  totalBatches,
		FeedURL:       feedURL,
		RecordCount:   len(records),
		Payload:       string(payload),
		Status:        models.ImportBatchStatusWaiting,
		MaxAttempts:   batchMaxAttempts,
		NextAttemptAt: time.Now(),
	}
	return q.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedupe_key"}},
		DoNothing: true,
	}).Create(batch).Error
}

// Start launches the worker pool. Workers poll until ctx is canceled;
// Wait blocks until they have drained.
func (q *BatchQueue) Start(ctx context.Context) {
	for i := 0; i < q.concurrency; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	log.Printf("Batch worker pool started with concurrency %d", q.concurrency)
}

func (q *BatchQueue) Wait() {
	q.wg.Wait()
}

func (q *BatchQueue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		batch, err := q.claimNext()
		if err != nil {
			log.Printf("Worker %d failed to claim batch: %v", id, err)
		}
		if batch == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(batchPollInterval):
			}
			continue
		}

		if err := q.handler(batch); err != nil {
			q.nack(batch, err)
		} else {
			q.ack(batch)
		}
	}
}

// claimNext picks one due batch and claims it with a conditional
// update, so two workers can never hold the same delivery. Batches
// whose claim went stale (worker crash) are redelivered.
func (q *BatchQueue) claimNext() (*models.ImportBatch, error) {
	now := time.Now()
	staleBefore := now.Add(-batchLeaseTimeout)

	var candidates []models.ImportBatch
	err := q.db.
		Where("(status = ? AND next_attempt_at <= ?) OR (status = ? AND claimed_at <= ?)",
			models.ImportBatchStatusWaiting, now,
			models.ImportBatchStatusActive, staleBefore).
		Order("id ASC").
		Limit(5).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		candidate := candidates[i]

		var res *gorm.DB
		if candidate.Status == models.ImportBatchStatusWaiting {
			res = q.db.Model(&models.ImportBatch{}).
				Where("id = ? AND status = ?", candidate.ID, models.ImportBatchStatusWaiting).
				Updates(map[string]interface{}{
					"status":     models.ImportBatchStatusActive,
					"claimed_at": now,
					"attempts":   gorm.Expr("attempts + ?", 1),
				})
		} else {
			res = q.db.Model(&models.ImportBatch{}).
				Where("id = ? AND status = ? AND claimed_at <= ?",
					candidate.ID, models.ImportBatchStatusActive, staleBefore).
				Updates(map[string]interface{}{
					"claimed_at": now,
					"attempts":   gorm.Expr("attempts + ?", 1),
				})
		}
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			continue // lost the race, try the next candidate
		}

		candidate.Status = models.ImportBatchStatusActive
		candidate.Attempts++
		candidate.ClaimedAt = &now
		return &candidate, nil
	}

	return nil, nil
}

func (q *BatchQueue) ack(batch *models.ImportBatch) {
	err := q.db.Model(&models.ImportBatch{}).
		Where("id = ?", batch.ID).
		Update("status", models.ImportBatchStatusCompleted).Error
	if err != nil {
		log.Printf("Failed to ack batch %s: %v", batch.DedupeKey, err)
		return
	}
	q.pruneFinished(models.ImportBatchStatusCompleted, keepCompletedBatches)
}

// nack reschedules the batch with exponential backoff (2s, 4s) or marks
// it failed once its attempts are spent.
func (q *BatchQueue) nack(batch *models.ImportBatch, cause error) {
	updates := map[string]interface{}{"last_error": cause.Error()}
	if batch.Attempts >= batch.MaxAttempts {
		updates["status"] = models.ImportBatchStatusFailed
		log.Printf("Batch %s failed permanently after %d attempts: %v", batch.DedupeKey, batch.Attempts, cause)
	} else {
		updates["status"] = models.ImportBatchStatusWaiting
		updates["next_attempt_at"] = time.Now().Add(batchBackoff(batch.Attempts))
		log.Printf("Batch %s failed (attempt %d/%d), retrying: %v", batch.DedupeKey, batch.Attempts, batch.MaxAttempts, cause)
	}

	err := q.db.Model(&models.ImportBatch{}).
		Where("id = ?", batch.ID).
		Updates(updates).Error
	if err != nil {
		log.Printf("Failed to reschedule batch %s: %v", batch.DedupeKey, err)
		return
	}
	if batch.Attempts >= batch.MaxAttempts {
		q.pruneFinished(models.ImportBatchStatusFailed, keepFailedBatches)
	}
}

// batchBackoff returns the delay before redelivery after the given
// number of attempts: 2s after the first, 4s after the second.
func batchBackoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return batchBackoffBase * time.Duration(1<<(attempts-1))
}

// pruneFinished keeps only the newest entries in a terminal status.
func (q *BatchQueue) pruneFinished(status string, keep int) {
	var ids []uint
	err := q.db.Model(&models.ImportBatch{}).
		Where("status = ?", status).
		Order("id DESC").
		Offset(keep).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return
	}
	if err := q.db.Where("status = ? AND id <= ?", status, ids[0]).
		Delete(&models.ImportBatch{}).Error; err != nil {
		log.Printf("Failed to prune %s batches: %v", status, err)
	}
}
