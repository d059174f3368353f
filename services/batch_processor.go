package services

import (
	"encoding/json"
	"fmt"
	"log"

	"job-feed-api/config"
	"job-feed-api/models"

	"gorm.io/gorm"
)

// BatchProcessor consumes one delivered batch at a time. Deliveries are
// at-least-once, so every step tolerates repetition: the upsert is
// idempotent by external ID, and the run counters are advanced at most
// once per logical batch via the counted flag, claimed together with
// the increments in one transaction.
type BatchProcessor struct {
	db   *gorm.DB
	runs *ImportRunService
	jobs *JobService
	hub  *EventHub
}

func NewBatchProcessor(db *gorm.DB, hub *EventHub) *BatchProcessor {
	if db == nil {
		db = config.DB
	}
	return &BatchProcessor{
		db:   db,
		runs: NewImportRunService(db),
		jobs: NewJobService(db),
		hub:  hub,
	}
}

// Process persists the batch's records and advances the owning run.
// A returned error hands the batch back to the queue for its retry
// policy; on the final attempt the whole unit is first accounted as
// failed so the run can still complete.
func (p *BatchProcessor) Process(batch *models.ImportBatch) error {
	var records []ParsedJob
	if err := json.Unmarshal([]byte(batch.Payload), &records); err != nil {
		return p.handleUnitFailure(batch, nil, fmt.Errorf("parse batch payload: %w", err))
	}

	ids := make([]string, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if _, ok := seen[rec.ExternalID]; ok {
			continue
		}
		seen[rec.ExternalID] = struct{}{}
		ids = append(ids, rec.ExternalID)
	}

	existing, err := p.jobs.ExistingExternalIDs(ids)
	if err != nil {
		return p.handleUnitFailure(batch, records, err)
	}

	// Upsert record by record: an individual rejection fails that
	// record only, not the unit.
	newCount, updatedCount := 0, 0
	var recordErrs []models.ImportRunError
	for _, rec := range records {
		if err := p.jobs.Upsert(JobFromParsed(batch.FeedURL, rec)); err != nil {
			log.Printf("Failed to upsert job %q for run %s: %v", rec.ExternalID, batch.ImportRunID, err)
			recordErrs = append(recordErrs, models.ImportRunError{
				ExternalID: rec.ExternalID,
				Title:      rec.Title,
				Reason:     err.Error(),
				ErrorType:  ClassifyImportError(err),
			})
			continue
		}
		if _, ok := existing[rec.ExternalID]; ok {
			updatedCount++
		} else {
			newCount++
			// a second record with the same ID inside this unit updates
			existing[rec.ExternalID] = struct{}{}
		}
	}

	if err := p.applyCounters(batch, newCount, updatedCount, recordErrs); err != nil {
		return p.handleUnitFailure(batch, records, err)
	}

	p.publishProgressAndFinish(batch)

	log.Printf("Batch %d/%d of run %s processed: %d new, %d updated, %d failed",
		batch.BatchIndex+1, batch.TotalBatches, batch.ImportRunID, newCount, updatedCount, len(recordErrs))
	return nil
}

// applyCounters claims the batch's counted flag and advances the run's
// counters in one transaction. A batch that was already counted (a
// redelivery after a crash past this point) changes nothing.
func (p *BatchProcessor) applyCounters(batch *models.ImportBatch, newCount, updatedCount int, recordErrs []models.ImportRunError) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ImportBatch{}).
			Where("id = ? AND counted = ?", batch.ID, false).
			Update("counted", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			log.Printf("Batch %s already counted, skipping counter update", batch.DedupeKey)
			return nil
		}

		runs := NewImportRunService(tx)
		if err := runs.IncrementCounters(batch.ImportRunID, newCount, updatedCount, len(recordErrs)); err != nil {
			return err
		}
		return runs.AppendErrors(batch.ImportRunID, recordErrs)
	})
}

// handleUnitFailure implements the whole-unit failure path. Before the
// final attempt the error is simply re-surfaced for the queue's retry;
// on the final attempt every record in the unit is accounted as failed
// first, so the run still reaches a terminal state.
func (p *BatchProcessor) handleUnitFailure(batch *models.ImportBatch, records []ParsedJob, cause error) error {
	if !batch.IsFinalAttempt() {
		return cause
	}

	errType := ClassifyImportError(cause)
	var recordErrs []models.ImportRunError
	if len(records) > 0 {
		recordErrs = make([]models.ImportRunError, 0, len(records))
		for _, rec := range records {
			recordErrs = append(recordErrs, models.ImportRunError{
				ExternalID: rec.ExternalID,
				Title:      rec.Title,
				Reason:     cause.Error(),
				ErrorType:  errType,
			})
		}
	} else {
		recordErrs = []models.ImportRunError{{
			Reason:    cause.Error(),
			ErrorType: errType,
		}}
	}

	err := p.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ImportBatch{}).
			Where("id = ? AND counted = ?", batch.ID, false).
			Update("counted", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		runs := NewImportRunService(tx)
		if err := runs.IncrementCounters(batch.ImportRunID, 0, 0, batch.RecordCount); err != nil {
			return err
		}
		return runs.AppendErrors(batch.ImportRunID, recordErrs)
	})
	if err != nil {
		log.Printf("Failed to record terminal failure of batch %s: %v", batch.DedupeKey, err)
		return cause
	}

	p.publishProgressAndFinish(batch)
	return cause
}

// publishProgressAndFinish emits a progress event with the run's current
// aggregates and completes the run once every fetched record is
// accounted for. The conditional transition keeps the completed event
// single-shot even when several workers get here at once.
func (p *BatchProcessor) publishProgressAndFinish(batch *models.ImportBatch) {
	run, err := p.runs.GetByID(batch.ImportRunID)
	if err != nil {
		log.Printf("Failed to reload run %s after batch %s: %v", batch.ImportRunID, batch.DedupeKey, err)
		return
	}

	batchIndex := batch.BatchIndex
	totalBatches := batch.TotalBatches
	p.hub.Publish(ImportEvent{
		Type:        EventImportProgress,
		ImportRunID: run.ID,
		Data: ImportEventData{
			NewJobs:      &run.NewJobs,
			UpdatedJobs:  &run.UpdatedJobs,
			FailedJobs:   &run.FailedJobs,
			TotalFetched: &run.TotalFetched,
			BatchIndex:   &batchIndex,
			TotalBatches: &totalBatches,
		},
	})

	if run.Status != models.ImportRunStatusProcessing || run.Processed() < run.TotalFetched {
		return
	}

	won, err := p.runs.MarkCompleted(run.ID)
	if err != nil {
		log.Printf("Failed to complete run %s: %v", run.ID, err)
		return
	}
	if !won {
		return
	}

	p.hub.Publish(ImportEvent{
		Type:        EventImportCompleted,
		ImportRunID: run.ID,
		Data: ImportEventData{
			NewJobs:     &run.NewJobs,
			UpdatedJobs: &run.UpdatedJobs,
			FailedJobs:  &run.FailedJobs,
		},
	})
	log.Printf("Import %s completed: %d new, %d updated, %d failed",
		run.ID, run.NewJobs, run.UpdatedJobs, run.FailedJobs)
}
