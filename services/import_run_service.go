package services

import (
	"errors"
	"time"

	"job-feed-api/config"
	"job-feed-api/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrImportRunNotFound = errors.New("import run not found")

// ImportRunService owns the lifecycle of import runs: creation, atomic
// counter advancement, and the conditional status transitions that make
// completion detection race-free.
type ImportRunService struct {
	db *gorm.DB
}

func NewImportRunService(db *gorm.DB) *ImportRunService {
	if db == nil {
		db = config.DB
	}
	return &ImportRunService{db: db}
}

// Start creates a run that is already processing.
func (s *ImportRunService) Start(feedURL string) (*models.ImportRun, error) {
	run := &models.ImportRun{
		ID:        uuid.New().String(),
		FeedURL:   feedURL,
		Status:    models.ImportRunStatusProcessing,
		StartedAt: time.Now(),
	}
	if err := s.db.Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (s *ImportRunService) SetTotalFetched(runID string, total int) error {
	res := s.db.Model(&models.ImportRun{}).
		Where("id = ?", runID).
		Update("total_fetched", total)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrImportRunNotFound
	}
	return nil
}

// IncrementCounters advances the run's counters by the given deltas in
// a single UPDATE. The increment happens inside the database, so
// concurrent batch processors never lose updates to each other.
func (s *ImportRunService) IncrementCounters(runID string, newDelta, updatedDelta, failedDelta int) error {
	updates := map[string]interface{}{}
	if newDelta != 0 {
		updates["new_jobs"] = gorm.Expr("new_jobs + ?", newDelta)
	}
	if updatedDelta != 0 {
		updates["updated_jobs"] = gorm.Expr("updated_jobs + ?", updatedDelta)
	}
	if failedDelta != 0 {
		updates["failed_jobs"] = gorm.Expr("failed_jobs + ?", failedDelta)
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.Model(&models.ImportRun{}).
		Where("id = ?", runID).
		Updates(updates).Error
}

// MarkCompleted transitions a processing run to completed. The WHERE
// clause doubles as a compare-and-set: when several processors observe
// the completion predicate at once, exactly one caller gets won=true.
func (s *ImportRunService) MarkCompleted(runID string) (bool, error) {
	return s.transition(runID, models.ImportRunStatusCompleted)
}

// MarkFailed transitions a processing run to failed, single-winner like
// MarkCompleted.
func (s *ImportRunService) MarkFailed(runID string) (bool, error) {
	return s.transition(runID, models.ImportRunStatusFailed)
}

func (s *ImportRunService) transition(runID, status string) (bool, error) {
	now := time.Now()
	res := s.db.Model(&models.ImportRun{}).
		Where("id = ? AND status = ?", runID, models.ImportRunStatusProcessing).
		Updates(map[string]interface{}{
			"status":       status,
			"completed_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AppendErrors records per-record failures on the run's error list.
func (s *ImportRunService) AppendErrors(runID string, errs []models.ImportRunError) error {
	if len(errs) == 0 {
		return nil
	}
	for i := range errs {
		errs[i].ImportRunID = runID
	}
	return s.db.Create(&errs).Error
}

func (s *ImportRunService) GetByID(id string) (*models.ImportRun, error) {
	var run models.ImportRun
	err := s.db.Preload("Errors").Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrImportRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

func (s *ImportRunService) List(limit, offset int) ([]models.ImportRun, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := s.db.Model(&models.ImportRun{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var runs []models.ImportRun
	err := s.db.Preload("Errors").
		Order("started_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}
