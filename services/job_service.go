package services

import (
	"errors"

	"job-feed-api/config"
	"job-feed-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrJobNotFound = errors.New("job not found")

// jobListColumns excludes the full content body from listings.
const jobListColumns = "id, external_id, source_url, title, company, location, job_type, description, link, image_url, published_at, created_at, updated_at"

// JobService is the record store for job postings, keyed by external ID.
type JobService struct {
	db *gorm.DB
}

func NewJobService(db *gorm.DB) *JobService {
	if db == nil {
		db = config.DB
	}
	return &JobService{db: db}
}

// ExistingExternalIDs returns which of the given external IDs already
// have a stored job.
func (s *JobService) ExistingExternalIDs(ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	var rows []models.Job
	err := s.db.Select("external_id").Where("external_id IN ?", ids).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		existing[r.ExternalID] = struct{}{}
	}
	return existing, nil
}

// Upsert inserts the job or, when its external ID is already stored,
// overwrites the mutable columns. Upserting the same record twice
// leaves exactly one row.
func (s *JobService) Upsert(job *models.Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns(models.JobUpdateColumns),
	}).Create(job).Error
}

func (s *JobService) GetByID(id uint) (*models.Job, error) {
	var job models.Job
	if err := s.db.Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (s *JobService) List(limit, offset int) ([]models.Job, int64, error) {
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
	if err := s.db.Model(&models.Job{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []models.Job
	err := s.db.Select(jobListColumns).
		Order("published_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// JobFromParsed maps a normalized feed record onto the stored shape.
func JobFromParsed(feedURL string, p ParsedJob) *models.Job {
	job := &models.Job{
		ExternalID:  p.ExternalID,
		SourceURL:   feedURL,
		Title:       p.Title,
		Company:     p.Company,
		Location:    p.Location,
		JobType:     p.JobType,
		Description: p.Description,
		Content:     p.Content,
		Link:        p.Link,
		PublishedAt: p.PublishedAt,
	}
	if p.ImageURL != "" {
		img := p.ImageURL
		job.ImageURL = &img
	}
	return job
}
