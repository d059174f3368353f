package models

import "time"

const (
	ImportRunStatusPending    = "pending"
	ImportRunStatusProcessing = "processing"
	ImportRunStatusCompleted  = "completed"
	ImportRunStatusFailed     = "failed"
)

const (
	ImportErrorTypeValidation = "validation"
	ImportErrorTypeDatabase   = "database"
	ImportErrorTypeParse      = "parse"
	ImportErrorTypeNetwork    = "network"
	ImportErrorTypeUnknown    = "unknown"
)

// ImportRun is one feed-fetch attempt. Counters are only ever advanced
// through atomic increments (see ImportRunService.IncrementCounters);
// the status moves pending→processing→{completed,failed} and never back.
type ImportRun struct {
	ID string `json:"id" gorm:"primaryKey;type:char(36)"`

	FeedURL     string     `json:"feed_url" gorm:"column:feed_url;type:varchar(1024);not null"`
	Status      string     `json:"status" gorm:"type:enum('pending','processing','completed','failed');not null;default:'pending';index"`
	StartedAt   time.Time  `json:"started_at" gorm:"column:started_at;index;not null"`
	CompletedAt *time.Time `json:"completed_at" gorm:"column:completed_at"`

	TotalFetched uint `json:"total_fetched" gorm:"column:total_fetched;not null;default:0"`
	NewJobs      uint `json:"new_jobs" gorm:"column:new_jobs;not null;default:0"`
	UpdatedJobs  uint `json:"updated_jobs" gorm:"column:updated_jobs;not null;default:0"`
	FailedJobs   uint `json:"failed_jobs" gorm:"column:failed_jobs;not null;default:0"`

	Errors []ImportRunError `json:"errors,omitempty" gorm:"foreignKey:ImportRunID"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (ImportRun) TableName() string { return "import_runs" }

// Processed returns how many fetched records have been accounted for,
// successfully or not.
func (r *ImportRun) Processed() uint {
	return r.NewJobs + r.UpdatedJobs + r.FailedJobs
}

// ImportRunError is one recorded failure within a run, detailed enough
// to diagnose without reading logs.
type ImportRunError struct {
	ID          uint   `json:"-" gorm:"primaryKey;autoIncrement"`
	ImportRunID string `json:"-" gorm:"column:import_run_id;type:char(36);index;not null"`

	ExternalID string `json:"external_id,omitempty" gorm:"column:external_id;type:varchar(512)"`
	Title      string `json:"title,omitempty" gorm:"type:varchar(512)"`
	Reason     string `json:"reason" gorm:"type:text;not null"`
	ErrorType  string `json:"error_type" gorm:"column:error_type;type:enum('validation','database','parse','network','unknown');not null;default:'unknown'"`

	CreatedAt time.Time `json:"-" gorm:"column:created_at;autoCreateTime"`
}

func (ImportRunError) TableName() string { return "import_run_errors" }
