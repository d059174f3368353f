package models

import "time"

const (
	ImportBatchStatusWaiting   = "waiting"
	ImportBatchStatusActive    = "active"
	ImportBatchStatusCompleted = "completed"
	ImportBatchStatusFailed    = "failed"
)

// ImportBatch is one durable unit of work: a fixed-size slice of parsed
// records, serialized as JSON, delivered at-least-once to a worker.
// DedupeKey ({runID}-batch-{index}) prevents duplicate enqueue of the
// same logical batch. Counted flips exactly once, guarding the run's
// counters against redelivery double-counting.
type ImportBatch struct {
	ID uint `json:"id" gorm:"primaryKey;autoIncrement"`

	ImportRunID  string `json:"import_run_id" gorm:"column:import_run_id;type:char(36);index;not null"`
	DedupeKey    string `json:"dedupe_key" gorm:"column:dedupe_key;type:varchar(64);uniqueIndex;not null"`
	BatchIndex   int    `json:"batch_index" gorm:"column:batch_index;not null"`
	TotalBatches int    `json:"total_batches" gorm:"column:total_batches;not null"`
	FeedURL      string `json:"feed_url" gorm:"column:feed_url;type:varchar(1024);not null"`
	RecordCount  int    `json:"record_count" gorm:"column:record_count;not null"`
	Payload      string `json:"-" gorm:"type:longtext;not null"`

	Status        string     `json:"status" gorm:"type:enum('waiting','active','completed','failed');not null;default:'waiting';index"`
	Attempts      int        `json:"attempts" gorm:"not null;default:0"`
	MaxAttempts   int        `json:"max_attempts" gorm:"column:max_attempts;not null;default:3"`
	NextAttemptAt time.Time  `json:"next_attempt_at" gorm:"column:next_attempt_at;index;not null"`
	ClaimedAt     *time.Time `json:"claimed_at" gorm:"column:claimed_at"`
	Counted       bool       `json:"counted" gorm:"not null;default:false"`
	LastError     string     `json:"last_error,omitempty" gorm:"column:last_error;type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (ImportBatch) TableName() string { return "import_batches" }

// IsFinalAttempt reports whether the current delivery is the last one
// the queue will make for this batch.
func (b *ImportBatch) IsFinalAttempt() bool {
	return b.Attempts >= b.MaxAttempts
}
