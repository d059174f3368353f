package models

import "time"

// Job represents one stored job posting. ExternalID is the sole
// deduplication key: re-importing the same ID overwrites the mutable
// fields instead of creating a second row.
type Job struct {
	ID uint `json:"id" gorm:"primaryKey;autoIncrement"`

	ExternalID  string    `json:"external_id" gorm:"column:external_id;type:varchar(512);uniqueIndex;not null"`
	SourceURL   string    `json:"source_url" gorm:"column:source_url;type:varchar(1024);not null"`
	Title       string    `json:"title" gorm:"type:varchar(512);not null"`
	Company     string    `json:"company" gorm:"type:varchar(255)"`
	Location    string    `json:"location" gorm:"type:varchar(255)"`
	JobType     string    `json:"job_type" gorm:"column:job_type;type:varchar(64)"`
	Description string    `json:"description" gorm:"type:text"`
	Content     string    `json:"content,omitempty" gorm:"type:longtext"`
	Link        string    `json:"link" gorm:"type:varchar(1024)"`
	ImageURL    *string   `json:"image_url" gorm:"column:image_url;type:varchar(1024)"`
	PublishedAt time.Time `json:"published_at" gorm:"column:published_at;index;not null"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Job) TableName() string { return "jobs" }

// JobUpdateColumns lists the mutable columns overwritten on re-import.
// external_id is deliberately absent.
var JobUpdateColumns = []string{
	"source_url", "title", "company", "location", "job_type",
	"description", "content", "link", "image_url", "published_at",
}
