package services

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"job-feed-api/config"
	"job-feed-api/models"

	"gorm.io/gorm"
)

// DefaultFeedSources are imported when FEED_SOURCES is not configured.
var DefaultFeedSources = []string{
	"https://jobicy.com/?feed=job_feed",
	"https://jobicy.com/?feed=job_feed&job_categories=smm&job_types=full-time",
	"https://jobicy.com/?feed=job_feed&job_categories=seller&job_types=full-time&search_region=france",
	"https://jobicy.com/?feed=job_feed&job_categories=design-multimedia",
	"https://jobicy.com/?feed=job_feed&job_categories=data-science",
	"https://jobicy.com/?feed=job_feed&job_categories=copywriting",
	"https://jobicy.com/?feed=job_feed&job_categories=business",
	"https://jobicy.com/?feed=job_feed&job_categories=management",
	"https://www.higheredjobs.com/rss/articleFeed.cfm",
}

// ImportJobService orchestrates one import run: create the run, fetch
// and normalize the feed, split it into batches, and enqueue one unit
// of work per batch. Batch retry is owned by the queue, not by this
// service.
type ImportJobService struct {
	db        *gorm.DB
	runs      *ImportRunService
	fetcher   *FeedFetcher
	queue     *BatchQueue
	hub       *EventHub
	batchSize int
}

func NewImportJobService(db *gorm.DB, fetcher *FeedFetcher, queue *BatchQueue, hub *EventHub) *ImportJobService {
	if db == nil {
		db = config.DB
	}
	return &ImportJobService{
		db:        db,
		runs:      NewImportRunService(db),
		fetcher:   fetcher,
		queue:     queue,
		hub:       hub,
		batchSize: envInt("BATCH_SIZE", DefaultBatchSize),
	}
}

// FeedSources returns the configured feed URLs.
func FeedSources() []string {
	raw := strings.TrimSpace(os.Getenv("FEED_SOURCES"))
	if raw == "" {
		return DefaultFeedSources
	}
	var feeds []string
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			feeds = append(feeds, f)
		}
	}
	if len(feeds) == 0 {
		return DefaultFeedSources
	}
	return feeds
}

// TriggerImport starts a run for one feed and returns its ID. A fetch
// or parse failure marks the run failed; an empty feed completes it
// immediately. Both outcomes return the run ID the caller can inspect.
func (s *ImportJobService) TriggerImport(feedURL string) (string, error) {
	run, err := s.runs.Start(feedURL)
	if err != nil {
		return "", err
	}

	s.hub.Publish(ImportEvent{
		Type:        EventImportStarted,
		ImportRunID: run.ID,
		Data:        ImportEventData{FeedURL: feedURL},
	})

	body, err := s.fetcher.Fetch(feedURL)
	if err != nil {
		return run.ID, s.failRun(run, err)
	}

	jobs, err := ParseFeed(body, time.Now())
	if err != nil {
		return run.ID, s.failRun(run, err)
	}

	if len(jobs) == 0 {
		// an import with no matching records is not an error
		if _, err := s.runs.MarkCompleted(run.ID); err != nil {
			return run.ID, err
		}
		var zero uint
		s.hub.Publish(ImportEvent{
			Type:        EventImportCompleted,
			ImportRunID: run.ID,
			Data:        ImportEventData{NewJobs: &zero, UpdatedJobs: &zero, FailedJobs: &zero},
		})
		log.Printf("Queued 0 jobs for run %s (marked as completed)", run.ID)
		return run.ID, nil
	}

	if err := s.runs.SetTotalFetched(run.ID, len(jobs)); err != nil {
		return run.ID, s.failRun(run, err)
	}

	chunks := ChunkJobs(jobs, s.batchSize)
	for i, chunk := range chunks {
		if err := s.queue.Enqueue(run.ID, feedURL, i, len(chunks), chunk); err != nil {
			// the queue substrate owns redelivery; the dispatcher does not retry
			log.Printf("Failed to enqueue batch %d of run %s: %v", i, run.ID, err)
		}
	}

	log.Printf("Queued %d jobs in %d batches for run %s (batch size: %d)",
		len(jobs), len(chunks), run.ID, s.batchSize)
	return run.ID, nil
}

// TriggerAll starts one run per configured feed, logging failures
// without aborting the loop. Returns the number of feeds triggered.
func (s *ImportJobService) TriggerAll() int {
	feeds := FeedSources()
	log.Printf("Starting import for all %d feeds", len(feeds))

	for _, feedURL := range feeds {
		if _, err := s.TriggerImport(feedURL); err != nil {
			log.Printf("Failed to import %s: %v", feedURL, err)
		}
	}
	return len(feeds)
}

func (s *ImportJobService) failRun(run *models.ImportRun, cause error) error {
	if _, err := s.runs.MarkFailed(run.ID); err != nil {
		log.Printf("Failed to mark run %s failed: %v", run.ID, err)
	}
	appendErr := s.runs.AppendErrors(run.ID, []models.ImportRunError{{
		Reason:    cause.Error(),
		ErrorType: ClassifyImportError(cause),
	}})
	if appendErr != nil {
		log.Printf("Failed to record error for run %s: %v", run.ID, appendErr)
	}

	s.hub.Publish(ImportEvent{
		Type:        EventImportFailed,
		ImportRunID: run.ID,
		Data:        ImportEventData{FeedURL: run.FeedURL, Error: cause.Error()},
	})

	sendFailureAlert(run.FeedURL, run.ID, cause)
	return cause
}

// sendFailureAlert mails the configured recipients about a failed run.
// Best effort only: alerting must never fail an import request.
func sendFailureAlert(feedURL, runID string, cause error) {
	recipients := strings.TrimSpace(os.Getenv("ALERT_EMAIL"))
	if recipients == "" || !config.MailConfigured() {
		return
	}

	to := strings.Split(recipients, ",")
	for i := range to {
		to[i] = strings.TrimSpace(to[i])
	}

	subject := fmt.Sprintf("Feed import failed: %s", feedURL)
	body := fmt.Sprintf("<p>Import run <b>%s</b> for feed <a href=%q>%s</a> failed:</p><pre>%s</pre>",
		runID, feedURL, feedURL, cause.Error())
	if err := config.SendMail(to, subject, body); err != nil {
		log.Printf("Failed to send import failure alert: %v", err)
	}
}

func envInt(name string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(name)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
