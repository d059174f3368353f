package controllers

import (
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"

	"job-feed-api/models"
	"job-feed-api/services"
	"job-feed-api/utils"

	"github.com/gin-gonic/gin"
)

var (
	importService *services.ImportJobService
	runService    *services.ImportRunService
	jobService    *services.JobService
	eventHub      *services.EventHub
)

// Init wires the controller package to the service instances built in
// main. Must be called before routes are served.
func Init(imports *services.ImportJobService, runs *services.ImportRunService, jobs *services.JobService, hub *services.EventHub) {
	importService = imports
	runService = runs
	jobService = jobs
	eventHub = hub
}

type triggerImportRequest struct {
	FeedURL string `json:"feedUrl" binding:"required"`
}

// TriggerImport starts an import run for one feed URL.
func TriggerImport(c *gin.Context) {
	var req triggerImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "feedUrl is required"})
		return
	}
	if !utils.ValidateFeedURL(req.FeedURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "feedUrl must be a valid http(s) URL"})
		return
	}

	runID, err := importService.TriggerImport(req.FeedURL)
	if err != nil {
		log.Printf("Error triggering import for %s: %v", req.FeedURL, err)
		if runID != "" {
			// the run exists and records the failure
			c.JSON(http.StatusBadGateway, gin.H{"error": "Import failed", "import_run_id": runID})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to trigger import"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Import started", "import_run_id": runID})
}

// TriggerAllImports starts a run for every configured feed without
// waiting for them.
func TriggerAllImports(c *gin.Context) {
	feeds := services.FeedSources()
	go importService.TriggerAll()
	c.JSON(http.StatusOK, gin.H{"message": "Import started for all feeds", "feed_count": len(feeds)})
}

// GetImportRuns lists runs, newest first, with pagination metadata.
func GetImportRuns(c *gin.Context) {
	page, limit := pageParams(c)

	runs, total, err := runService.List(limit, (page-1)*limit)
	if err != nil {
		log.Printf("Error fetching import runs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch import runs"})
		return
	}

	data := make([]gin.H, 0, len(runs))
	for i := range runs {
		data = append(data, runSummary(&runs[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"data": data,
		"pagination": gin.H{
			"page":        page,
			"limit":       limit,
			"total":       total,
			"total_pages": int(math.Ceil(float64(total) / float64(limit))),
		},
	})
}

// GetImportRun returns one run with its full error list.
func GetImportRun(c *gin.Context) {
	run, err := runService.GetByID(c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrImportRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Import run not found"})
			return
		}
		log.Printf("Error fetching import run: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch import run"})
		return
	}

	c.JSON(http.StatusOK, runSummary(run))
}

// GetFeeds lists the configured feed sources.
func GetFeeds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"feeds": services.FeedSources()})
}

func runSummary(run *models.ImportRun) gin.H {
	errs := run.Errors
	if errs == nil {
		errs = []models.ImportRunError{}
	}
	return gin.H{
		"id":           run.ID,
		"feed_url":     run.FeedURL,
		"status":       run.Status,
		"started_at":   run.StartedAt,
		"completed_at": run.CompletedAt,
		"total":        run.TotalFetched,
		"new":          run.NewJobs,
		"updated":      run.UpdatedJobs,
		"failed":       run.FailedJobs,
		"errors":       errs,
	}
}

func pageParams(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
