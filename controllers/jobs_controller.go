package controllers

import (
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"

	"job-feed-api/services"

	"github.com/gin-gonic/gin"
)

// GetJobs lists stored job postings, newest publication first. The full
// content body is excluded from listings.
func GetJobs(c *gin.Context) {
	page, limit := pageParams(c)

	jobs, total, err := jobService.List(limit, (page-1)*limit)
	if err != nil {
		log.Printf("Error fetching jobs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch jobs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": jobs,
		"pagination": gin.H{
			"page":        page,
			"limit":       limit,
			"total":       total,
			"total_pages": int(math.Ceil(float64(total) / float64(limit))),
		},
	})
}

// GetJob returns one stored job posting including its content.
func GetJob(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job id"})
		return
	}

	job, err := jobService.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, services.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		log.Printf("Error fetching job: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch job"})
		return
	}

	c.JSON(http.StatusOK, job)
}
