package routes

import (
	"job-feed-api/controllers"
	"job-feed-api/middleware"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine) {
	// API v1 group
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"message": "Job Feed API is running",
			})
		})

		importGroup := v1.Group("/import")
		{
			importGroup.GET("/logs", controllers.GetImportRuns)
			importGroup.GET("/logs/:id", controllers.GetImportRun)
			importGroup.GET("/feeds", controllers.GetFeeds)

			// live updates for dashboard observers
			importGroup.GET("/events", controllers.StreamEvents)
			importGroup.GET("/events/status", controllers.EventsStatus)

			// triggers can be locked down with ADMIN_JWT_SECRET
			importGroup.POST("/trigger", middleware.AdminAuthMiddleware(), controllers.TriggerImport)
			importGroup.POST("/trigger-all", middleware.AdminAuthMiddleware(), controllers.TriggerAllImports)
		}

		jobs := v1.Group("/jobs")
		{
			jobs.GET("", controllers.GetJobs)
			jobs.GET("/:id", controllers.GetJob)
		}
	}
}
