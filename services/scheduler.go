package services

import (
	"context"
	"log"
	"time"
)

// StartScheduler triggers an import of every configured feed on a fixed
// interval (IMPORT_INTERVAL_MINUTES, default hourly) until ctx is
// canceled.
func StartScheduler(ctx context.Context, imports *ImportJobService) {
	interval := time.Duration(envInt("IMPORT_INTERVAL_MINUTES", 60)) * time.Minute

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Printf("Import scheduler started (every %s)", interval)
		for {
			select {
			case <-ctx.Done():
				log.Println("Import scheduler stopped")
				return
			case <-ticker.C:
				log.Println("Scheduler triggered: starting periodic import")
				imports.TriggerAll()
			}
		}
	}()
}
