package db

import (
	"log"
	"time"

	"gorm.io/gorm"
)

// runRetentionOnce performs a single pass of retention cleanup, deleting
// pipeline run log rows older than the configured window.
func runRetentionOnce(gdb *gorm.DB, days int) error {
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	return gdb.Where("created_at <= ?", cutoff).Delete(&PipelineRun{}).Error
}

// StartRetentionWorker launches a background goroutine that prunes the
// pipeline run log once at startup and then once per day.
func StartRetentionWorker(gdb *gorm.DB, days int) {
	go func() {
		if err := runRetentionOnce(gdb, days); err != nil {
			log.Printf("run log retention error (startup): %v", err)
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			if err := runRetentionOnce(gdb, days); err != nil {
				log.Printf("run log retention error: %v", err)
			}
		}
	}()
}
