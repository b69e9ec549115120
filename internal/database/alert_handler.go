package database

import (
	"fmt"
	"time"

	"vigil/internal/domain"

	"gorm.io/gorm"
)

// InsertAlert appends one immutable alert to the evidence ledger.
func InsertAlert(db *gorm.DB, alert *domain.Alert) error {
	if db == nil {
		db = DB
	}
	if db == nil {
		return fmt.Errorf("database not initialised")
	}
	return db.Create(alert).Error
}

// SumRecentAlertScores sums the raw scores of all alerts for ip observed at
// or after cutoff, excluding the alert identified by excludeID. The exclusion
// keeps the in-flight alert out of the historical sum; its contribution is
// added separately after trust weighting.
func SumRecentAlertScores(db *gorm.DB, ip string, cutoff time.Time, excludeID uint64) (float64, error) {
	if db == nil {
		db = DB
	}
	if db == nil {
		return 0, fmt.Errorf("database not initialised")
	}

	var total float64
	err := db.Model(&domain.Alert{}).
		Select("COALESCE(SUM(score), 0)").
		Where("source_ip = ? AND timestamp >= ? AND id <> ?", ip, cutoff, excludeID).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum recent alerts for %s: %w", ip, err)
	}
	return total, nil
}
