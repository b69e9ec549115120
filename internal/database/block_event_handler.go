package database

import (
	"fmt"
	"time"

	"vigil/internal/domain"

	"gorm.io/gorm"
)

// CountBlockEvents returns the number of prior confirmed blocks for ip. This
// is the authoritative offense count: it only grows on actual enforcement,
// never on raw report volume.
func CountBlockEvents(db *gorm.DB, ip string) (int64, error) {
	if db == nil {
		db = DB
	}
	if db == nil {
		return 0, fmt.Errorf("database not initialised")
	}

	var count int64
	err := db.Model(&domain.BlockEvent{}).Where("ip = ?", ip).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count block events for %s: %w", ip, err)
	}
	return count, nil
}

// InsertBlockEvent appends one enforcement record. Rows are never updated.
func InsertBlockEvent(db *gorm.DB, event *domain.BlockEvent) error {
	if db == nil {
		db = DB
	}
	if db == nil {
		return fmt.Errorf("database not initialised")
	}
	return db.Create(event).Error
}

func GetRecentBlockEvents(limit int) ([]domain.BlockEvent, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialised")
	}
	if limit <= 0 {
		limit = 100
	}

	var events []domain.BlockEvent
	err := DB.Order("blocked_at DESC").Limit(limit).Find(&events).Error
	return events, err
}

// ListBlocksExpiredBetween returns the addresses whose block expiry falls in
// (since, until]. The expiry sweep uses this to lift firewall entries; the
// ledger rows themselves stay untouched.
func ListBlocksExpiredBetween(since, until time.Time) ([]string, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialised")
	}

	var ips []string
	err := DB.Model(&domain.BlockEvent{}).
		Distinct("ip").
		Where("expires_at IS NOT NULL AND expires_at > ? AND expires_at <= ?", since, until).
		Pluck("ip", &ips).Error
	return ips, err
}

// HasActiveBlock reports whether ip still has an unexpired block. The
// coordinator uses it to avoid piling a second BlockEvent onto an address
// that is already banned; the expiry sweep uses it so a re-blocked address
// is not lifted early.
func HasActiveBlock(db *gorm.DB, ip string, now time.Time) (bool, error) {
	if db == nil {
		db = DB
	}
	if db == nil {
		return false, fmt.Errorf("database not initialised")
	}

	var count int64
	err := db.Model(&domain.BlockEvent{}).
		Where("ip = ? AND expires_at IS NOT NULL AND expires_at > ?", ip, now).
		Count(&count).Error
	return count > 0, err
}

// CountActiveBlocks reports how many addresses still have an unexpired block.
func CountActiveBlocks(now time.Time) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialised")
	}

	var count int64
	err := DB.Model(&domain.BlockEvent{}).
		Where("expires_at IS NOT NULL AND expires_at > ?", now).
		Distinct("ip").
		Count(&count).Error
	return count, err
}
