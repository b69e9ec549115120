package database

import (
	"context"
	"fmt"

	"vigil/internal/domain"

	"gorm.io/gorm/clause"
)

const knownBadInsertChunk = 1000

// UpsertKnownBadIPs stores a batch of feed-reported addresses, refreshing the
// source and last-seen columns on conflict.
func UpsertKnownBadIPs(ctx context.Context, ips []string, source string) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialised")
	}
	if len(ips) == 0 {
		return 0, nil
	}

	var inserted int64
	for start := 0; start < len(ips); start += knownBadInsertChunk {
		end := start + knownBadInsertChunk
		if end > len(ips) {
			end = len(ips)
		}

		rows := make([]domain.KnownBadIP, 0, end-start)
		for _, ip := range ips[start:end] {
			rows = append(rows, domain.KnownBadIP{IP: ip, Source: source})
		}

		res := DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ip"}},
			DoUpdates: clause.AssignmentColumns([]string{"source", "last_seen_at"}),
		}).Create(&rows)
		if res.Error != nil {
			return inserted, fmt.Errorf("upsert known-bad ips: %w", res.Error)
		}
		inserted += res.RowsAffected
	}

	return inserted, nil
}

func ListKnownBadIPs(ctx context.Context) ([]string, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialised")
	}

	var ips []string
	err := DB.WithContext(ctx).Model(&domain.KnownBadIP{}).Pluck("ip", &ips).Error
	return ips, err
}
