package database

import (
	"fmt"
	"time"

	"vigil/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnsureSensorNode fetches the sensor row for id, creating it with the
// neutral default trust on first reference. The insert ignores conflicts so
// concurrent first alerts from the same sensor produce exactly one row.
func EnsureSensorNode(db *gorm.DB, id string) (domain.SensorNode, error) {
	if db == nil {
		db = DB
	}
	if db == nil {
		return domain.SensorNode{}, fmt.Errorf("database not initialised")
	}

	sensor := domain.SensorNode{
		ID:         id,
		TrustScore: domain.DefaultTrustScore,
		Status:     domain.SensorStatusOffline,
		LastSeen:   time.Now().UTC(),
	}

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&sensor).Error; err != nil {
		return domain.SensorNode{}, fmt.Errorf("register sensor %q: %w", id, err)
	}

	if err := db.First(&sensor, "id = ?", id).Error; err != nil {
		return domain.SensorNode{}, fmt.Errorf("load sensor %q: %w", id, err)
	}

	return sensor, nil
}

// TouchSensorNode records a heartbeat: last-known address, liveness and
// last-seen time. Trust is deliberately left untouched.
func TouchSensorNode(id, address string) error {
	if DB == nil {
		return fmt.Errorf("database not initialised")
	}

	now := time.Now().UTC()
	sensor := domain.SensorNode{
		ID:         id,
		Address:    address,
		TrustScore: domain.DefaultTrustScore,
		Status:     domain.SensorStatusOnline,
		LastSeen:   now,
	}

	return DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"address", "status", "last_seen"}),
	}).Create(&sensor).Error
}

func GetAllSensorNodes() ([]domain.SensorNode, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialised")
	}

	var sensors []domain.SensorNode
	if err := DB.Order("id").Find(&sensors).Error; err != nil {
		return nil, err
	}
	return sensors, nil
}

// GetTrustScores returns the sensor id to trust score map served on /trust.
func GetTrustScores() (map[string]float64, error) {
	sensors, err := GetAllSensorNodes()
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(sensors))
	for _, sensor := range sensors {
		scores[sensor.ID] = sensor.TrustScore
	}
	return scores, nil
}

// MarkSensorsOffline flips sensors that have not reported since the cutoff.
// Returns the number of rows changed.
func MarkSensorsOffline(cutoff time.Time) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialised")
	}

	res := DB.Model(&domain.SensorNode{}).
		Where("status = ? AND last_seen < ?", domain.SensorStatusOnline, cutoff).
		Update("status", domain.SensorStatusOffline)
	return res.RowsAffected, res.Error
}
