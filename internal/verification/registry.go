package verification

import (
	"context"
	"fmt"

	"vigil/internal/database"
	"vigil/internal/domain"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Registry resolves a sensor id to its trust score, registering unseen
// sensors with the neutral default. Registration is persisted before the
// score is returned; a persistence failure propagates so the caller treats
// the alert as not yet processed.
type Registry struct {
	db       *gorm.DB
	register singleflight.Group
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// TrustOf returns the current trust score for sensorID in [0,100].
// Concurrent first references to the same unseen sensor collapse into a
// single registration; the row insert itself is conflict-safe on top of
// that, so exactly one SensorNode ever exists per id.
func (r *Registry) TrustOf(ctx context.Context, sensorID string) (float64, error) {
	result, err, _ := r.register.Do(sensorID, func() (any, error) {
		sensor, err := database.EnsureSensorNode(r.db.WithContext(ctx), sensorID)
		if err != nil {
			return nil, err
		}
		return sensor, nil
	})
	if err != nil {
		return 0, fmt.Errorf("trust lookup for sensor %q: %w", sensorID, err)
	}

	sensor := result.(domain.SensorNode)
	return clampTrust(sensor.TrustScore), nil
}

func clampTrust(trust float64) float64 {
	if trust < 0 {
		return 0
	}
	if trust > 100 {
		return 100
	}
	return trust
}
