package domain

import "time"

const (
	// DefaultTrustScore is assigned to a sensor on first contact: neutral, unproven.
	DefaultTrustScore = 50.0

	SensorStatusOnline  = "online"
	SensorStatusOffline = "offline"
)

// SensorNode is one registered edge sensor. Trust is set once at registration;
// there is no feedback loop that adjusts it afterwards.
type SensorNode struct {
	ID         string    `gorm:"primaryKey;size:50" json:"id"`
	Address    string    `gorm:"size:50" json:"address"`
	TrustScore float64   `gorm:"not null;default:50.0" json:"trust_score"`
	LastSeen   time.Time `gorm:"autoCreateTime" json:"last_seen"`
	Status     string    `gorm:"size:20;default:'offline'" json:"status"`
}

func (SensorNode) TableName() string {
	return "sensor_nodes"
}
