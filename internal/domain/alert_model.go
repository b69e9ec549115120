package domain

import "time"

// Alert is one immutable evidence record reported by a sensor. Rows are
// append-only: the aggregator recomputes threat values from this ledger
// instead of keeping running totals in memory.
type Alert struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	// SensorID references sensor_nodes.id but is not required to resolve;
	// a sensor row may be created after its first alert is already queued.
	SensorID  string    `gorm:"size:50;index" json:"sensor_id"`
	SourceIP  string    `gorm:"size:50;index:idx_alerts_ip_ts,priority:1" json:"source_ip"`
	Score     float64   `gorm:"not null" json:"score"`
	Timestamp time.Time `gorm:"index:idx_alerts_ip_ts,priority:2" json:"timestamp"`
}

func (Alert) TableName() string {
	return "alerts"
}
