package domain

import "time"

// BlockEvent records one confirmed enforcement decision. Rows are append-only
// and never mutated; the count of rows per IP is the authoritative offense
// count used for penalty escalation.
type BlockEvent struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	IP        string     `gorm:"size:50;index" json:"ip"`
	Reason    string     `gorm:"size:100" json:"reason"`
	BlockedAt time.Time  `gorm:"autoCreateTime" json:"blocked_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (BlockEvent) TableName() string {
	return "block_events"
}
