package domain

import "time"

// Operator is an administrative account for the query surface (/trust,
// /blocks, /settings). Sensors never authenticate this way; they use the
// shared ingestion secret.
type Operator struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"not null" json:"-"` // bcrypt hash
	Role      string    `gorm:"size:20;default:'viewer'" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Operator) TableName() string {
	return "operators"
}
