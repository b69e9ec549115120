package domain

import "time"

// KnownBadIP stores normalized IPs fetched from external threat-intel feeds.
// Feed membership only enriches audit output and the admin surface; it never
// feeds into the threat arithmetic.
type KnownBadIP struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	// IP holds the normalized IPv4/IPv6 address string.
	IP string `gorm:"size:45;uniqueIndex;not null"`

	// Source records the last feed that reported this IP.
	Source string `gorm:"size:512;not null;default:''"`

	FirstSeenAt time.Time `gorm:"autoCreateTime"`
	LastSeenAt  time.Time `gorm:"autoUpdateTime"`
}

func (KnownBadIP) TableName() string {
	return "known_bad_ips"
}
