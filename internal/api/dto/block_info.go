package dto

import "time"

// BlockInfo is one ledger entry on the /blocks admin endpoint, annotated
// with the country of the blocked address when geo lookup is available.
type BlockInfo struct {
	IP        string     `json:"ip"`
	Reason    string     `json:"reason"`
	BlockedAt time.Time  `json:"blocked_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Country   string     `json:"country,omitempty"`
}
