package enforcement

import "time"

const (
	firstOffenseBan  = 5 * time.Minute
	secondOffenseBan = 30 * time.Minute

	// maxOffenseBan is the escalation ceiling; further offenses never
	// increase it.
	maxOffenseBan = 24 * time.Hour
)

// BanDuration maps the number of prior confirmed blocks for an address to
// the duration of the next one. priorBlocks counts BlockEvents recorded
// before this action, so 0 means first offense.
func BanDuration(priorBlocks int64) time.Duration {
	switch {
	case priorBlocks == 0:
		return firstOffenseBan
	case priorBlocks == 1:
		return secondOffenseBan
	default:
		return maxOffenseBan
	}
}
