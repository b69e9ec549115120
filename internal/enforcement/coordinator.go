package enforcement

import (
	"context"
	"fmt"
	"time"

	"vigil/internal/audit"
	"vigil/internal/config"
	"vigil/internal/database"
	"vigil/internal/domain"
	"vigil/internal/metrics"

	"gorm.io/gorm"
)

type Status int

const (
	StatusBlocked Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusBlocked:
		return "blocked"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Skip reasons reported on an Outcome.
const (
	ReasonWhitelisted    = "whitelisted"
	ReasonAlreadyBlocked = "already blocked"
)

// Outcome describes what the coordinator decided for one confirmed verdict.
type Outcome struct {
	Status   Status
	Reason   string
	Duration time.Duration
	Offense  int64 // prior confirmed blocks, before this action
}

// Coordinator turns a Block verdict into at most one ledger record and one
// firewall invocation. The whitelist check is unconditional and evaluated
// against the live configuration, never a cached copy.
type Coordinator struct {
	enforcer Enforcer
}

func NewCoordinator(enforcer Enforcer) *Coordinator {
	return &Coordinator{enforcer: enforcer}
}

// Enforce runs the ledger half of enforcement inside the caller's
// transaction: whitelist guard, offense count, escalation, BlockEvent
// append. The firewall call happens separately via Apply, after the caller
// commits, so a mechanism failure can never roll back the recorded decision.
func (c *Coordinator) Enforce(tx *gorm.DB, ip string, threat float64, now time.Time) (Outcome, error) {
	if config.IsWhitelisted(ip) {
		return Outcome{Status: StatusSkipped, Reason: ReasonWhitelisted}, nil
	}

	// An address with an unexpired ban keeps its existing block; piling on
	// further BlockEvents would inflate the offense count from one incident.
	active, err := database.HasActiveBlock(tx, ip, now)
	if err != nil {
		return Outcome{Status: StatusFailed}, err
	}
	if active {
		return Outcome{Status: StatusSkipped, Reason: ReasonAlreadyBlocked}, nil
	}

	offense, err := database.CountBlockEvents(tx, ip)
	if err != nil {
		return Outcome{Status: StatusFailed}, err
	}

	duration := BanDuration(offense)
	expiry := now.Add(duration)

	event := domain.BlockEvent{
		IP:        ip,
		Reason:    fmt.Sprintf("Threat Score: %.2f", threat),
		BlockedAt: now,
		ExpiresAt: &expiry,
	}
	if err := database.InsertBlockEvent(tx, &event); err != nil {
		return Outcome{Status: StatusFailed}, err
	}

	return Outcome{Status: StatusBlocked, Duration: duration, Offense: offense}, nil
}

// Apply invokes the external firewall mechanism for a committed block.
// Failure is logged and counted but neither retried nor propagated: the
// decision on the ledger is the audit-relevant fact.
func (c *Coordinator) Apply(ctx context.Context, incidentID, ip string, duration time.Duration) {
	if err := c.enforcer.Block(ctx, ip, duration); err != nil {
		audit.EnforcementFailed(incidentID, ip, err)
		metrics.EnforcementFailures.Inc()
	}
}

// Lift removes an expired address from the firewall.
func (c *Coordinator) Lift(ctx context.Context, ip string) error {
	return c.enforcer.Unblock(ctx, ip)
}
