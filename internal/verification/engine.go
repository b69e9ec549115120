package verification

import (
	"context"
	"time"

	"vigil/internal/audit"
	"vigil/internal/config"
	"vigil/internal/database"
	"vigil/internal/domain"
	"vigil/internal/enforcement"
	"vigil/internal/geo"
	"vigil/internal/intel"
	"vigil/internal/metrics"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ThreatWindow is how far back historical alerts contribute to the
// cumulative threat for an address.
const ThreatWindow = time.Hour

// Result is what one processed alert produced.
type Result struct {
	IncidentID string
	Trust      float64
	Threat     float64
	Verdict    Verdict
	Outcome    enforcement.Outcome
}

// Engine is the verification pipeline: trust lookup, ledger append,
// windowed aggregation, verdict and enforcement, serialized per address.
type Engine struct {
	db          *gorm.DB
	registry    *Registry
	coordinator *enforcement.Coordinator
	locks       *addressLocks
}

func NewEngine(db *gorm.DB, coordinator *enforcement.Coordinator) *Engine {
	return &Engine{
		db:          db,
		registry:    NewRegistry(db),
		coordinator: coordinator,
		locks:       newAddressLocks(),
	}
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

// ProcessAlert is the single entry point the ingestion layer calls per
// accepted alert.
//
// The new observation is weighted by the reporting sensor's trust; alerts
// already on the ledger inside the window contribute their raw score
// unweighted. That asymmetry is deliberate evidence-accumulation policy:
// history was judged when it was new.
//
// Ledger append, aggregation, verdict and the BlockEvent append commit in
// one transaction. If anything fails, nothing is recorded and the alert
// counts as not processed. The firewall call happens after commit and its
// failure never unwinds the recorded decision.
func (e *Engine) ProcessAlert(ctx context.Context, sensorID, ip string, rawScore float64) (Result, error) {
	result := Result{IncidentID: uuid.NewString()}

	unlock := e.locks.lock(ip)
	defer unlock()

	trust, err := e.registry.TrustOf(ctx, sensorID)
	if err != nil {
		audit.ProcessingFailed(result.IncidentID, sensorID, ip, err)
		metrics.ProcessingFailures.Inc()
		return result, err
	}
	result.Trust = trust

	now := time.Now().UTC()
	threshold := config.GetConfig().Detection.BlockThreshold

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		alert := domain.Alert{
			SensorID:  sensorID,
			SourceIP:  ip,
			Score:     rawScore,
			Timestamp: now,
		}
		if err := database.InsertAlert(tx, &alert); err != nil {
			return err
		}

		cumulative, err := database.SumRecentAlertScores(tx, ip, now.Add(-ThreatWindow), alert.ID)
		if err != nil {
			return err
		}

		weightedImpact := rawScore * (trust / 100.0)
		result.Threat = cumulative + weightedImpact
		result.Verdict = Decide(result.Threat, threshold)

		if result.Verdict == VerdictBlock {
			outcome, err := e.coordinator.Enforce(tx, ip, result.Threat, now)
			if err != nil {
				return err
			}
			result.Outcome = outcome
		}

		return nil
	})
	if err != nil {
		audit.ProcessingFailed(result.IncidentID, sensorID, ip, err)
		metrics.ProcessingFailures.Inc()
		return result, err
	}

	e.report(ctx, sensorID, ip, result)
	return result, nil
}

// report emits the audit line and metrics for a committed decision and, for
// a confirmed block, drives the external firewall.
func (e *Engine) report(ctx context.Context, sensorID, ip string, result Result) {
	audit.Decision(
		result.IncidentID, sensorID, ip,
		result.Trust, result.Threat, result.Verdict.String(),
		intel.Contains(ip), geo.Country(ip),
	)
	metrics.Verdicts.WithLabelValues(result.Verdict.String()).Inc()
	metrics.ThreatValues.Observe(result.Threat)

	if result.Verdict != VerdictBlock {
		return
	}

	switch result.Outcome.Status {
	case enforcement.StatusSkipped:
		switch result.Outcome.Reason {
		case enforcement.ReasonWhitelisted:
			audit.WhitelistSkip(result.IncidentID, ip)
			metrics.BlocksSkippedWhitelisted.Inc()
		case enforcement.ReasonAlreadyBlocked:
			audit.AlreadyBlockedSkip(result.IncidentID, ip)
		}
	case enforcement.StatusBlocked:
		audit.Blocked(result.IncidentID, ip, result.Outcome.Offense, result.Outcome.Duration)
		metrics.BlocksIssued.Inc()
		e.coordinator.Apply(ctx, result.IncidentID, ip, result.Outcome.Duration)
	}
}
