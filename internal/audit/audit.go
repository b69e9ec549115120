// Package audit is the one-way observability sink for the verification and
// enforcement engine. Every decision produces exactly one structured line:
// threat computed, verdict, escalation tier, enforcement outcome. Nothing in
// the core ever reads these lines back.
package audit

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	LogFile    string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu     sync.RWMutex
	logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "audit",
	})
)

// Init routes audit output to a size-rotated file in addition to stderr.
// Called once at bootstrap; safe to skip in tests.
func Init(opts Options) {
	if opts.LogFile == "" {
		return
	}

	rotated := &lumberjack.Logger{
		Filename:   opts.LogFile,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}

	mu.Lock()
	logger = log.NewWithOptions(io.MultiWriter(os.Stderr, rotated), log.Options{
		ReportTimestamp: true,
		Prefix:          "audit",
	})
	mu.Unlock()
}

func get() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Decision records one completed threat evaluation.
func Decision(incidentID, sensorID, ip string, trust, threat float64, verdict string, intelHit bool, country string) {
	kv := []any{
		"incident", incidentID,
		"sensor", sensorID,
		"ip", ip,
		"trust", trust,
		"threat", threat,
		"verdict", verdict,
	}
	if intelHit {
		kv = append(kv, "intel_feed_hit", true)
	}
	if country != "" {
		kv = append(kv, "country", country)
	}
	get().Info("threat evaluated", kv...)
}

// Blocked records a confirmed enforcement decision and its escalation tier.
func Blocked(incidentID, ip string, offense int64, duration time.Duration) {
	get().Info("address blocked", "incident", incidentID, "ip", ip, "offense", offense+1, "duration", duration)
}

// WhitelistSkip is warning-level: it signals either a misconfigured sensor or
// a deliberate attempt to get a protected address banned.
func WhitelistSkip(incidentID, ip string) {
	get().Warn("refused to block whitelisted address", "incident", incidentID, "ip", ip)
}

// AlreadyBlockedSkip records a block verdict against an address whose
// previous ban has not expired yet; the existing block stands.
func AlreadyBlockedSkip(incidentID, ip string) {
	get().Info("address already blocked, enforcement skipped", "incident", incidentID, "ip", ip)
}

// EnforcementFailed records that the external firewall action failed. The
// block decision stays on the ledger regardless.
func EnforcementFailed(incidentID, ip string, err error) {
	get().Error("firewall action failed", "incident", incidentID, "ip", ip, "error", err)
}

// ProcessingFailed records that an accepted alert could not be processed; the
// alert counts as not-yet-processed.
func ProcessingFailed(incidentID, sensorID, ip string, err error) {
	get().Error("alert processing failed", "incident", incidentID, "sensor", sensorID, "ip", ip, "error", err)
}

// ConfigChanged records which operator updated the runtime configuration.
func ConfigChanged(operatorID uint) {
	get().Info("configuration updated", "operator", operatorID)
}

// Unblocked records an expiry-sweep firewall lift.
func Unblocked(ip string) {
	get().Info("expired block lifted", "ip", ip)
}
