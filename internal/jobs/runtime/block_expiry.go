package runtime

import (
	"context"
	"errors"
	"time"

	"vigil/internal/audit"
	"vigil/internal/config"
	"vigil/internal/database"
	"vigil/internal/enforcement"
	"vigil/internal/metrics"
	"vigil/internal/support"

	"github.com/charmbracelet/log"
)

const (
	blockExpiryLockKey         = "vigil:leader:block_expiry"
	defaultBlockExpiryInterval = time.Minute
)

// StartBlockExpiryRoutine lifts firewall entries whose ban has run out. The
// ipset timeout already drops entries on its own; this sweep is the
// belt-and-braces pass that also covers enforcers without native expiry and
// keeps the active-blocks gauge honest. Ledger rows are never touched.
func StartBlockExpiryRoutine(ctx context.Context, coordinator *enforcement.Coordinator) {
	if ctx == nil {
		ctx = context.Background()
	}

	err := support.RunWithLeader(ctx, blockExpiryLockKey, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runBlockExpiryLoop(leaderCtx, coordinator)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Block expiry routine stopped", "error", err)
	}
}

func runBlockExpiryLoop(ctx context.Context, coordinator *enforcement.Coordinator) {
	// Look back one full interval on first run so expiries that happened
	// during a leader handover are not lost.
	interval := config.GetConfig().Runtime.BlockExpiryTimer.Duration()
	if interval <= 0 {
		interval = defaultBlockExpiryInterval
	}
	lastSweep := time.Now().UTC().Add(-interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lastSweep = runBlockExpiryOnce(ctx, coordinator, lastSweep)
		}
	}
}

func runBlockExpiryOnce(ctx context.Context, coordinator *enforcement.Coordinator, since time.Time) time.Time {
	now := time.Now().UTC()

	ips, err := database.ListBlocksExpiredBetween(since, now)
	if err != nil {
		log.Error("Failed to list expired blocks", "error", err)
		return since
	}

	for _, ip := range ips {
		// An address re-blocked after this expiry still has an active ban.
		active, err := database.HasActiveBlock(nil, ip, now)
		if err != nil {
			log.Error("Failed to check active block", "ip", ip, "error", err)
			continue
		}
		if active {
			continue
		}

		if err := coordinator.Lift(ctx, ip); err != nil {
			log.Error("Failed to lift expired block", "ip", ip, "error", err)
			continue
		}
		audit.Unblocked(ip)
	}

	if count, err := database.CountActiveBlocks(now); err == nil {
		metrics.ActiveBlocks.Set(float64(count))
	}

	return now
}
