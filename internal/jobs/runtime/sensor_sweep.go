package runtime

import (
	"context"
	"errors"
	"time"

	"vigil/internal/config"
	"vigil/internal/database"
	"vigil/internal/support"

	"github.com/charmbracelet/log"
)

const (
	sensorSweepLockKey         = "vigil:leader:sensor_sweep"
	defaultSensorSweepInterval = 30 * time.Second
	defaultSensorOfflineAfter  = 2 * time.Minute
)

// StartSensorSweepRoutine marks sensors offline once they stop sending
// heartbeats. Only the leader instance runs the sweep; every instance still
// serves reads of the resulting status.
func StartSensorSweepRoutine(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	err := support.RunWithLeader(ctx, sensorSweepLockKey, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runSensorSweepLoop(leaderCtx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Sensor sweep routine stopped", "error", err)
	}
}

func runSensorSweepLoop(ctx context.Context) {
	runSensorSweepOnce()

	interval := config.GetConfig().Runtime.SensorSweepTimer.Duration()
	if interval <= 0 {
		interval = defaultSensorSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runSensorSweepOnce()
		}
	}
}

func runSensorSweepOnce() {
	offlineAfter := config.GetConfig().Runtime.SensorOfflineAfter.Duration()
	if offlineAfter <= 0 {
		offlineAfter = defaultSensorOfflineAfter
	}
	cutoff := time.Now().UTC().Add(-offlineAfter)

	marked, err := database.MarkSensorsOffline(cutoff)
	if err != nil {
		log.Error("Failed to sweep stale sensors", "error", err)
		return
	}
	if marked > 0 {
		log.Info("Marked stale sensors offline", "count", marked, "cutoff", cutoff)
	}
}
