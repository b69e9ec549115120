package runtime

import (
	"context"
	"testing"

	"vigil/internal/config"
	"vigil/internal/enforcement"
)

// An unreadable or corrupt settings file leaves the zero configuration in
// place; the sweep loops must fall back to their default intervals instead
// of handing a zero duration to time.NewTicker.
func TestSweepLoopsSurviveZeroConfig(t *testing.T) {
	config.SetConfigForTests(config.Config{})
	t.Cleanup(func() {
		config.SetConfigForTests(config.Config{})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runSensorSweepLoop(ctx)

	coordinator := enforcement.NewCoordinator(enforcement.NoopEnforcer{})
	runBlockExpiryLoop(ctx, coordinator)
}

func TestSensorSweepOnceZeroConfigUsesDefaultCutoff(t *testing.T) {
	config.SetConfigForTests(config.Config{})
	t.Cleanup(func() {
		config.SetConfigForTests(config.Config{})
	})

	// No database is configured; the sweep must log the failure and return
	// rather than panic on the zero offline window.
	runSensorSweepOnce()
}
