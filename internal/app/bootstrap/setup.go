package bootstrap

import (
	"context"

	"vigil/internal/audit"
	"vigil/internal/config"
	"vigil/internal/database"
	"vigil/internal/enforcement"
	"vigil/internal/geo"
	"vigil/internal/intel"
	"vigil/internal/jobs/queue/alerts"
	jobruntime "vigil/internal/jobs/runtime"
	"vigil/internal/verification"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// Setup wires the controller: configuration, persistence, audit, the
// verification engine and its worker pool, and the background routines.
func Setup(ctx context.Context, redisClient *redis.Client) *alerts.Queue {
	config.ReadSettings()

	if _, err := database.SetupDB(); err != nil {
		log.Fatalf("failed to set up database: %v", err)
	}

	cfg := config.GetConfig()

	audit.Init(audit.Options{
		LogFile:    cfg.Audit.LogFile,
		MaxSizeMB:  cfg.Audit.MaxSizeMB,
		MaxBackups: cfg.Audit.MaxBackups,
		MaxAgeDays: cfg.Audit.MaxAgeDays,
	})

	geo.Init(cfg.Geo.CountryDBPath)

	if redisClient != nil {
		config.EnableRedisSynchronization(ctx, redisClient)
	}
	if err := config.WatchSettingsFile(ctx); err != nil {
		log.Warn("Settings file watcher unavailable", "error", err)
	}

	if err := intel.Initialize(ctx); err != nil {
		log.Warn("Threat intel filter not hydrated", "error", err)
	}

	enforcer := enforcement.NewEnforcerFromConfig(cfg)
	coordinator := enforcement.NewCoordinator(enforcer)
	engine := verification.NewEngine(database.DB, coordinator)

	queue := alerts.StartDispatcher(ctx, engine)

	// Routines

	go intel.StartRefreshRoutine(ctx)
	go jobruntime.StartSensorSweepRoutine(ctx)
	go jobruntime.StartBlockExpiryRoutine(ctx, coordinator)

	return queue
}
