package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"vigil/internal/app/bootstrap"
	"vigil/internal/app/server"
	"vigil/internal/config"
	"vigil/internal/jobs/runtime"
	"vigil/internal/support"
)

const defaultPort = 8092

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	log.SetLevel(log.DebugLevel)

	portFlag := flag.Int("port", defaultPort, "Port for the controller API")
	productionFlag := flag.Bool("production", false, "Run in production mode")
	flag.Parse()

	config.SetProductionMode(*productionFlag)
	if *productionFlag {
		log.SetLevel(log.InfoLevel)
	}

	port := resolvePort("VIGIL_PORT", *portFlag)

	redisClient, err := support.GetRedisClient()
	if err != nil {
		return fmt.Errorf("failed to get redis client: %w", err)
	}

	heartbeatCancel := runtime.LaunchInstanceHeartbeat(context.Background(), redisClient)
	defer heartbeatCancel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := bootstrap.Setup(ctx, redisClient)
	defer queue.Close()

	return server.OpenRoutes(port, queue)
}

func resolvePort(envKey string, fallback int) int {
	raw := os.Getenv(envKey)
	if raw == "" {
		return fallback
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port == 0 {
		log.Warn("invalid port override", "env", envKey, "value", raw)
		return fallback
	}
	return port
}
