package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"vigil/internal/auth"
	"vigil/internal/jobs/queue/alerts"
	"vigil/internal/metrics"

	"github.com/charmbracelet/log"
)

var alertQueue *alerts.Queue

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+auth.SensorAuthHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func OpenRoutes(port int, queue *alerts.Queue) error {
	alertQueue = queue

	router := http.NewServeMux()

	// Sensor-facing ingestion surface, guarded by the shared sensor key.
	router.Handle("POST /alert", auth.RequireSensorKey(http.HandlerFunc(receiveAlert)))
	router.Handle("POST /heartbeat", auth.RequireSensorKey(http.HandlerFunc(receiveHeartbeat)))

	// Operator surface.
	router.HandleFunc("POST /register", registerOperator)
	router.HandleFunc("POST /login", loginOperator)
	router.Handle("GET /checkLogin", auth.RequireAuth(http.HandlerFunc(checkLogin)))

	router.Handle("GET /trust", auth.RequireAuth(http.HandlerFunc(getTrustScores)))
	router.Handle("GET /sensors", auth.RequireAuth(http.HandlerFunc(getSensors)))
	router.Handle("GET /blocks", auth.RequireAuth(http.HandlerFunc(getRecentBlocks)))
	router.Handle("GET /instances", auth.RequireAuth(http.HandlerFunc(getActiveInstances)))

	router.Handle("GET /settings", auth.IsAdmin(http.HandlerFunc(getSettings)))
	router.Handle("POST /settings", auth.IsAdmin(http.HandlerFunc(saveSettings)))

	router.Handle("GET /metrics", metrics.Handler())

	log.Debug("Routes opened")

	server := http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: enableCORS(router),
	}

	log.Infof("Starting vigil controller on port :%d", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}
