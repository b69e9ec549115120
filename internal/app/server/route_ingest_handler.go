package server

import (
	"encoding/json"
	"math"
	"net"
	"net/http"

	"vigil/internal/api/dto"
	"vigil/internal/database"
	"vigil/internal/jobs/queue/alerts"
	"vigil/internal/metrics"

	"github.com/charmbracelet/log"
)

// receiveAlert validates one sensor report and hands it to the worker pool.
// The sensor always gets an immediate answer; verdicts are never computed on
// the request path.
func receiveAlert(w http.ResponseWriter, r *http.Request) {
	var req dto.AlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.AlertsRejected.WithLabelValues("malformed").Inc()
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.SensorID == "" {
		metrics.AlertsRejected.WithLabelValues("missing_sensor").Inc()
		writeError(w, "sensor_id is required", http.StatusBadRequest)
		return
	}

	parsed := net.ParseIP(req.IP)
	if parsed == nil {
		metrics.AlertsRejected.WithLabelValues("bad_ip").Inc()
		writeError(w, "ip is not a valid address", http.StatusBadRequest)
		return
	}

	if req.Score == nil || math.IsNaN(*req.Score) || math.IsInf(*req.Score, 0) || *req.Score < 0 {
		metrics.AlertsRejected.WithLabelValues("bad_score").Inc()
		writeError(w, "score must be a non-negative number", http.StatusBadRequest)
		return
	}

	if !ingestLimiters.allow(req.SensorID) {
		metrics.AlertsRejected.WithLabelValues("rate_limited").Inc()
		writeError(w, "Too many alerts", http.StatusTooManyRequests)
		return
	}

	ok := alertQueue.Enqueue(alerts.Task{
		SensorID: req.SensorID,
		IP:       parsed.String(),
		Score:    *req.Score,
	})
	if !ok {
		metrics.AlertsRejected.WithLabelValues("queue_full").Inc()
		writeError(w, "Service overloaded", http.StatusServiceUnavailable)
		return
	}

	metrics.AlertsAccepted.Inc()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func receiveHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req dto.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.SensorID == "" {
		writeError(w, "sensor_id is required", http.StatusBadRequest)
		return
	}

	address := req.IP
	if address == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			address = host
		}
	}

	if err := database.TouchSensorNode(req.SensorID, address); err != nil {
		log.Error("Failed to record sensor heartbeat", "sensor", req.SensorID, "error", err)
		writeError(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
