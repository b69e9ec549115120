package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vigil/internal/config"
	"vigil/internal/jobs/queue/alerts"
)

func setupIngestTest(t *testing.T, ratePerSecond float64, burst uint32) {
	t.Helper()

	var cfg config.Config
	cfg.Detection.BlockThreshold = 100
	cfg.Ingest.AlertWorkers = 1
	cfg.Ingest.QueueSize = 16
	cfg.Ingest.SensorRateLimit = ratePerSecond
	cfg.Ingest.SensorRateBurst = burst
	config.SetConfigForTests(cfg)
	t.Cleanup(func() {
		config.SetConfigForTests(config.Config{})
	})

	ingestLimiters = &sensorLimiters{limiters: make(map[string]*sensorLimiter)}

	// Workers never start because the context is already cancelled; the
	// handler only needs a queue that accepts tasks.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	alertQueue = alerts.StartDispatcher(ctx, nil)
	t.Cleanup(func() {
		alertQueue = nil
	})
}

func postAlert(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/alert", strings.NewReader(body))
	rec := httptest.NewRecorder()
	receiveAlert(rec, req)
	return rec
}

func TestReceiveAlertValidation(t *testing.T) {
	setupIngestTest(t, 0, 0)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"sensor_id":`, http.StatusBadRequest},
		{"missing sensor", `{"ip":"1.2.3.4","score":10}`, http.StatusBadRequest},
		{"bad ip", `{"sensor_id":"s1","ip":"not-an-ip","score":10}`, http.StatusBadRequest},
		{"missing score", `{"sensor_id":"s1","ip":"1.2.3.4"}`, http.StatusBadRequest},
		{"negative score", `{"sensor_id":"s1","ip":"1.2.3.4","score":-5}`, http.StatusBadRequest},
		{"non-numeric score", `{"sensor_id":"s1","ip":"1.2.3.4","score":"high"}`, http.StatusBadRequest},
		{"valid", `{"sensor_id":"s1","ip":"1.2.3.4","score":42.5}`, http.StatusAccepted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := postAlert(tc.body); rec.Code != tc.want {
				t.Fatalf("expected %d, got %d (%s)", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestReceiveAlertRateLimitsPerSensor(t *testing.T) {
	setupIngestTest(t, 0.001, 1)

	first := postAlert(`{"sensor_id":"noisy","ip":"5.6.7.8","score":10}`)
	if first.Code != http.StatusAccepted {
		t.Fatalf("first alert should pass, got %d", first.Code)
	}

	second := postAlert(`{"sensor_id":"noisy","ip":"5.6.7.8","score":10}`)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second alert should be rate limited, got %d", second.Code)
	}

	// A different sensor has its own bucket.
	other := postAlert(`{"sensor_id":"quiet","ip":"5.6.7.8","score":10}`)
	if other.Code != http.StatusAccepted {
		t.Fatalf("independent sensor should pass, got %d", other.Code)
	}
}
