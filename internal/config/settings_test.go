package config

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimerDuration(t *testing.T) {
	cases := []struct {
		timer Timer
		want  time.Duration
	}{
		{Timer{}, 0},
		{Timer{Seconds: 45}, 45 * time.Second},
		{Timer{Minutes: 5}, 5 * time.Minute},
		{Timer{Days: 1, Hours: 2, Minutes: 3, Seconds: 4}, 26*time.Hour + 3*time.Minute + 4*time.Second},
	}

	for _, tc := range cases {
		if got := tc.timer.Duration(); got != tc.want {
			t.Errorf("Timer %+v = %v, want %v", tc.timer, got, tc.want)
		}
	}
}

func TestIsWhitelistedReadsLiveConfig(t *testing.T) {
	var cfg Config
	cfg.Detection.Whitelist = []string{"127.0.0.1", "::1"}
	SetConfigForTests(cfg)
	t.Cleanup(func() {
		SetConfigForTests(Config{})
	})

	if !IsWhitelisted("127.0.0.1") {
		t.Fatal("expected 127.0.0.1 whitelisted")
	}
	if IsWhitelisted("203.0.113.5") {
		t.Fatal("did not expect 203.0.113.5 whitelisted")
	}

	// A hot update must be visible immediately.
	cfg.Detection.Whitelist = append(cfg.Detection.Whitelist, "203.0.113.5")
	SetConfigForTests(cfg)

	if !IsWhitelisted("203.0.113.5") {
		t.Fatal("expected 203.0.113.5 whitelisted after update")
	}
}

func TestDefaultSettingsParse(t *testing.T) {
	if len(defaultConfig) == 0 {
		t.Fatal("embedded default settings are empty")
	}

	var cfg Config
	if err := json.Unmarshal(defaultConfig, &cfg); err != nil {
		t.Fatalf("default settings do not parse: %v", err)
	}

	if cfg.Detection.BlockThreshold <= 0 {
		t.Fatalf("default threshold must be positive, got %v", cfg.Detection.BlockThreshold)
	}
	if cfg.Ingest.AlertWorkers == 0 {
		t.Fatal("default alert worker count must be set")
	}
}
