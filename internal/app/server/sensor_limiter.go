package server

import (
	"sync"
	"time"

	"vigil/internal/config"

	"golang.org/x/time/rate"
)

// sensorLimiters hands out one token bucket per sensor so a single noisy or
// compromised sensor cannot crowd out the rest of the fleet. Entries idle
// for an hour are pruned on the next lookup.
type sensorLimiters struct {
	mu       sync.Mutex
	limiters map[string]*sensorLimiter
	lastScan time.Time
}

type sensorLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterIdleTimeout = time.Hour

var ingestLimiters = &sensorLimiters{
	limiters: make(map[string]*sensorLimiter),
}

func (s *sensorLimiters) allow(sensorID string) bool {
	cfg := config.GetConfig().Ingest
	if cfg.SensorRateLimit <= 0 {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.Sub(s.lastScan) > limiterIdleTimeout {
		for id, entry := range s.limiters {
			if now.Sub(entry.lastSeen) > limiterIdleTimeout {
				delete(s.limiters, id)
			}
		}
		s.lastScan = now
	}

	entry, ok := s.limiters[sensorID]
	if !ok {
		entry = &sensorLimiter{
			limiter: rate.NewLimiter(rate.Limit(cfg.SensorRateLimit), int(cfg.SensorRateBurst)),
		}
		s.limiters[sensorID] = entry
	}
	entry.lastSeen = now

	return entry.limiter.Allow()
}
