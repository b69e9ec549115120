package support

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLeadershipTTL = 45 * time.Second
	leadershipRetryDelay = time.Second
	leadershipOpTimeout  = 5 * time.Second
)

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// RunWithLeader acquires a Redis leadership lock under key and invokes run
// while the lock is held. The context handed to run is cancelled when the
// lock can no longer be renewed or the parent context ends. Leader-gated
// sweeps use this so only one controller instance drives them at a time.
func RunWithLeader(ctx context.Context, key string, ttl time.Duration, run func(context.Context)) error {
	if run == nil {
		return errors.New("support: leader run function cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ttl <= 0 {
		ttl = DefaultLeadershipTTL
	}

	client, err := GetRedisClient()
	if err != nil {
		return fmt.Errorf("support: leader lock redis client: %w", err)
	}

	host, _ := os.Hostname()
	value := fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString())

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ok, err := client.SetNX(ctx, key, value, ttl).Result()
		if err != nil || !ok {
			if err != nil && ctx.Err() == nil {
				log.Warn("leader lock: setnx failed", "key", key, "error", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(leadershipRetryDelay):
			}
			continue
		}

		log.Debug("leader lock: acquired", "key", key)
		sessionCtx, cancel := context.WithCancel(ctx)
		stop := make(chan struct{})
		go renewLoop(sessionCtx, cancel, client, key, value, ttl, stop)

		run(sessionCtx)

		close(stop)
		cancel()
		releaseLock(client, key, value)
		log.Debug("leader lock: released", "key", key)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(leadershipRetryDelay):
		}
	}
}

func renewLoop(ctx context.Context, cancel context.CancelFunc, client *redis.Client, key, value string, ttl time.Duration, stop <-chan struct{}) {
	interval := ttl / 3
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, opCancel := context.WithTimeout(context.Background(), leadershipOpTimeout)
			res, err := renewScript.Run(opCtx, client, []string{key}, value, ttl.Milliseconds()).Result()
			opCancel()
			if err != nil {
				log.Warn("leader lock: renewal failed", "key", key, "error", err)
				cancel()
				return
			}
			if updated, ok := res.(int64); ok && updated == 0 {
				log.Warn("leader lock: lost", "key", key)
				cancel()
				return
			}
		}
	}
}

func releaseLock(client *redis.Client, key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), leadershipOpTimeout)
	defer cancel()

	if _, err := releaseScript.Run(ctx, client, []string{key}, value).Result(); err != nil && !errors.Is(err, redis.Nil) {
		log.Warn("leader lock: release failed", "key", key, "error", err)
	}
}
