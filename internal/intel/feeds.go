// Package intel maintains a set of addresses reported by external
// threat-intel feeds. Membership only annotates audit output and the admin
// surface; the verification arithmetic never consults it, so a poisoned feed
// cannot trigger a block on its own.
package intel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"vigil/internal/config"
	"vigil/internal/database"
	"vigil/internal/support"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	maxResponseBytes       = 10 << 20 // 10 MiB safety cap per feed
	refreshLockKey         = "vigil:leader:intel_refresh"
	defaultRefreshInterval = 6 * time.Hour
	maxConcurrentFetches   = 4

	// Bloom sizing: false positives only cost a spurious audit annotation.
	bloomExpectedItems     = 1_000_000
	bloomFalsePositiveRate = 0.001
)

var (
	filter      atomicFilter
	refreshOnce singleflight.Group
	httpClient  = &http.Client{Timeout: 30 * time.Second}
	ipRegex     = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`)
)

type atomicFilter struct {
	val atomic.Value
}

func (a *atomicFilter) Load() *bloom.BloomFilter {
	f, _ := a.val.Load().(*bloom.BloomFilter)
	return f
}

func (a *atomicFilter) Store(f *bloom.BloomFilter) {
	a.val.Store(f)
}

// Contains reports whether ip was seen in any configured feed.
func Contains(ip string) bool {
	f := filter.Load()
	if f == nil {
		return false
	}
	normalized := normalizeIP(ip)
	if normalized == "" {
		return false
	}
	return f.TestString(normalized)
}

// Initialize hydrates the membership filter from previously persisted rows.
func Initialize(ctx context.Context) error {
	ips, err := database.ListKnownBadIPs(ctx)
	if err != nil {
		return fmt.Errorf("load known-bad ips: %w", err)
	}

	f := bloom.NewWithEstimates(bloomExpectedItems, bloomFalsePositiveRate)
	for _, ip := range ips {
		f.AddString(ip)
	}
	filter.Store(f)

	log.Debug("Threat-intel filter hydrated", "ips", len(ips))
	return nil
}

// StartRefreshRoutine periodically re-downloads all configured feeds. The
// loop is leader-gated so only one controller instance fetches; all
// instances re-hydrate from the shared table afterwards.
func StartRefreshRoutine(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	err := support.RunWithLeader(ctx, refreshLockKey, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runRefreshLoop(leaderCtx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Threat-intel refresh routine stopped", "error", err)
	}
}

func runRefreshLoop(ctx context.Context) {
	interval := config.GetConfig().Intel.RefreshTimer.Duration()
	if interval <= 0 {
		interval = defaultRefreshInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	triggerRefresh(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			triggerRefresh(ctx, "scheduled")
		}
	}
}

func triggerRefresh(ctx context.Context, reason string) {
	added, err := Refresh(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Threat-intel refresh canceled", "reason", reason)
		} else {
			log.Error("Threat-intel refresh failed", "reason", reason, "error", err)
		}
		return
	}
	log.Info("Threat-intel refresh completed", "reason", reason, "new_ips", added)
}

// Refresh downloads all configured feeds, persists the addresses and swaps
// in a freshly built filter. Concurrent calls collapse into one fetch.
func Refresh(ctx context.Context) (int64, error) {
	result, err, _ := refreshOnce.Do("refresh", func() (any, error) {
		return doRefresh(ctx)
	})
	if err != nil {
		return 0, err
	}
	added, _ := result.(int64)
	return added, nil
}

func doRefresh(ctx context.Context) (int64, error) {
	sources := append([]string(nil), config.GetConfig().Intel.Sources...)
	if len(sources) == 0 {
		return 0, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentFetches)

	perSource := make([][]string, len(sources))
	for i, source := range sources {
		i, source := i, source
		group.Go(func() error {
			ips, err := fetchSource(groupCtx, source)
			if err != nil {
				// One broken feed must not starve the rest.
				log.Warn("Threat-intel source failed", "source", source, "error", err)
				return nil
			}
			perSource[i] = ips
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return 0, err
	}

	var added int64
	for i, ips := range perSource {
		if len(ips) == 0 {
			continue
		}
		n, err := database.UpsertKnownBadIPs(ctx, ips, sources[i])
		if err != nil {
			return added, err
		}
		added += n
	}

	if err := Initialize(ctx); err != nil {
		return added, err
	}

	return added, nil
}

func fetchSource(ctx context.Context, source string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	seen := make(map[string]struct{})
	var ips []string

	scanner := bufio.NewScanner(io.LimitReader(resp.Body, maxResponseBytes))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		for _, match := range ipRegex.FindAllString(line, -1) {
			normalized := normalizeIP(match)
			if normalized == "" {
				continue
			}
			if _, dup := seen[normalized]; dup {
				continue
			}
			seen[normalized] = struct{}{}
			ips = append(ips, normalized)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return ips, nil
}

func normalizeIP(raw string) string {
	parsed := net.ParseIP(strings.TrimSpace(raw))
	if parsed == nil {
		return ""
	}
	return parsed.String()
}
