package enforcement

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"vigil/internal/config"

	"github.com/charmbracelet/log"
)

// Enforcer is the opaque external firewall mechanism. Implementations must
// tolerate repeated calls for the same address; the engine deduplicates at
// the per-address serialization layer, not here.
type Enforcer interface {
	Block(ctx context.Context, ip string, duration time.Duration) error
	Unblock(ctx context.Context, ip string) error
}

// IPSetEnforcer drives an ipset set consumed by an iptables DROP rule. The
// entry timeout makes the kernel expire blocks even if the expiry sweep is
// not running.
type IPSetEnforcer struct {
	mu      sync.Mutex // ipset mutations are serialized
	set     string
	timeout time.Duration
}

func NewIPSetEnforcer(set string, timeout time.Duration) *IPSetEnforcer {
	if set == "" {
		set = "vigil_blocklist"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &IPSetEnforcer{set: set, timeout: timeout}
}

func (e *IPSetEnforcer) Block(ctx context.Context, ip string, duration time.Duration) error {
	// Loopback can never be blocked, whatever the caller decided.
	if ip == "127.0.0.1" || ip == "::1" {
		return fmt.Errorf("refusing to block loopback address %s", ip)
	}
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("invalid ip address: %s", ip)
	}

	seconds := strconv.Itoa(int(duration / time.Second))
	return e.run(ctx, "add", e.set, ip, "timeout", seconds, "-exist")
}

func (e *IPSetEnforcer) Unblock(ctx context.Context, ip string) error {
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("invalid ip address: %s", ip)
	}
	return e.run(ctx, "del", e.set, ip, "-exist")
}

func (e *IPSetEnforcer) run(ctx context.Context, args ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "ipset", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(output))
		if runCtx.Err() != nil {
			return fmt.Errorf("ipset timed out: %w (args: %v)", runCtx.Err(), args)
		}
		return fmt.Errorf("ipset exec error: %s (args: %v)", msg, args)
	}
	return nil
}

// NoopEnforcer is used when enforcement is disabled in configuration; block
// decisions still reach the ledger and the audit log.
type NoopEnforcer struct{}

func (NoopEnforcer) Block(_ context.Context, ip string, duration time.Duration) error {
	log.Debug("enforcement disabled, block not applied", "ip", ip, "duration", duration)
	return nil
}

func (NoopEnforcer) Unblock(_ context.Context, ip string) error {
	log.Debug("enforcement disabled, unblock not applied", "ip", ip)
	return nil
}

// NewEnforcerFromConfig selects the production enforcer or the noop one.
func NewEnforcerFromConfig(cfg config.Config) Enforcer {
	if !cfg.Enforcement.Enabled {
		log.Warn("Firewall enforcement is disabled; decisions will only be recorded")
		return NoopEnforcer{}
	}
	return NewIPSetEnforcer(cfg.Enforcement.IPSetName, time.Duration(cfg.Enforcement.TimeoutSeconds)*time.Second)
}
