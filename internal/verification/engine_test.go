package verification

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"vigil/internal/config"
	"vigil/internal/database"
	"vigil/internal/domain"
	"vigil/internal/enforcement"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeEnforcer struct {
	mu       sync.Mutex
	blocked  []fakeBlockCall
	unblocks []string
	failWith error
}

type fakeBlockCall struct {
	IP       string
	Duration time.Duration
}

func (f *fakeEnforcer) Block(ctx context.Context, ip string, duration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.blocked = append(f.blocked, fakeBlockCall{IP: ip, Duration: duration})
	return nil
}

func (f *fakeEnforcer) Unblock(ctx context.Context, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unblocks = append(f.unblocks, ip)
	return nil
}

func (f *fakeEnforcer) blockCalls() []fakeBlockCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeBlockCall(nil), f.blocked...)
}

func setupEngineTest(t *testing.T, threshold float64, whitelist ...string) (*Engine, *fakeEnforcer, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		t.Fatalf("set busy timeout: %v", err)
	}

	if err := db.AutoMigrate(
		&domain.SensorNode{},
		&domain.Alert{},
		&domain.BlockEvent{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	database.DB = db
	t.Cleanup(func() {
		database.DB = nil
	})

	var cfg config.Config
	cfg.Detection.BlockThreshold = threshold
	cfg.Detection.Whitelist = whitelist
	config.SetConfigForTests(cfg)
	t.Cleanup(func() {
		config.SetConfigForTests(config.Config{})
	})

	enforcer := &fakeEnforcer{}
	engine := NewEngine(db, enforcement.NewCoordinator(enforcer))
	return engine, enforcer, db
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestProcessAlertWeightsNewObservationByTrust(t *testing.T) {
	engine, _, db := setupEngineTest(t, 100)

	sensor := domain.SensorNode{ID: "s-weighted", Address: "10.0.0.5", TrustScore: 80}
	if err := db.Create(&sensor).Error; err != nil {
		t.Fatalf("create sensor: %v", err)
	}

	result, err := engine.ProcessAlert(context.Background(), sensor.ID, "203.0.113.10", 40)
	if err != nil {
		t.Fatalf("process alert: %v", err)
	}

	if !almostEqual(result.Trust, 80) {
		t.Fatalf("expected trust 80, got %v", result.Trust)
	}
	if !almostEqual(result.Threat, 32) {
		t.Fatalf("expected threat 40*0.8 = 32, got %v", result.Threat)
	}
	if result.Verdict != VerdictMonitor {
		t.Fatalf("expected monitor verdict, got %v", result.Verdict)
	}

	var alertCount int64
	if err := db.Model(&domain.Alert{}).Count(&alertCount).Error; err != nil {
		t.Fatalf("count alerts: %v", err)
	}
	if alertCount != 1 {
		t.Fatalf("expected one recorded alert, got %d", alertCount)
	}
}

func TestProcessAlertRegistersUnknownSensorWithNeutralTrust(t *testing.T) {
	engine, _, db := setupEngineTest(t, 100)

	result, err := engine.ProcessAlert(context.Background(), "never-seen", "203.0.113.11", 40)
	if err != nil {
		t.Fatalf("process alert: %v", err)
	}

	if !almostEqual(result.Trust, 50) {
		t.Fatalf("expected neutral trust 50, got %v", result.Trust)
	}
	if !almostEqual(result.Threat, 20) {
		t.Fatalf("expected threat 40*0.5 = 20, got %v", result.Threat)
	}

	var sensor domain.SensorNode
	if err := db.First(&sensor, "id = ?", "never-seen").Error; err != nil {
		t.Fatalf("expected sensor registered: %v", err)
	}
	if !almostEqual(sensor.TrustScore, 50) {
		t.Fatalf("expected persisted trust 50, got %v", sensor.TrustScore)
	}
}

func TestTrustOfConcurrentRegistrationCreatesOneSensor(t *testing.T) {
	engine, _, db := setupEngineTest(t, 100)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			trust, err := engine.Registry().TrustOf(context.Background(), "burst-sensor")
			if err != nil {
				errs <- err
				return
			}
			if !almostEqual(trust, 50) {
				errs <- fmt.Errorf("unexpected trust %v", trust)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent trust lookup: %v", err)
	}

	var count int64
	if err := db.Model(&domain.SensorNode{}).Where("id = ?", "burst-sensor").Count(&count).Error; err != nil {
		t.Fatalf("count sensors: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one sensor record, got %d", count)
	}
}

func TestProcessAlertWindowExcludesOldAlerts(t *testing.T) {
	engine, _, db := setupEngineTest(t, 1000)

	now := time.Now().UTC()
	history := []domain.Alert{
		{SensorID: "s1", SourceIP: "198.51.100.7", Score: 500, Timestamp: now.Add(-61 * time.Minute)},
		{SensorID: "s1", SourceIP: "198.51.100.7", Score: 30, Timestamp: now.Add(-59 * time.Minute)},
	}
	if err := db.Create(&history).Error; err != nil {
		t.Fatalf("seed history: %v", err)
	}

	result, err := engine.ProcessAlert(context.Background(), "s1", "198.51.100.7", 10)
	if err != nil {
		t.Fatalf("process alert: %v", err)
	}

	// 30 raw from the in-window alert, plus 10*0.5 for the new one. The
	// 61-minute-old score must not appear.
	if !almostEqual(result.Threat, 35) {
		t.Fatalf("expected threat 35, got %v", result.Threat)
	}
}

func TestProcessAlertHistoricalScoresCountRaw(t *testing.T) {
	engine, _, db := setupEngineTest(t, 100)

	sensor := domain.SensorNode{ID: "s-new", TrustScore: 50}
	if err := db.Create(&sensor).Error; err != nil {
		t.Fatalf("create sensor: %v", err)
	}

	// First report: 85 * 0.5 = 42.5, stays below the threshold.
	first, err := engine.ProcessAlert(context.Background(), sensor.ID, "9.9.9.9", 85)
	if err != nil {
		t.Fatalf("first alert: %v", err)
	}
	if !almostEqual(first.Threat, 42.5) {
		t.Fatalf("expected threat 42.5, got %v", first.Threat)
	}
	if first.Verdict != VerdictMonitor {
		t.Fatalf("expected monitor, got %v", first.Verdict)
	}

	// Second report: the historical 85 contributes raw, the new 80 is
	// weighted, so 85 + 40 = 125 crosses the threshold.
	second, err := engine.ProcessAlert(context.Background(), sensor.ID, "9.9.9.9", 80)
	if err != nil {
		t.Fatalf("second alert: %v", err)
	}
	if !almostEqual(second.Threat, 125) {
		t.Fatalf("expected threat 125, got %v", second.Threat)
	}
	if second.Verdict != VerdictBlock {
		t.Fatalf("expected block, got %v", second.Verdict)
	}

	var events []domain.BlockEvent
	if err := db.Find(&events).Error; err != nil {
		t.Fatalf("load block events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one block event, got %d", len(events))
	}
	if events[0].Reason != "Threat Score: 125.00" {
		t.Fatalf("unexpected reason %q", events[0].Reason)
	}
	if events[0].ExpiresAt == nil {
		t.Fatal("expected expiry on block event")
	}
	if got := events[0].ExpiresAt.Sub(events[0].BlockedAt); got != 5*time.Minute {
		t.Fatalf("expected first-offense duration 5m, got %v", got)
	}
}

func TestProcessAlertTieResolvesToMonitor(t *testing.T) {
	engine, enforcer, db := setupEngineTest(t, 100)

	// 200 * 0.5 lands exactly on the threshold.
	result, err := engine.ProcessAlert(context.Background(), "s-tie", "203.0.113.42", 200)
	if err != nil {
		t.Fatalf("process alert: %v", err)
	}

	if !almostEqual(result.Threat, 100) {
		t.Fatalf("expected threat 100, got %v", result.Threat)
	}
	if result.Verdict != VerdictMonitor {
		t.Fatalf("tie must monitor, got %v", result.Verdict)
	}

	var count int64
	if err := db.Model(&domain.BlockEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count block events: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no block events on a tie, got %d", count)
	}
	if calls := enforcer.blockCalls(); len(calls) != 0 {
		t.Fatalf("expected no firewall calls, got %d", len(calls))
	}
}

func TestProcessAlertWhitelistedAddressNeverBlocked(t *testing.T) {
	engine, enforcer, db := setupEngineTest(t, 100, "127.0.0.1")

	result, err := engine.ProcessAlert(context.Background(), "s-wl", "127.0.0.1", 100000)
	if err != nil {
		t.Fatalf("process alert: %v", err)
	}

	if result.Verdict != VerdictBlock {
		t.Fatalf("threat computation should still cross threshold, got %v", result.Verdict)
	}
	if result.Outcome.Status != enforcement.StatusSkipped {
		t.Fatalf("expected skipped outcome, got %v", result.Outcome.Status)
	}
	if result.Outcome.Reason != enforcement.ReasonWhitelisted {
		t.Fatalf("expected whitelist reason, got %q", result.Outcome.Reason)
	}

	var count int64
	if err := db.Model(&domain.BlockEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count block events: %v", err)
	}
	if count != 0 {
		t.Fatalf("whitelisted address must never get a block event, got %d", count)
	}
	if calls := enforcer.blockCalls(); len(calls) != 0 {
		t.Fatalf("whitelisted address must never reach the firewall, got %d calls", len(calls))
	}
}

func TestProcessAlertConcurrentSameAddressBlocksOnce(t *testing.T) {
	engine, enforcer, db := setupEngineTest(t, 100)

	sensor := domain.SensorNode{ID: "s-conc", TrustScore: 50}
	if err := db.Create(&sensor).Error; err != nil {
		t.Fatalf("create sensor: %v", err)
	}

	// Each alert alone is worth 15 weighted; jointly the raw history pushes
	// the sum far past the threshold, so several of the serialized runs see
	// a Block verdict. Only the first may enforce.
	const concurrent = 8
	var wg sync.WaitGroup
	errs := make(chan error, concurrent)

	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.ProcessAlert(context.Background(), "s-conc", "198.51.100.99", 30); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent alert: %v", err)
	}

	var alertCount int64
	if err := db.Model(&domain.Alert{}).Count(&alertCount).Error; err != nil {
		t.Fatalf("count alerts: %v", err)
	}
	if alertCount != concurrent {
		t.Fatalf("expected %d recorded alerts, got %d", concurrent, alertCount)
	}

	var blockCount int64
	if err := db.Model(&domain.BlockEvent{}).Count(&blockCount).Error; err != nil {
		t.Fatalf("count block events: %v", err)
	}
	if blockCount != 1 {
		t.Fatalf("expected exactly one block event, got %d", blockCount)
	}
	if calls := enforcer.blockCalls(); len(calls) != 1 {
		t.Fatalf("expected exactly one firewall call, got %d", len(calls))
	}
}

func TestProcessAlertActivelyBlockedAddressSkipsEnforcement(t *testing.T) {
	engine, enforcer, db := setupEngineTest(t, 10)

	first, err := engine.ProcessAlert(context.Background(), "s-rep", "203.0.113.88", 100)
	if err != nil {
		t.Fatalf("first alert: %v", err)
	}
	if first.Outcome.Status != enforcement.StatusBlocked {
		t.Fatalf("expected first alert to block, got %+v", first.Outcome)
	}

	second, err := engine.ProcessAlert(context.Background(), "s-rep", "203.0.113.88", 100)
	if err != nil {
		t.Fatalf("second alert: %v", err)
	}
	if second.Verdict != VerdictBlock {
		t.Fatalf("second alert should still cross the threshold, got %v", second.Verdict)
	}
	if second.Outcome.Status != enforcement.StatusSkipped || second.Outcome.Reason != enforcement.ReasonAlreadyBlocked {
		t.Fatalf("expected already-blocked skip, got %+v", second.Outcome)
	}

	var count int64
	if err := db.Model(&domain.BlockEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count block events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the original block event only, got %d", count)
	}
	if calls := enforcer.blockCalls(); len(calls) != 1 {
		t.Fatalf("expected one firewall call, got %d", len(calls))
	}
}

func TestProcessAlertEnforcementFailureKeepsLedger(t *testing.T) {
	engine, enforcer, db := setupEngineTest(t, 10)
	enforcer.failWith = fmt.Errorf("ipset unavailable")

	result, err := engine.ProcessAlert(context.Background(), "s-fail", "203.0.113.77", 100)
	if err != nil {
		t.Fatalf("process alert must not fail on firewall error: %v", err)
	}
	if result.Verdict != VerdictBlock {
		t.Fatalf("expected block verdict, got %v", result.Verdict)
	}

	var count int64
	if err := db.Model(&domain.BlockEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count block events: %v", err)
	}
	if count != 1 {
		t.Fatalf("block event must survive a failed firewall call, got %d", count)
	}
}
