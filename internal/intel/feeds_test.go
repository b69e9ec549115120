package intel

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"vigil/internal/config"
	"vigil/internal/database"
	"vigil/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const feedBody = `# sample blocklist
; alt comment style
192.0.2.10
192.0.2.10
203.0.113.20 ; inline note
999.999.999.999
not an address
`

func setupIntelTest(t *testing.T, sources ...string) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(&domain.KnownBadIP{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	database.DB = db
	t.Cleanup(func() {
		database.DB = nil
	})

	var cfg config.Config
	cfg.Intel.Sources = sources
	config.SetConfigForTests(cfg)
	t.Cleanup(func() {
		config.SetConfigForTests(config.Config{})
		filter.Store(nil)
	})
}

func TestRefreshParsesPersistsAndHydrates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedBody)
	}))
	defer server.Close()

	setupIntelTest(t, server.URL)

	added, err := Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if added != 2 {
		t.Fatalf("expected 2 new addresses, got %d", added)
	}

	ips, err := database.ListKnownBadIPs(context.Background())
	if err != nil {
		t.Fatalf("list known bad ips: %v", err)
	}
	if len(ips) != 2 {
		t.Fatalf("expected 2 persisted addresses, got %d", len(ips))
	}

	if !Contains("192.0.2.10") {
		t.Fatal("expected 192.0.2.10 in filter")
	}
	if !Contains("203.0.113.20") {
		t.Fatal("expected 203.0.113.20 in filter")
	}
	if Contains("198.51.100.1") {
		t.Fatal("did not expect 198.51.100.1 in filter")
	}
}

func TestRefreshSurvivesBrokenSource(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "198.51.100.77")
	}))
	defer working.Close()

	setupIntelTest(t, broken.URL, working.URL)

	added, err := Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh must tolerate one broken source: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected 1 new address from the working source, got %d", added)
	}
	if !Contains("198.51.100.77") {
		t.Fatal("expected address from working source in filter")
	}
}

func TestContainsWithoutHydrationIsFalse(t *testing.T) {
	filter.Store(nil)

	if Contains("192.0.2.1") {
		t.Fatal("empty filter must not report membership")
	}
}
