// Package geo annotates audit output and the admin surface with the country
// of an address. Lookups are best-effort: without a configured GeoLite2
// database every lookup returns the empty string.
package geo

import (
	"net"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"
)

var (
	mu        sync.RWMutex
	countryDB *geoip2.Reader
)

func Init(countryDBPath string) {
	if countryDBPath == "" {
		return
	}

	reader, err := geoip2.Open(countryDBPath)
	if err != nil {
		log.Warn("GeoLite2 database unavailable, geo annotation disabled", "path", countryDBPath, "error", err)
		return
	}

	mu.Lock()
	if countryDB != nil {
		countryDB.Close()
	}
	countryDB = reader
	mu.Unlock()

	log.Info("GeoLite2 country database loaded", "path", countryDBPath)
}

func Country(ip string) string {
	mu.RLock()
	reader := countryDB
	mu.RUnlock()

	if reader == nil {
		return ""
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}

	record, err := reader.Country(parsed)
	if err != nil || record == nil {
		return ""
	}
	return record.Country.IsoCode
}

func Close() {
	mu.Lock()
	defer mu.Unlock()
	if countryDB != nil {
		countryDB.Close()
		countryDB = nil
	}
}
