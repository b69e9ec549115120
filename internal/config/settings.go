package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

type Config struct {
	Detection struct {
		// BlockThreshold is compared against the aggregated threat value.
		// Strictly greater than the threshold blocks; a tie only monitors.
		BlockThreshold float64 `json:"block_threshold"`

		// Whitelist holds addresses that are never blocked, whatever the
		// computed threat. Read fresh at every enforcement decision.
		Whitelist []string `json:"whitelist"`
	} `json:"detection"`

	Enforcement struct {
		Enabled        bool   `json:"enabled"`
		IPSetName      string `json:"ipset_name"`
		TimeoutSeconds uint32 `json:"timeout_seconds"`
	} `json:"enforcement"`

	Ingest struct {
		AlertWorkers    uint32  `json:"alert_workers"`
		QueueSize       uint32  `json:"queue_size"`
		SensorRateLimit float64 `json:"sensor_rate_limit"` // alerts per second per sensor
		SensorRateBurst uint32  `json:"sensor_rate_burst"`
	} `json:"ingest"`

	Runtime struct {
		SensorOfflineAfter Timer `json:"sensor_offline_after"`
		SensorSweepTimer   Timer `json:"sensor_sweep_timer"`
		BlockExpiryTimer   Timer `json:"block_expiry_timer"`
	} `json:"runtime"`

	Intel struct {
		Sources      []string `json:"sources"`
		RefreshTimer Timer    `json:"refresh_timer"`
	} `json:"intel"`

	Audit struct {
		LogFile    string `json:"log_file"`
		MaxSizeMB  int    `json:"max_size_mb"`
		MaxBackups int    `json:"max_backups"`
		MaxAgeDays int    `json:"max_age_days"`
	} `json:"audit"`

	Geo struct {
		CountryDBPath string `json:"country_db_path"`
	} `json:"geo"`
}

type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

func (t Timer) Duration() time.Duration {
	return time.Duration(t.Days)*24*time.Hour +
		time.Duration(t.Hours)*time.Hour +
		time.Duration(t.Minutes)*time.Minute +
		time.Duration(t.Seconds)*time.Second
}

const settingsFilePath = "data/settings.json"

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex

	InProductionMode bool
)

func init() {
	configValue.Store(Config{})
}

func ReadSettings() {
	data, err := os.ReadFile(settingsFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Settings file not found, creating with default configuration")

			if err := os.MkdirAll("data", os.ModePerm); err != nil {
				log.Error("Error creating directory for settings file:", err)
				return
			}

			if err := os.WriteFile(settingsFilePath, defaultConfig, os.ModePerm); err != nil {
				log.Error("Error writing default settings file:", err)
				return
			}

			data = defaultConfig
		} else {
			log.Error("Error reading settings file:", err)
			return
		}
	}

	var newConfig Config
	if err := json.Unmarshal(data, &newConfig); err != nil {
		log.Error("Error unmarshalling settings file:", err)
		return
	}

	if err := applyConfigUpdate(newConfig, configUpdateOptions{source: "file"}); err != nil {
		log.Error("Error applying configuration from settings file:", err)
		return
	}

	log.Debug("Settings file loaded successfully")
}

func SetConfig(newConfig Config) {
	if err := applyConfigUpdate(newConfig, configUpdateOptions{persistToFile: true, broadcast: true, source: "local"}); err != nil {
		log.Error("Error applying configuration update:", err)
		return
	}

	log.Debug("Configuration updated and written to file successfully")
}

type configUpdateOptions struct {
	persistToFile bool
	broadcast     bool
	source        string
}

func applyConfigUpdate(newConfig Config, opts configUpdateOptions) error {
	configMu.Lock()
	defer configMu.Unlock()

	configValue.Store(newConfig)

	var errs []error

	if opts.persistToFile {
		data, err := json.MarshalIndent(newConfig, "", "  ")
		if err != nil {
			log.Error("Error marshalling new configuration:", err)
			errs = append(errs, err)
		} else if err := os.WriteFile(settingsFilePath, data, os.ModePerm); err != nil {
			log.Error("Error writing new configuration to file:", err)
			errs = append(errs, err)
		}
	}

	if opts.broadcast {
		payload, err := json.Marshal(newConfig)
		if err != nil {
			log.Error("Error serializing configuration for broadcast:", err)
			errs = append(errs, err)
		} else if err := broadcastConfigUpdate(payload); err != nil {
			log.Error("Error broadcasting configuration update:", err)
			errs = append(errs, err)
		}
	}

	log.Debug("Configuration applied", "source", opts.source)

	return errors.Join(errs...)
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

// IsWhitelisted consults the live whitelist, never a startup snapshot. It is
// the single guard that keeps protected addresses out of enforcement.
func IsWhitelisted(ip string) bool {
	for _, entry := range GetConfig().Detection.Whitelist {
		if entry == ip {
			return true
		}
	}
	return false
}

// SetConfigForTests swaps the live configuration without touching the
// settings file or the broadcast channel.
func SetConfigForTests(newConfig Config) {
	configValue.Store(newConfig)
}

func SetProductionMode(productionMode bool) {
	InProductionMode = productionMode
}
