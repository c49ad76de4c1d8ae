package config

import (
	"bytes"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
)

const (
	minCollectionIntervalSeconds = 1
	maxCollectionIntervalSeconds = 3600
	minIntervalMinutes           = 1
	maxIntervalMinutes           = 1440
	minReferenceWindowHours      = 1
	maxReferenceWindowHours      = 240
	minBatteryPercentage         = 0
	maxBatteryPercentage         = 100
	minSamplePercent             = 1
	maxSamplePercent             = 100
	minQueueSize                 = 1
	maxQueueSize                 = 100000
	minBatchSize                 = 1
	maxBatchSize                 = 20
	minRetentionDays             = 1
	maxRetentionDays             = 3650
	minCleanupIntervalHours      = 1
	maxCleanupIntervalHours      = 720
)

type Config struct {
	Storage    StorageConfig    `toml:"storage"`
	Collection CollectionConfig `toml:"collection"`
	PowerStats PowerStatsConfig `toml:"power_stats"`
	Analytics  AnalyticsConfig  `toml:"analytics"`
	Hardware   HardwareConfig   `toml:"hardware"`
	Cleanup    CleanupConfig    `toml:"cleanup"`
	Admin      AdminConfig      `toml:"admin"`
}

type StorageConfig struct {
	DBPath    string `toml:"db_path"`
	SpoolPath string `toml:"spool_path"`
}

type CollectionConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

type PowerStatsConfig struct {
	MinIntervalMinutes   int `toml:"min_interval_minutes"`
	ReferenceWindowHours int `toml:"reference_window_hours"`
	MinBatteryPercentage int `toml:"min_battery_percentage"`
}

type AnalyticsConfig struct {
	// Enabled is the usage statistics kill switch.
	Enabled       bool         `toml:"enabled"`
	TrackingID    string       `toml:"tracking_id"`
	Endpoint      string       `toml:"endpoint"`
	LogServerURL  string       `toml:"log_server_url"`
	SamplePercent int          `toml:"sample_percent"`
	QueueSize     int          `toml:"queue_size"`
	FlushSchedule string       `toml:"flush_schedule"`
	BatchSize     int          `toml:"batch_size"`
	Device        DeviceConfig `toml:"device"`
}

// DeviceConfig holds the custom dimensions attached to every hit.
type DeviceConfig struct {
	BuildType    string `toml:"build_type"`
	BuildFlavor  string `toml:"build_flavor"`
	Device       string `toml:"device"`
	Model        string `toml:"model"`
	BuildVersion string `toml:"build_version"`
	Resolution   string `toml:"resolution"`
	Density      string `toml:"density"`
}

type HardwareConfig struct {
	Enabled bool `toml:"enabled"`
}

type CleanupConfig struct {
	RetentionDays int `toml:"retention_days"`
	IntervalHours int `toml:"interval_hours"`
}

type AdminConfig struct {
	// ListenAddr is the metrics and query listener. Empty disables it.
	ListenAddr string `toml:"listen_addr"`
}

func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DBPath:    "/var/lib/power-analytics/data.db",
			SpoolPath: "/var/lib/power-analytics/events.jsonl",
		},
		Collection: CollectionConfig{
			IntervalSeconds: 5,
		},
		PowerStats: PowerStatsConfig{
			MinIntervalMinutes:   15,
			ReferenceWindowHours: 10,
			MinBatteryPercentage: 5,
		},
		Analytics: AnalyticsConfig{
			Enabled:       true,
			Endpoint:      "https://www.google-analytics.com/batch",
			SamplePercent: 100,
			QueueSize:     1024,
			FlushSchedule: "@every 30m",
			BatchSize:     20,
		},
		Hardware: HardwareConfig{
			Enabled: true,
		},
		Cleanup: CleanupConfig{
			RetentionDays: 30,
			IntervalHours: 24,
		},
		Admin: AdminConfig{
			ListenAddr: "127.0.0.1:9478",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return NormalizeAndValidate(cfg)
}

func NormalizeAndValidate(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}

	sanitized := *cfg

	var err error
	sanitized.Storage.DBPath, err = sanitizePath("storage.db_path", sanitized.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	sanitized.Storage.SpoolPath, err = sanitizePath("storage.spool_path", sanitized.Storage.SpoolPath)
	if err != nil {
		return nil, err
	}

	ranges := []struct {
		name     string
		value    int
		min, max int
	}{
		{"collection.interval_seconds", sanitized.Collection.IntervalSeconds, minCollectionIntervalSeconds, maxCollectionIntervalSeconds},
		{"power_stats.min_interval_minutes", sanitized.PowerStats.MinIntervalMinutes, minIntervalMinutes, maxIntervalMinutes},
		{"power_stats.reference_window_hours", sanitized.PowerStats.ReferenceWindowHours, minReferenceWindowHours, maxReferenceWindowHours},
		{"power_stats.min_battery_percentage", sanitized.PowerStats.MinBatteryPercentage, minBatteryPercentage, maxBatteryPercentage},
		{"analytics.sample_percent", sanitized.Analytics.SamplePercent, minSamplePercent, maxSamplePercent},
		{"analytics.queue_size", sanitized.Analytics.QueueSize, minQueueSize, maxQueueSize},
		{"analytics.batch_size", sanitized.Analytics.BatchSize, minBatchSize, maxBatchSize},
		{"cleanup.retention_days", sanitized.Cleanup.RetentionDays, minRetentionDays, maxRetentionDays},
		{"cleanup.interval_hours", sanitized.Cleanup.IntervalHours, minCleanupIntervalHours, maxCleanupIntervalHours},
	}
	for _, r := range ranges {
		if err := validateRange(r.name, r.value, r.min, r.max); err != nil {
			return nil, err
		}
	}

	sanitized.Analytics.TrackingID = strings.TrimSpace(sanitized.Analytics.TrackingID)
	sanitized.Analytics.Endpoint, err = sanitizeURL("analytics.endpoint", sanitized.Analytics.Endpoint, false)
	if err != nil {
		return nil, err
	}
	sanitized.Analytics.LogServerURL, err = sanitizeURL("analytics.log_server_url", sanitized.Analytics.LogServerURL, true)
	if err != nil {
		return nil, err
	}

	sanitized.Analytics.FlushSchedule = strings.TrimSpace(sanitized.Analytics.FlushSchedule)
	if _, err := cron.ParseStandard(sanitized.Analytics.FlushSchedule); err != nil {
		return nil, fmt.Errorf("analytics.flush_schedule: %w", err)
	}

	sanitized.Admin.ListenAddr = strings.TrimSpace(sanitized.Admin.ListenAddr)
	if sanitized.Admin.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(sanitized.Admin.ListenAddr); err != nil {
			return nil, fmt.Errorf("admin.listen_addr: %w", err)
		}
	}

	return &sanitized, nil
}

// MinInterval returns the discharge interval floor.
func (c PowerStatsConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalMinutes) * time.Minute
}

// ReferenceWindow returns the period rates are normalised to.
func (c PowerStatsConfig) ReferenceWindow() time.Duration {
	return time.Duration(c.ReferenceWindowHours) * time.Hour
}

func Save(path string, cfg *Config) error {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return fmt.Errorf("config path must not be empty")
	}

	sanitized, err := NormalizeAndValidate(cfg)
	if err != nil {
		return err
	}

	var data bytes.Buffer
	if err := toml.NewEncoder(&data).Encode(sanitized); err != nil {
		return fmt.Errorf("encode config TOML: %w", err)
	}

	dir := filepath.Dir(trimmedPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data.Bytes()); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, trimmedPath); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	tmpPath = ""

	return nil
}

func sanitizePath(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s must not be empty", name)
	}
	cleaned := filepath.Clean(trimmed)
	if !filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%s must be an absolute path, got %q", name, value)
	}
	return cleaned, nil
}

func sanitizeURL(name, value string, optional bool) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		if optional {
			return "", nil
		}
		return "", fmt.Errorf("%s must not be empty", name)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%s must be an http(s) URL, got %q", name, value)
	}
	return trimmed, nil
}

func validateRange(name string, value, min, max int) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, min, max, value)
	}

	return nil
}
