package application

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Thresholds defines outcome-churn alert thresholds for one backfill run.
type Thresholds struct {
	ChangedAbs int     `yaml:"changed_abs" json:"changed_abs"`
	ChangedPct float64 `yaml:"changed_pct" json:"changed_pct"`
	ReviewAbs  int     `yaml:"review_abs" json:"review_abs"`
}

// Config defines backfill configuration.
type Config struct {
	Defaults      Thresholds            `yaml:"defaults"`
	Tenants       map[string]Thresholds `yaml:"tenants"`
	Schedule      ScheduleConfig        `yaml:"schedule"`
	StorageRoot   string                `yaml:"storage_root"`
	WebhookURL    string                `yaml:"webhook_url"`
	PublicBaseURL string                `yaml:"public_base_url"`
}

// ScheduleConfig defines the daily schedule.
type ScheduleConfig struct {
	DailyAt string   `yaml:"daily_at"`
	Tenants []string `yaml:"tenants"`
}

// LoadConfig loads config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := Config{
		Defaults: Thresholds{
			ChangedAbs: 10,
			ChangedPct: 0.05,
			ReviewAbs:  20,
		},
		StorageRoot:   getenvDefault("BACKFILL_STORAGE_ROOT", filepath.FromSlash("var/reports/backfill")),
		WebhookURL:    os.Getenv("BACKFILL_WEBHOOK_URL"),
		PublicBaseURL: getenvDefault("BACKFILL_PUBLIC_BASE_URL", "http://localhost:8080"),
	}

	if path := os.Getenv("BACKFILL_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.Schedule.DailyAt == "" {
		cfg.Schedule.DailyAt = getenvDefault("BACKFILL_DAILY_AT", "02:00")
	}
	if len(cfg.Schedule.Tenants) == 0 {
		cfg.Schedule.Tenants = splitCSV(getenvDefault("BACKFILL_TENANTS", ""))
	}
	if cfg.StorageRoot == "" {
		return cfg, errors.New("backfill: storage root required")
	}
	return cfg, nil
}

// ThresholdsForTenant returns thresholds for a tenant.
func (c Config) ThresholdsForTenant(tenantID string) Thresholds {
	if c.Tenants != nil {
		if override, ok := c.Tenants[tenantID]; ok {
			return mergeThresholds(c.Defaults, override)
		}
	}
	return c.Defaults
}

func mergeThresholds(base, override Thresholds) Thresholds {
	if override.ChangedAbs != 0 {
		base.ChangedAbs = override.ChangedAbs
	}
	if override.ChangedPct != 0 {
		base.ChangedPct = override.ChangedPct
	}
	if override.ReviewAbs != 0 {
		base.ReviewAbs = override.ReviewAbs
	}
	return base
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
