package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds run-wide watcher configuration.
type Config struct {
	SitesFile  string
	SitesSheet string
	StateDir   string

	GlobalTimeout   time.Duration
	SiteTimeout     time.Duration
	URLTimeout      time.Duration
	MaxParallelURLs int
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	UserAgent       string

	WebhookURL       string
	NotifySpacing    time.Duration
	NotifyDedupeSize int

	MirrorFile   string
	MirrorFormat string // csv, json, xlsx, dual, or empty to disable

	Keywords        []string
	BlockedKeywords []string
	SweepAbsent     bool

	Schedule    string
	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() *Config {
	return &Config{
		SitesFile:        "sites.yaml",
		StateDir:         "data",
		GlobalTimeout:    10 * time.Minute,
		SiteTimeout:      0,
		URLTimeout:       30 * time.Second,
		MaxParallelURLs:  4,
		MaxRetries:       2,
		RetryBackoff:     500 * time.Millisecond,
		RetryBackoffMax:  5 * time.Second,
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36 Edg/114.0.1823.43",
		NotifySpacing:    1500 * time.Millisecond,
		NotifyDedupeSize: 4096,
		MirrorFormat:     "",
		SweepAbsent:      true,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.SitesFile == "" {
		return fmt.Errorf("sites file cannot be empty")
	}
	if c.StateDir == "" {
		return fmt.Errorf("state dir cannot be empty")
	}
	if c.GlobalTimeout <= 0 {
		return fmt.Errorf("global timeout must be positive")
	}
	if c.SiteTimeout < 0 {
		return fmt.Errorf("site timeout cannot be negative")
	}
	if c.URLTimeout <= 0 {
		return fmt.Errorf("url timeout must be positive")
	}
	if c.MaxParallelURLs <= 0 {
		return fmt.Errorf("max parallel urls must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.WebhookURL != "" {
		parsed, err := url.Parse(c.WebhookURL)
		if err != nil {
			return fmt.Errorf("invalid webhook URL: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("webhook URL must include a host")
		}
	}
	if c.NotifySpacing < 0 {
		return fmt.Errorf("notify spacing cannot be negative")
	}
	if c.NotifyDedupeSize <= 0 {
		return fmt.Errorf("notify dedupe size must be positive")
	}
	switch c.MirrorFormat {
	case "":
	case "csv", "json", "xlsx", "dual":
		if c.MirrorFile == "" {
			return fmt.Errorf("mirror file cannot be empty when mirror format is %s", c.MirrorFormat)
		}
	default:
		return fmt.Errorf("mirror format must be csv, json, xlsx, or dual")
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
		}
	}
	return nil
}
