package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Mode selects the payload volume and distinctiveness of a scan.
type Mode string

const (
	ModeStandard   Mode = "standard"
	ModeAggressive Mode = "aggressive"
	ModeStealth    Mode = "stealth"
)

// ParseMode converts a user-supplied mode string to a Mode. Unknown values
// are a configuration defect and must abort before any network activity.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeStandard:
		return ModeStandard, nil
	case ModeAggressive:
		return ModeAggressive, nil
	case ModeStealth:
		return ModeStealth, nil
	default:
		return "", fmt.Errorf("unknown scan mode %q (expected standard, aggressive or stealth)", s)
	}
}

// Config holds all configuration for the cachefang scanner. Fields are
// populated by Viper from flags, environment variables and an optional
// config file.
type Config struct {
	Targets     []string
	TargetsFile string
	Stdin       bool

	Mode           Mode
	Threads        int
	DelaySeconds   float64
	TimeoutSeconds float64
	Verbose        bool

	MaxURLs          int
	MaxDepth         int
	DiscoveryWorkers int

	VerifyAttempts           int
	ReproducibilityThreshold float64
	MinConfidence            float64

	UserAgent          string
	Proxy              string
	InsecureSkipVerify bool
	MaxRedirects       int

	OutputFile   string
	OutputFormat string
	NoColor      bool
	Silent       bool
}

// DefaultConfig returns a Config populated with default values. Viper sets
// these as defaults and overrides them with flags and environment variables.
func DefaultConfig() *Config {
	return &Config{
		Mode:                     ModeStandard,
		Threads:                  10,
		DelaySeconds:             1.0,
		TimeoutSeconds:           10.0,
		MaxURLs:                  100,
		MaxDepth:                 2,
		DiscoveryWorkers:         5,
		VerifyAttempts:           3,
		ReproducibilityThreshold: 0.6,
		MinConfidence:            0.5,
		UserAgent:                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Safari/537.36",
		MaxRedirects:             5,
		OutputFormat:             "text",
	}
}

// Timeout returns the per-request timeout as a time.Duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// Delay returns the inter-request delay as a time.Duration.
func (c *Config) Delay() time.Duration {
	return time.Duration(c.DelaySeconds * float64(time.Second))
}

// Validate checks the configuration for defects. Any error returned here is
// fatal: it indicates a programming or configuration mistake, not a scan
// condition, and the scan must not start.
func (c *Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.Threads < 1 {
		return fmt.Errorf("threads must be at least 1, got %d", c.Threads)
	}
	if c.DelaySeconds < 0 {
		return fmt.Errorf("delay must not be negative, got %g", c.DelaySeconds)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout must be positive, got %g", c.TimeoutSeconds)
	}
	if c.MaxURLs < 1 {
		return fmt.Errorf("max-urls must be at least 1, got %d", c.MaxURLs)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max-depth must not be negative, got %d", c.MaxDepth)
	}
	if c.DiscoveryWorkers < 1 {
		return fmt.Errorf("discovery workers must be at least 1, got %d", c.DiscoveryWorkers)
	}
	if c.VerifyAttempts < 2 {
		return fmt.Errorf("verify-attempts must be at least 2, got %d", c.VerifyAttempts)
	}
	if c.ReproducibilityThreshold <= 0 || c.ReproducibilityThreshold > 1 {
		return fmt.Errorf("reproducibility threshold must be in (0, 1], got %g", c.ReproducibilityThreshold)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be in [0, 1], got %g", c.MinConfidence)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("max-redirects must not be negative, got %d", c.MaxRedirects)
	}
	if c.Proxy != "" {
		u, err := url.Parse(c.Proxy)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid proxy URL %q", c.Proxy)
		}
	}
	switch c.OutputFormat {
	case "text", "json", "html":
	default:
		return fmt.Errorf("unknown output format %q (expected text, json or html)", c.OutputFormat)
	}
	return nil
}

// String summarizes the effective configuration for debug logging.
func (c *Config) String() string {
	return fmt.Sprintf("Mode: %s, Threads: %d, Delay: %s, Timeout: %s, MaxURLs: %d, MaxDepth: %d, VerifyAttempts: %d, ReproducibilityThreshold: %.2f, Targets: %d",
		c.Mode, c.Threads, c.Delay(), c.Timeout(), c.MaxURLs, c.MaxDepth, c.VerifyAttempts, c.ReproducibilityThreshold, len(c.Targets))
}
