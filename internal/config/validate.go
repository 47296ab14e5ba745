package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode"
)

var knownModules = map[string]bool{
	"driver-package-cleanup": true,
	"device-cleanup":         true,
	"driver-cleanup":         true,
}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult separates errors that must stop the run from values that
// were corrected in place.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	return append(all, r.Warnings...)
}

// Validate checks the config and returns all errors found. Out-of-range
// numbers are clamped to safe values. Errors are logged as warnings.
func (c *Config) Validate() []error {
	errs := c.ValidateTiered().AllErrors()
	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}
	return errs
}

// ValidateTiered checks the config. Values that cannot be corrected are
// fatal; clamped or ignored values are warnings.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	if c.IdentifiersBaseURL == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("identifiers_base_url must not be empty"))
	} else {
		u, err := url.Parse(c.IdentifiersBaseURL)
		if err != nil {
			r.Fatals = append(r.Fatals, fmt.Errorf("identifiers_base_url %q is not a valid URL: %w", c.IdentifiersBaseURL, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			r.Fatals = append(r.Fatals, fmt.Errorf("identifiers_base_url scheme must be http or https, got %q", u.Scheme))
		}
	}

	if c.IdentifiersRef == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("identifiers_ref must not be empty"))
	} else if strings.Contains(c.IdentifiersRef, "..") || strings.IndexFunc(c.IdentifiersRef, unicode.IsControl) >= 0 {
		r.Fatals = append(r.Fatals, fmt.Errorf("identifiers_ref %q contains invalid characters", c.IdentifiersRef))
	}

	if c.CacheDir == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("cache_dir must not be empty"))
	}
	if c.DumpDir == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("dump_dir must not be empty"))
	}

	for _, name := range c.DisabledModules {
		if !knownModules[name] {
			r.Warnings = append(r.Warnings, fmt.Errorf("unknown module %q in disabled_modules", name))
		}
	}

	clamp(&r, "http_timeout_seconds", &c.HTTPTimeoutSeconds, 1, 300)
	clamp(&r, "http_max_retries", &c.HTTPMaxRetries, 0, 10)
	clamp(&r, "grace_period_ms", &c.GracePeriodMs, 0, 60000)
	clamp(&r, "poll_interval_ms", &c.PollIntervalMs, 1, 1000)
	clamp(&r, "dump_workers", &c.DumpWorkers, 1, 16)
	clamp(&r, "log_max_size_mb", &c.LogMaxSizeMB, 1, 1024)
	clamp(&r, "log_max_backups", &c.LogMaxBackups, 1, 20)

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	return r
}

func clamp(r *ValidationResult, key string, v *int, lo, hi int) {
	switch {
	case *v < lo:
		r.Warnings = append(r.Warnings, fmt.Errorf("%s %d is below minimum %d, clamping", key, *v, lo))
		*v = lo
	case *v > hi:
		r.Warnings = append(r.Warnings, fmt.Errorf("%s %d exceeds maximum %d, clamping", key, *v, hi))
		*v = hi
	}
}
