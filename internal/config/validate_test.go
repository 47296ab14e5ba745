package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateTieredInvalidURLSchemeIsFatal(t *testing.T) {
	cfg := Default()
	cfg.IdentifiersBaseURL = "ftp://example.com"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("invalid URL scheme should be fatal")
	}
}

func TestValidateTieredEmptyRefIsFatal(t *testing.T) {
	cfg := Default()
	cfg.IdentifiersRef = ""
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("empty identifiers_ref should be fatal")
	}
}

func TestValidateTieredTraversalInRefIsFatal(t *testing.T) {
	cfg := Default()
	cfg.IdentifiersRef = "../../etc"
	result := cfg.ValidateTiered()
	found := false
	for _, err := range result.Fatals {
		if strings.Contains(err.Error(), "invalid characters") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected invalid characters fatal, got %v", result.Fatals)
	}
}

func TestValidateTieredClampingIsWarning(t *testing.T) {
	tests := []struct {
		name  string
		apply func(*Config)
		get   func(*Config) int
		want  int
	}{
		{"poll interval low", func(c *Config) { c.PollIntervalMs = 0 }, func(c *Config) int { return c.PollIntervalMs }, 1},
		{"grace period high", func(c *Config) { c.GracePeriodMs = 999999 }, func(c *Config) int { return c.GracePeriodMs }, 60000},
		{"http retries negative", func(c *Config) { c.HTTPMaxRetries = -1 }, func(c *Config) int { return c.HTTPMaxRetries }, 0},
		{"dump workers high", func(c *Config) { c.DumpWorkers = 64 }, func(c *Config) int { return c.DumpWorkers }, 16},
		{"timeout zero", func(c *Config) { c.HTTPTimeoutSeconds = 0 }, func(c *Config) int { return c.HTTPTimeoutSeconds }, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.apply(cfg)
			result := cfg.ValidateTiered()
			if result.HasFatals() {
				t.Fatalf("clamped value should be warning, not fatal: %v", result.Fatals)
			}
			if len(result.Warnings) == 0 {
				t.Fatal("expected warning for clamped value")
			}
			if got := tt.get(cfg); got != tt.want {
				t.Fatalf("value = %d, want %d (clamped)", got, tt.want)
			}
		})
	}
}

func TestValidateTieredUnknownModuleIsWarning(t *testing.T) {
	cfg := Default()
	cfg.DisabledModules = []string{"device-cleanup", "bogus-cleanup"}
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown module should not be fatal")
	}
	found := false
	for _, err := range result.Warnings {
		if strings.Contains(err.Error(), "bogus-cleanup") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected warning about unknown module")
	}
}

func TestValidateTieredUnknownLogLevelIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown log level should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for unknown log level")
	}
}

func TestValidateTieredInvalidLogFormatIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("invalid log format should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for invalid log format")
	}
}

func TestHasFatals(t *testing.T) {
	r := ValidationResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := Default()
	cfg.IdentifiersBaseURL = "ftp://bad"   // fatal
	cfg.DisabledModules = []string{"fake"} // warning
	result := cfg.ValidateTiered()

	all := result.AllErrors()
	if len(all) < 2 {
		t.Fatalf("AllErrors() returned %d errors, expected at least 2 (fatals + warnings)", len(all))
	}
}

func TestDefaultConfigHasNoErrors(t *testing.T) {
	result := Default().ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("default config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("default config has warnings: %v", result.Warnings)
	}
}

func TestValidateReturnsFatalsAndWarnings(t *testing.T) {
	if errs := Default().Validate(); len(errs) != 0 {
		t.Fatalf("default config errors: %v", errs)
	}

	cfg := Default()
	cfg.IdentifiersRef = ""
	cfg.DumpWorkers = 64
	errs := cfg.Validate()
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), errs)
	}
	if !strings.Contains(errs[0].Error(), "identifiers_ref") {
		t.Fatalf("first error = %v, want the fatal first", errs[0])
	}
	if cfg.DumpWorkers != 16 {
		t.Fatalf("DumpWorkers = %d, want 16 (clamped)", cfg.DumpWorkers)
	}
}

func TestLoadReadsFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	content := "dry_run: true\nuse_cache: false\ndisabled_modules:\n  - driver-cleanup\ngrace_period_ms: 750\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.DryRun || cfg.UseCache {
		t.Fatalf("file values not applied: dry_run=%v use_cache=%v", cfg.DryRun, cfg.UseCache)
	}
	if !cfg.AllowUpdates || !cfg.Interactive {
		t.Fatal("defaults for keys absent from file should be kept")
	}
	if cfg.GracePeriodMs != 750 {
		t.Fatalf("GracePeriodMs = %d, want 750", cfg.GracePeriodMs)
	}
	if cfg.ModuleEnabled("driver-cleanup") {
		t.Fatal("driver-cleanup should be disabled")
	}
	if !cfg.ModuleEnabled("device-cleanup") {
		t.Fatal("device-cleanup should stay enabled")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("identifiers_ref: v4.x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TDC_IDENTIFIERS_REF", "main")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IdentifiersRef != "main" {
		t.Fatalf("IdentifiersRef = %q, want env override %q", cfg.IdentifiersRef, "main")
	}
}

func TestResolvePaths(t *testing.T) {
	base := t.TempDir()
	abs := filepath.Join(base, "elsewhere", "log.txt")

	cfg := Default()
	cfg.LogFile = abs
	cfg.ResolvePaths(base)

	if cfg.CacheDir != filepath.Join(base, "config") {
		t.Fatalf("CacheDir = %q", cfg.CacheDir)
	}
	if cfg.DumpDir != filepath.Join(base, "dumps") {
		t.Fatalf("DumpDir = %q", cfg.DumpDir)
	}
	if cfg.LogFile != abs {
		t.Fatalf("absolute LogFile should be kept, got %q", cfg.LogFile)
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.DisableModule("device-cleanup")
	cfg.DisableModule("device-cleanup")

	path, err := SaveTo(cfg, filepath.Join(t.TempDir(), "sub", "tdc.yaml"))
	if err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.DisabledModules) != 1 || loaded.DisabledModules[0] != "device-cleanup" {
		t.Fatalf("DisabledModules = %v, want [device-cleanup]", loaded.DisabledModules)
	}
}
