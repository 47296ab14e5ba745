package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the base name of the optional config file looked up beside the
// executable and in the working directory.
const FileName = "tabletdrivercleanup"

type Config struct {
	DryRun          bool     `mapstructure:"dry_run" yaml:"dry_run"`
	Interactive     bool     `mapstructure:"interactive" yaml:"interactive"`
	UseCache        bool     `mapstructure:"use_cache" yaml:"use_cache"`
	AllowUpdates    bool     `mapstructure:"allow_updates" yaml:"allow_updates"`
	DisabledModules []string `mapstructure:"disabled_modules" yaml:"disabled_modules"`

	IdentifiersBaseURL string `mapstructure:"identifiers_base_url" yaml:"identifiers_base_url"`
	IdentifiersRef     string `mapstructure:"identifiers_ref" yaml:"identifiers_ref"`
	CacheDir           string `mapstructure:"cache_dir" yaml:"cache_dir"`
	DumpDir            string `mapstructure:"dump_dir" yaml:"dump_dir"`

	HTTPTimeoutSeconds int `mapstructure:"http_timeout_seconds" yaml:"http_timeout_seconds"`
	HTTPMaxRetries     int `mapstructure:"http_max_retries" yaml:"http_max_retries"`
	GracePeriodMs      int `mapstructure:"grace_period_ms" yaml:"grace_period_ms"`
	PollIntervalMs     int `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	DumpWorkers        int `mapstructure:"dump_workers" yaml:"dump_workers"`

	LogLevel      string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat     string `mapstructure:"log_format" yaml:"log_format"`
	LogFile       string `mapstructure:"log_file" yaml:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups" yaml:"log_max_backups"`
}

func Default() *Config {
	return &Config{
		Interactive:        true,
		UseCache:           true,
		AllowUpdates:       true,
		IdentifiersBaseURL: "https://raw.githubusercontent.com/X9VoiD/TabletDriverCleanup",
		IdentifiersRef:     "v4.x",
		CacheDir:           "config",
		DumpDir:            "dumps",
		HTTPTimeoutSeconds: 15,
		HTTPMaxRetries:     0,
		GracePeriodMs:      500,
		PollIntervalMs:     20,
		DumpWorkers:        3,
		LogLevel:           "info",
		LogFormat:          "text",
		LogFile:            "log.txt",
		LogMaxSizeMB:       5,
		LogMaxBackups:      3,
	}
}

// Load reads cfgFile, or the default config file when cfgFile is empty, over
// the defaults. A missing default file is not an error. Environment variables
// prefixed with TDC_ override file values.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(ExecutableDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TDC")
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// bindEnv registers every key so AutomaticEnv applies to keys absent from
// the config file too.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"dry_run", "interactive", "use_cache", "allow_updates", "disabled_modules",
		"identifiers_base_url", "identifiers_ref", "cache_dir", "dump_dir",
		"http_timeout_seconds", "http_max_retries", "grace_period_ms",
		"poll_interval_ms", "dump_workers",
		"log_level", "log_format", "log_file", "log_max_size_mb", "log_max_backups",
	} {
		_ = v.BindEnv(key)
	}
}

// ResolvePaths makes the relative cache, dump and log paths relative to
// baseDir.
func (c *Config) ResolvePaths(baseDir string) {
	c.CacheDir = resolve(baseDir, c.CacheDir)
	c.DumpDir = resolve(baseDir, c.DumpDir)
	c.LogFile = resolve(baseDir, c.LogFile)
}

func resolve(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// ModuleEnabled reports whether the module with the given CLI name is not
// listed in DisabledModules.
func (c *Config) ModuleEnabled(cliName string) bool {
	for _, name := range c.DisabledModules {
		if name == cliName {
			return false
		}
	}
	return true
}

// DisableModule adds cliName to DisabledModules.
func (c *Config) DisableModule(cliName string) {
	if c.ModuleEnabled(cliName) {
		c.DisabledModules = append(c.DisabledModules, cliName)
	}
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// SaveTo writes cfg as YAML to cfgFile, or to the default config file beside
// the executable when cfgFile is empty.
func SaveTo(cfg *Config, cfgFile string) (string, error) {
	cfgPath := cfgFile
	if cfgPath == "" {
		cfgPath = filepath.Join(ExecutableDir(), FileName+".yaml")
	}
	if dir := filepath.Dir(cfgPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
	}

	data, err := cfg.YAML()
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return "", err
	}
	return cfgPath, nil
}

// ExecutableDir returns the directory containing the running executable,
// falling back to the working directory.
func ExecutableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}
