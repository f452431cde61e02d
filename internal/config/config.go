package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/izoe/variant-signer/internal/variant"
)

const (
	defaultPort           = "8080"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultPassphraseEnv  = "VARIANT_SIGNER_MANIFEST_PASSPHRASE"

	envPrefix = "VARIANT_SIGNER_"
)

// ProjectMarkers are the files whose presence marks the Android project root.
var ProjectMarkers = []string{"settings.gradle.kts", "settings.gradle"}

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	ProjectRoot          string
	Catalog              variant.Catalog
	Port                 string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
	LogLevel             string
	LogFormat            string
	Manifest             ManifestConfig
}

// ManifestConfig locates the OpenPGP material used for signing manifests.
type ManifestConfig struct {
	SigningKey    string
	PassphraseEnv string
	Keyring       string
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	ProjectRoot string                    `yaml:"project_root"`
	App         yamlApp                   `yaml:"app"`
	Flavors     []variant.Flavor          `yaml:"flavors"`
	BuildTypes  []variant.BuildTypeConfig `yaml:"build_types"`
	Signing     map[string]string         `yaml:"signing"`
	Server      yamlServer                `yaml:"server"`
	Log         yamlLog                   `yaml:"log"`
	Manifest    yamlManifest              `yaml:"manifest"`
}

type yamlApp struct {
	Name       string `yaml:"name"`
	BundleID   string `yaml:"bundle_id"`
	Namespace  string `yaml:"namespace"`
	MinSDK     int    `yaml:"min_sdk"`
	TargetSDK  int    `yaml:"target_sdk"`
	CompileSDK int    `yaml:"compile_sdk"`
	NDKVersion string `yaml:"ndk_version"`
	JavaTarget string `yaml:"java_target"`
}

type yamlServer struct {
	Port                 string        `yaml:"port"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

type yamlLog struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type yamlManifest struct {
	SigningKey    string `yaml:"signing_key"`
	PassphraseEnv string `yaml:"passphrase_env"`
	Keyring       string `yaml:"keyring"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	ProjectRoot    *string
	Port           *string
	LogLevel       *string
	LogFormat      *string
	RateLimitRPS   *float64
	RateLimitBurst *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	// Apply environment variables
	if err := applyEnvConfig(&cfg); err != nil {
		return Config{}, err
	}

	// Load from YAML file if specified (overrides environment)
	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg, filepath.Dir(overrides.ConfigFile)); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := resolveProjectRoot(&cfg); err != nil {
		return Config{}, err
	}

	// Validate final configuration
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Catalog:              variant.DefaultCatalog(),
		Port:                 defaultPort,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		LogLevel:             "info",
		LogFormat:            "json",
		Manifest: ManifestConfig{
			PassphraseEnv: defaultPassphraseEnv,
		},
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct. Relative
// project roots and manifest key paths are taken relative to the configuration
// file's directory.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig, baseDir string) error {
	if yamlCfg.ProjectRoot != "" {
		cfg.ProjectRoot = relativeTo(baseDir, yamlCfg.ProjectRoot)
	}

	applyYAMLApp(&cfg.Catalog.App, yamlCfg.App)

	if len(yamlCfg.Flavors) > 0 {
		cfg.Catalog.Flavors = yamlCfg.Flavors
	}
	if len(yamlCfg.BuildTypes) > 0 {
		cfg.Catalog.BuildTypes = yamlCfg.BuildTypes
	}
	for identity, path := range yamlCfg.Signing {
		cfg.Catalog.Identities[identity] = path
	}

	server := yamlCfg.Server
	if server.Port != "" {
		cfg.Port = server.Port
	}

	durations := []struct {
		raw    string
		target *time.Duration
		name   string
	}{
		{server.ShutdownGracePeriod, &cfg.ShutdownGracePeriod, "shutdown_grace_period"},
		{server.ReadHeaderTimeout, &cfg.ReadHeaderTimeout, "read_header_timeout"},
		{server.WriteTimeout, &cfg.WriteTimeout, "write_timeout"},
		{server.IdleTimeout, &cfg.IdleTimeout, "idle_timeout"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.target = parsed
	}

	if server.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *server.EnableRequestLogging
	}
	if server.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *server.RateLimit.RPS
	}
	if server.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *server.RateLimit.Burst
	}

	if yamlCfg.Log.Level != "" {
		cfg.LogLevel = yamlCfg.Log.Level
	}
	if yamlCfg.Log.Format != "" {
		cfg.LogFormat = yamlCfg.Log.Format
	}

	if yamlCfg.Manifest.SigningKey != "" {
		cfg.Manifest.SigningKey = relativeTo(baseDir, yamlCfg.Manifest.SigningKey)
	}
	if yamlCfg.Manifest.PassphraseEnv != "" {
		cfg.Manifest.PassphraseEnv = yamlCfg.Manifest.PassphraseEnv
	}
	if yamlCfg.Manifest.Keyring != "" {
		cfg.Manifest.Keyring = relativeTo(baseDir, yamlCfg.Manifest.Keyring)
	}

	return nil
}

func relativeTo(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func applyYAMLApp(app *variant.AppInfo, y yamlApp) {
	if y.Name != "" {
		app.Name = y.Name
	}
	if y.BundleID != "" {
		app.BundleID = y.BundleID
	}
	if y.Namespace != "" {
		app.Namespace = y.Namespace
	}
	if y.MinSDK > 0 {
		app.MinSDK = y.MinSDK
	}
	if y.TargetSDK > 0 {
		app.TargetSDK = y.TargetSDK
	}
	if y.CompileSDK > 0 {
		app.CompileSDK = y.CompileSDK
	}
	if y.NDKVersion != "" {
		app.NDKVersion = y.NDKVersion
	}
	if y.JavaTarget != "" {
		app.JavaTarget = y.JavaTarget
	}
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) error {
	if root := env("PROJECT_ROOT"); root != "" {
		cfg.ProjectRoot = root
	}

	if port := env("PORT"); port != "" {
		cfg.Port = port
	}

	if level := env("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if format := env("LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}

	if rps := env("RATE_LIMIT_RPS"); rps != "" {
		value, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return fmt.Errorf("parse %sRATE_LIMIT_RPS: %w", envPrefix, err)
		}
		cfg.RateLimitRPS = value
	}

	if burst := env("RATE_LIMIT_BURST"); burst != "" {
		value, err := strconv.Atoi(burst)
		if err != nil {
			return fmt.Errorf("parse %sRATE_LIMIT_BURST: %w", envPrefix, err)
		}
		cfg.RateLimitBurst = value
	}

	return nil
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + name))
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.ProjectRoot != nil && *overrides.ProjectRoot != "" {
		cfg.ProjectRoot = *overrides.ProjectRoot
	}

	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}

	if overrides.LogFormat != nil && *overrides.LogFormat != "" {
		cfg.LogFormat = *overrides.LogFormat
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}
}

// resolveProjectRoot makes the project root absolute, discovering it from the
// working directory when no source set it.
func resolveProjectRoot(cfg *Config) error {
	if cfg.ProjectRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		root, err := FindProjectRoot(wd)
		if err != nil {
			root = wd
		}
		cfg.ProjectRoot = root
	}

	abs, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}
	cfg.ProjectRoot = abs
	return nil
}

// FindProjectRoot walks up from start until it finds a directory containing
// one of ProjectMarkers.
func FindProjectRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}

	for {
		for _, marker := range ProjectMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("unable to locate project root above %s", start)
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	info, err := os.Stat(cfg.ProjectRoot)
	if err != nil {
		return fmt.Errorf("project root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project root %s is not a directory", cfg.ProjectRoot)
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("port cannot be empty")
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("%sRATE_LIMIT_RPS must be >= 0", envPrefix)
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("%sRATE_LIMIT_BURST must be >= 0", envPrefix)
	}
	if err := cfg.Catalog.Validate(); err != nil {
		return err
	}
	return nil
}
