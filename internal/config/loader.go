package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/example/eventflow/internal/access"
)

// Environment selects development-only behaviour such as demo seeding and
// the diagnostics endpoint.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
	EnvTest        Environment = "test"
)

// ParseEnvironment accepts the long names and the dev/prod abbreviations.
func ParseEnvironment(value string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "development", "dev":
		return EnvDevelopment, nil
	case "production", "prod":
		return EnvProduction, nil
	case "test":
		return EnvTest, nil
	}
	return "", fmt.Errorf("unknown environment %q", value)
}

// Config captures environment driven configuration values for the EventFlow service.
type Config struct {
	HTTPPort      int
	SQLiteDSN     string
	SessionSecret string
	SessionTTL    time.Duration
	Environment   Environment
	LogLevel      slog.Level

	RevocationPolicy access.RevocationPolicy
	AutosaveInterval time.Duration
	PreferencesDir   string
	SeedDemo         bool

	LowAvailabilityThreshold  int
	RegistrationClosingWindow time.Duration
	ActivityLogSize           int
	QRCacheSize               int
}

// Development reports whether development-only features are enabled.
func (c Config) Development() bool {
	return c.Environment == EnvDevelopment
}

// Thresholds is the shape of the optional YAML file named by EVENTFLOW_CONFIG_FILE.
type Thresholds struct {
	LowAvailability           *int   `yaml:"low_availability"`
	RegistrationClosingWindow string `yaml:"registration_closing_window"`
	ActivityLogSize           *int   `yaml:"activity_log_size"`
	QRCacheSize               *int   `yaml:"qr_cache_size"`
	AutosaveInterval          string `yaml:"autosave_interval"`
	RevocationPolicy          string `yaml:"revocation_policy"`
}

// Variables lists every environment variable the loader understands.
var Variables = []string{
	"EVENTFLOW_ENV",
	"EVENTFLOW_ENV_FILE",
	"EVENTFLOW_CONFIG_FILE",
	"EVENTFLOW_HTTP_PORT",
	"EVENTFLOW_SQLITE_DSN",
	"EVENTFLOW_SESSION_SECRET",
	"EVENTFLOW_SESSION_TTL",
	"EVENTFLOW_LOG_LEVEL",
	"EVENTFLOW_REVOCATION_POLICY",
	"EVENTFLOW_AUTOSAVE_INTERVAL",
	"EVENTFLOW_PREFERENCES_DIR",
	"EVENTFLOW_SEED_DEMO",
	"EVENTFLOW_LOW_AVAILABILITY_THRESHOLD",
	"EVENTFLOW_REGISTRATION_CLOSING_WINDOW",
	"EVENTFLOW_ACTIVITY_LOG_SIZE",
	"EVENTFLOW_QR_CACHE_SIZE",
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		HTTPPort:                  8080,
		SQLiteDSN:                 "file:eventflow.db",
		SessionTTL:                24 * time.Hour,
		Environment:               EnvDevelopment,
		LogLevel:                  slog.LevelInfo,
		RevocationPolicy:          access.PolicyUnion,
		AutosaveInterval:          30 * time.Second,
		LowAvailabilityThreshold:  50,
		RegistrationClosingWindow: 7 * 24 * time.Hour,
		ActivityLogSize:           10,
		QRCacheSize:               1024,
	}
}

// Load parses configuration values from the current process environment.
//
// An optional dotenv file (EVENTFLOW_ENV_FILE, default ".env") is read first;
// variables already present in the environment win over it. Values from the
// YAML file named by EVENTFLOW_CONFIG_FILE are applied before environment
// variables, so the environment has the last word.
func Load() (Config, error) {
	envFile := strings.TrimSpace(os.Getenv("EVENTFLOW_ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	cfg := Defaults()
	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 4)

	if path := strings.TrimSpace(os.Getenv("EVENTFLOW_CONFIG_FILE")); path != "" {
		t, err := ReadThresholds(path)
		if err != nil {
			return Config{}, err
		}
		invalid = append(invalid, cfg.applyThresholds(t)...)
	}

	if env, err := ParseEnvironment(os.Getenv("EVENTFLOW_ENV")); err != nil {
		invalid = append(invalid, "EVENTFLOW_ENV")
	} else {
		cfg.Environment = env
	}

	if portValue := strings.TrimSpace(os.Getenv("EVENTFLOW_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "EVENTFLOW_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("EVENTFLOW_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if secret := strings.TrimSpace(os.Getenv("EVENTFLOW_SESSION_SECRET")); secret != "" {
		cfg.SessionSecret = secret
	} else if cfg.Environment == EnvProduction {
		missing = append(missing, "EVENTFLOW_SESSION_SECRET")
	}

	if ttlValue := strings.TrimSpace(os.Getenv("EVENTFLOW_SESSION_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "EVENTFLOW_SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}

	if level := strings.TrimSpace(os.Getenv("EVENTFLOW_LOG_LEVEL")); level != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
			invalid = append(invalid, "EVENTFLOW_LOG_LEVEL")
		}
	}

	if value, ok := os.LookupEnv("EVENTFLOW_REVOCATION_POLICY"); ok {
		policy, err := access.ParseRevocationPolicy(value)
		if err != nil {
			invalid = append(invalid, "EVENTFLOW_REVOCATION_POLICY")
		} else {
			cfg.RevocationPolicy = policy
		}
	}

	if value := strings.TrimSpace(os.Getenv("EVENTFLOW_AUTOSAVE_INTERVAL")); value != "" {
		interval, err := time.ParseDuration(value)
		if err != nil || interval <= 0 {
			invalid = append(invalid, "EVENTFLOW_AUTOSAVE_INTERVAL")
		} else {
			cfg.AutosaveInterval = interval
		}
	}

	if dir := strings.TrimSpace(os.Getenv("EVENTFLOW_PREFERENCES_DIR")); dir != "" {
		cfg.PreferencesDir = dir
	}

	if value := strings.TrimSpace(os.Getenv("EVENTFLOW_SEED_DEMO")); value != "" {
		seed, err := strconv.ParseBool(value)
		if err != nil {
			invalid = append(invalid, "EVENTFLOW_SEED_DEMO")
		} else {
			cfg.SeedDemo = seed
		}
	}

	for _, v := range []struct {
		key string
		dst *int
		min int
	}{
		{"EVENTFLOW_LOW_AVAILABILITY_THRESHOLD", &cfg.LowAvailabilityThreshold, 0},
		{"EVENTFLOW_ACTIVITY_LOG_SIZE", &cfg.ActivityLogSize, 1},
		{"EVENTFLOW_QR_CACHE_SIZE", &cfg.QRCacheSize, 1},
	} {
		value := strings.TrimSpace(os.Getenv(v.key))
		if value == "" {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < v.min {
			invalid = append(invalid, v.key)
			continue
		}
		*v.dst = n
	}

	if value := strings.TrimSpace(os.Getenv("EVENTFLOW_REGISTRATION_CLOSING_WINDOW")); value != "" {
		window, err := time.ParseDuration(value)
		if err != nil || window < 0 {
			invalid = append(invalid, "EVENTFLOW_REGISTRATION_CLOSING_WINDOW")
		} else {
			cfg.RegistrationClosingWindow = window
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// ReadThresholds reads the YAML thresholds file.
func ReadThresholds(path string) (Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Thresholds{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	var t Thresholds
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Thresholds{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return t, nil
}

func (c *Config) applyThresholds(t Thresholds) []string {
	var invalid []string
	if t.LowAvailability != nil {
		if *t.LowAvailability < 0 {
			invalid = append(invalid, "low_availability")
		} else {
			c.LowAvailabilityThreshold = *t.LowAvailability
		}
	}
	if t.ActivityLogSize != nil {
		if *t.ActivityLogSize < 1 {
			invalid = append(invalid, "activity_log_size")
		} else {
			c.ActivityLogSize = *t.ActivityLogSize
		}
	}
	if t.QRCacheSize != nil {
		if *t.QRCacheSize < 1 {
			invalid = append(invalid, "qr_cache_size")
		} else {
			c.QRCacheSize = *t.QRCacheSize
		}
	}
	if t.RegistrationClosingWindow != "" {
		window, err := time.ParseDuration(t.RegistrationClosingWindow)
		if err != nil || window < 0 {
			invalid = append(invalid, "registration_closing_window")
		} else {
			c.RegistrationClosingWindow = window
		}
	}
	if t.AutosaveInterval != "" {
		interval, err := time.ParseDuration(t.AutosaveInterval)
		if err != nil || interval <= 0 {
			invalid = append(invalid, "autosave_interval")
		} else {
			c.AutosaveInterval = interval
		}
	}
	if t.RevocationPolicy != "" {
		policy, err := access.ParseRevocationPolicy(t.RevocationPolicy)
		if err != nil {
			invalid = append(invalid, "revocation_policy")
		} else {
			c.RevocationPolicy = policy
		}
	}
	return invalid
}
