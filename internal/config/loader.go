// Package config loads service settings from an optional YAML file, an
// optional .env file and the process environment, in increasing precedence.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "BOOKING_"

// Storage backends.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config captures the settings of the booking service.
type Config struct {
	HTTPPort        int
	Storage         string
	SQLiteDSN       string
	DatabaseURL     string
	SessionHashKey  []byte
	SessionBlockKey []byte
	SessionTTL      time.Duration
	TimeZone        string
	Location        *time.Location
	// SweepInterval is the completion sweep period. Zero disables the sweeper.
	SweepInterval time.Duration
	TxRetries     int
	LogLevel      string
	LogFormat     string
}

// Options controls where Load looks for settings.
type Options struct {
	// File is a YAML file. Empty falls back to BOOKING_CONFIG_FILE.
	File string
	// EnvFile is a dotenv file. Empty means ".env", which may be absent.
	EnvFile string
	// LookupEnv reads the process environment. Nil means os.LookupEnv.
	LookupEnv func(key string) (string, bool)
	// SkipRequired disables required key checks, for commands that never
	// open sessions.
	SkipRequired bool
}

// fileConfig is the YAML layout. Keys mirror the environment variables.
type fileConfig struct {
	HTTPPort    string `yaml:"http_port"`
	Storage     string `yaml:"storage"`
	SQLiteDSN   string `yaml:"sqlite_dsn"`
	DatabaseURL string `yaml:"database_url"`
	Session     struct {
		HashKey  string `yaml:"hash_key"`
		BlockKey string `yaml:"block_key"`
		TTL      string `yaml:"ttl"`
	} `yaml:"session"`
	TimeZone      string `yaml:"timezone"`
	SweepInterval string `yaml:"sweep_interval"`
	TxRetries     string `yaml:"tx_retries"`
	Log           struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func (f fileConfig) values() map[string]string {
	return map[string]string{
		"HTTP_PORT":         f.HTTPPort,
		"STORAGE":           f.Storage,
		"SQLITE_DSN":        f.SQLiteDSN,
		"DATABASE_URL":      f.DatabaseURL,
		"SESSION_HASH_KEY":  f.Session.HashKey,
		"SESSION_BLOCK_KEY": f.Session.BlockKey,
		"SESSION_TTL":       f.Session.TTL,
		"TIMEZONE":          f.TimeZone,
		"SWEEP_INTERVAL":    f.SweepInterval,
		"TX_RETRIES":        f.TxRetries,
		"LOG_LEVEL":         f.Log.Level,
		"LOG_FORMAT":        f.Log.Format,
	}
}

var keys = []string{
	"HTTP_PORT", "STORAGE", "SQLITE_DSN", "DATABASE_URL",
	"SESSION_HASH_KEY", "SESSION_BLOCK_KEY", "SESSION_TTL",
	"TIMEZONE", "SWEEP_INTERVAL", "TX_RETRIES", "LOG_LEVEL", "LOG_FORMAT",
}

// Load reads configuration with default Options.
func Load() (Config, error) {
	return LoadWithOptions(Options{})
}

// LoadWithOptions reads configuration from the sources named by opts. Missing
// and invalid keys are reported together in one error.
func LoadWithOptions(opts Options) (Config, error) {
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	values := make(map[string]string, len(keys))

	file := opts.File
	if file == "" {
		file, _ = lookup(EnvPrefix + "CONFIG_FILE")
	}
	if file = strings.TrimSpace(file); file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", file, err)
		}
		for key, value := range fc.values() {
			if value = strings.TrimSpace(value); value != "" {
				values[key] = value
			}
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	dotenv, err := godotenv.Read(envFile)
	switch {
	case err == nil:
		for key, value := range dotenv {
			if name, ok := strings.CutPrefix(key, EnvPrefix); ok && strings.TrimSpace(value) != "" {
				values[name] = strings.TrimSpace(value)
			}
		}
	case errors.Is(err, fs.ErrNotExist) && opts.EnvFile == "":
	default:
		return Config{}, fmt.Errorf("config: read %s: %w", envFile, err)
	}

	for _, key := range keys {
		if value, ok := lookup(EnvPrefix + key); ok && strings.TrimSpace(value) != "" {
			values[key] = strings.TrimSpace(value)
		}
	}

	return parse(values, opts.SkipRequired)
}

func parse(values map[string]string, skipRequired bool) (Config, error) {
	cfg := Config{
		HTTPPort:      8080,
		Storage:       StorageSQLite,
		SQLiteDSN:     "booking.db",
		SessionTTL:    24 * time.Hour,
		TimeZone:      "UTC",
		Location:      time.UTC,
		SweepInterval: time.Minute,
		TxRetries:     3,
		LogLevel:      "info",
		LogFormat:     "json",
	}

	var missing, invalid []string
	name := func(key string) string { return EnvPrefix + key }

	if v := values["HTTP_PORT"]; v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, name("HTTP_PORT"))
		} else {
			cfg.HTTPPort = port
		}
	}

	if v := values["STORAGE"]; v != "" {
		switch strings.ToLower(v) {
		case StorageSQLite, StoragePostgres, StorageMemory:
			cfg.Storage = strings.ToLower(v)
		default:
			invalid = append(invalid, name("STORAGE"))
		}
	}
	if v := values["SQLITE_DSN"]; v != "" {
		cfg.SQLiteDSN = v
	}
	cfg.DatabaseURL = values["DATABASE_URL"]
	if cfg.Storage == StoragePostgres && cfg.DatabaseURL == "" {
		missing = append(missing, name("DATABASE_URL"))
	}

	if v := values["SESSION_HASH_KEY"]; v == "" {
		if !skipRequired {
			missing = append(missing, name("SESSION_HASH_KEY"))
		}
	} else if key, err := base64.StdEncoding.DecodeString(v); err != nil || len(key) < 32 {
		invalid = append(invalid, name("SESSION_HASH_KEY"))
	} else {
		cfg.SessionHashKey = key
	}
	if v := values["SESSION_BLOCK_KEY"]; v != "" {
		key, err := base64.StdEncoding.DecodeString(v)
		if err != nil || (len(key) != 16 && len(key) != 24 && len(key) != 32) {
			invalid = append(invalid, name("SESSION_BLOCK_KEY"))
		} else {
			cfg.SessionBlockKey = key
		}
	}
	if v := values["SESSION_TTL"]; v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, name("SESSION_TTL"))
		} else {
			cfg.SessionTTL = ttl
		}
	}

	if v := values["TIMEZONE"]; v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			invalid = append(invalid, name("TIMEZONE"))
		} else {
			cfg.TimeZone, cfg.Location = v, loc
		}
	}
	if v := values["SWEEP_INTERVAL"]; v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil || interval < 0 {
			invalid = append(invalid, name("SWEEP_INTERVAL"))
		} else {
			cfg.SweepInterval = interval
		}
	}
	if v := values["TX_RETRIES"]; v != "" {
		retries, err := strconv.Atoi(v)
		if err != nil || retries < 1 {
			invalid = append(invalid, name("TX_RETRIES"))
		} else {
			cfg.TxRetries = retries
		}
	}

	if v := values["LOG_LEVEL"]; v != "" {
		switch strings.ToLower(v) {
		case "debug", "info", "warn", "warning", "error":
			cfg.LogLevel = strings.ToLower(v)
		default:
			invalid = append(invalid, name("LOG_LEVEL"))
		}
	}
	if v := values["LOG_FORMAT"]; v != "" {
		switch strings.ToLower(v) {
		case "json", "text":
			cfg.LogFormat = strings.ToLower(v)
		default:
			invalid = append(invalid, name("LOG_FORMAT"))
		}
	}

	var problems []string
	if len(missing) > 0 {
		problems = append(problems, "missing required settings: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		problems = append(problems, "invalid settings: "+strings.Join(invalid, ", "))
	}
	if len(problems) > 0 {
		return Config{}, fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
