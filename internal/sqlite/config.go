// File path: internal/sqlite/config.go
package sqlite

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither the config file nor the environment names
// a database file.
var DefaultPath = filepath.Join("data", "testcase_agent.db")

// Config controls the SQLite connection pool. Durations may be given either
// as time.Duration values or as strings ("15m") in config files.
type Config struct {
	Path string `json:"path" yaml:"path"`

	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int `json:"max_idle_conns" yaml:"max_idle_conns"`

	ConnMaxLifetime       time.Duration `json:"-" yaml:"-"`
	ConnMaxLifetimeString string        `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`

	ConnMaxIdleTime       time.Duration `json:"-" yaml:"-"`
	ConnMaxIdleTimeString string        `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`

	BusyTimeout       time.Duration `json:"-" yaml:"-"`
	BusyTimeoutString string        `json:"busy_timeout" yaml:"busy_timeout"`
}

// Merge overlays the non-zero fields of override onto c.
func (c Config) Merge(override Config) Config {
	result := c
	if path := strings.TrimSpace(override.Path); path != "" {
		result.Path = path
	}
	if override.MaxOpenConns > 0 {
		result.MaxOpenConns = override.MaxOpenConns
	}
	if override.MaxIdleConns > 0 {
		result.MaxIdleConns = override.MaxIdleConns
	}
	mergeDuration(&result.ConnMaxLifetime, &result.ConnMaxLifetimeString, override.ConnMaxLifetime, override.ConnMaxLifetimeString)
	mergeDuration(&result.ConnMaxIdleTime, &result.ConnMaxIdleTimeString, override.ConnMaxIdleTime, override.ConnMaxIdleTimeString)
	mergeDuration(&result.BusyTimeout, &result.BusyTimeoutString, override.BusyTimeout, override.BusyTimeoutString)
	return result
}

func mergeDuration(dst *time.Duration, dstRaw *string, value time.Duration, raw string) {
	if value > 0 {
		*dst = value
	}
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		*dstRaw = trimmed
	}
}

// LoadConfig reads SQLITE_CONFIG_FILE (JSON or YAML) and the SQLITE_*
// environment variables, environment taking precedence. Defaults are not
// applied so the result can be merged over other sources.
func LoadConfig() (Config, error) {
	cfg := Config{}
	if path := strings.TrimSpace(os.Getenv("SQLITE_CONFIG_FILE")); path != "" {
		fileCfg, err := loadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	envCfg, err := loadConfigEnv()
	if err != nil {
		return Config{}, err
	}
	return cfg.Merge(envCfg), nil
}

// ApplyDefaults resolves duration strings and fills unset pool settings.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Path) == "" {
		c.Path = DefaultPath
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 8
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = c.MaxOpenConns
	}
	c.ConnMaxLifetime = resolveDuration(c.ConnMaxLifetime, c.ConnMaxLifetimeString, 15*time.Minute)
	c.ConnMaxIdleTime = resolveDuration(c.ConnMaxIdleTime, c.ConnMaxIdleTimeString, 5*time.Minute)
	c.BusyTimeout = resolveDuration(c.BusyTimeout, c.BusyTimeoutString, 5*time.Second)
}

func resolveDuration(value time.Duration, raw string, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	if raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read sqlite config: %w", err)
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse sqlite config: %w", err)
	}
	return cfg, nil
}

func loadConfigEnv() (Config, error) {
	cfg := Config{
		Path:                  strings.TrimSpace(os.Getenv("SQLITE_PATH")),
		ConnMaxLifetimeString: strings.TrimSpace(os.Getenv("SQLITE_CONN_MAX_LIFETIME")),
		ConnMaxIdleTimeString: strings.TrimSpace(os.Getenv("SQLITE_CONN_MAX_IDLE_TIME")),
		BusyTimeoutString:     strings.TrimSpace(os.Getenv("SQLITE_BUSY_TIMEOUT")),
	}
	for key, dst := range map[string]*int{
		"SQLITE_MAX_OPEN_CONNS": &cfg.MaxOpenConns,
		"SQLITE_MAX_IDLE_CONNS": &cfg.MaxIdleConns,
	} {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", key, err)
		}
		if value > 0 {
			*dst = value
		}
	}
	return cfg, nil
}
