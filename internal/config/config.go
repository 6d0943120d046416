// Package config loads coursectl settings from an optional YAML file and
// the environment. Environment variables always win over the file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LMS     LMSConfig     `yaml:"lms"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	SFTP    SFTPConfig    `yaml:"sftp"`
	Watch   WatchConfig   `yaml:"watch"`
}

// LMSConfig addresses the course import endpoint.
type LMSConfig struct {
	URL        string        `yaml:"url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries *int          `yaml:"max_retries"` // nil until set; 0 disables retries
	UserAgent  string        `yaml:"user_agent"`
}

// Configured reports whether both URL and token are present.
func (c LMSConfig) Configured() bool {
	return c.URL != "" && c.Token != ""
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

type MetricsConfig struct {
	// Textfile is written at exit when set.
	Textfile string `yaml:"textfile"`
}

type SFTPConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	User                  string `yaml:"user"`
	Pass                  string `yaml:"pass"`
	RemoteDir             string `yaml:"remote_dir"`
	KnownHostsFile        string `yaml:"known_hosts"`
	InsecureIgnoreHostKey bool   `yaml:"insecure_ignore_host_key"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

const (
	DefaultTimeout    = 120 * time.Second
	DefaultMaxRetries = 3
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "console"
	DefaultDebounce   = 500 * time.Millisecond
)

// Load reads path (skipped when empty), applies environment overrides and
// defaults, then validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		// Expand environment variables
		data = []byte(os.ExpandEnv(string(data)))

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// LMS
	cfg.LMS.URL = getenv("LMS_API_URL", cfg.LMS.URL)
	cfg.LMS.Token = getenv("LMS_API_TOKEN", cfg.LMS.Token)
	cfg.LMS.Timeout = getenvDuration("LMS_TIMEOUT", cfg.LMS.Timeout)
	cfg.LMS.MaxRetries = getenvIntPtr("LMS_MAX_RETRIES", cfg.LMS.MaxRetries)
	cfg.LMS.UserAgent = getenv("LMS_USER_AGENT", cfg.LMS.UserAgent)

	// Logging
	cfg.Log.Level = getenv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenv("LOG_FORMAT", cfg.Log.Format)

	// Metrics
	cfg.Metrics.Textfile = getenv("METRICS_TEXTFILE", cfg.Metrics.Textfile)

	// SFTP
	cfg.SFTP.Host = getenv("SFTP_HOST", cfg.SFTP.Host)
	cfg.SFTP.Port = getenvInt("SFTP_PORT", cfg.SFTP.Port)
	cfg.SFTP.User = getenv("SFTP_USER", cfg.SFTP.User)
	cfg.SFTP.Pass = getenv("SFTP_PASS", cfg.SFTP.Pass)
	cfg.SFTP.RemoteDir = getenv("SFTP_REMOTE_DIR", cfg.SFTP.RemoteDir)
	cfg.SFTP.KnownHostsFile = getenv("SFTP_KNOWN_HOSTS", cfg.SFTP.KnownHostsFile)
	cfg.SFTP.InsecureIgnoreHostKey = getenvBool("SFTP_INSECURE_IGNORE_HOST_KEY", cfg.SFTP.InsecureIgnoreHostKey)

	// Watch
	cfg.Watch.Debounce = getenvDuration("WATCH_DEBOUNCE", cfg.Watch.Debounce)
}

func setDefaults(cfg *Config) {
	if cfg.LMS.Timeout == 0 {
		cfg.LMS.Timeout = DefaultTimeout
	}
	if cfg.LMS.MaxRetries == nil {
		n := DefaultMaxRetries
		cfg.LMS.MaxRetries = &n
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.SFTP.Port == 0 {
		cfg.SFTP.Port = 22
	}
	if cfg.SFTP.RemoteDir == "" {
		cfg.SFTP.RemoteDir = "/"
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultDebounce
	}
}

func validate(cfg *Config) error {
	var errs []error

	if cfg.LMS.URL != "" {
		u, err := url.Parse(cfg.LMS.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("lms.url must be an absolute http(s) URL, got %q", cfg.LMS.URL))
		}
	}
	if cfg.LMS.Timeout < 0 {
		errs = append(errs, fmt.Errorf("lms.timeout must be positive, got %s", cfg.LMS.Timeout))
	}
	if cfg.LMS.MaxRetries != nil && *cfg.LMS.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("lms.max_retries must not be negative, got %d", *cfg.LMS.MaxRetries))
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", cfg.Log.Format))
	}
	if cfg.SFTP.Port < 0 || cfg.SFTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("sftp.port out of range: %d", cfg.SFTP.Port))
	}

	return errors.Join(errs...)
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// getenvIntPtr is getenvInt for settings where zero is meaningful.
func getenvIntPtr(k string, def *int) *int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return &n
}

func getenvBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		// plain numbers are seconds
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return time.Duration(secs) * time.Second
		}
		return def
	}
	return d
}
