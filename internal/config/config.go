package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	defaultAPIURL      = "http://telegram-bot-api:8081"
	defaultExternalURL = "http://localhost:8080"
	defaultSharedDir   = "/shared"
	defaultCookiesFile = "/app/cookies.txt"
	defaultListen      = ":8080"

	defaultMaxFileSize          = 2 * 1024 * 1024 * 1024
	defaultWebFileTTL           = 8 * time.Hour
	defaultSessionTTL           = 2 * time.Hour
	defaultPartialSessionTTL    = 8 * time.Hour
	defaultFormatsPerPage       = 8
	defaultMaxConcurrentPerUser = 2
	defaultProgressInterval     = 3 * time.Second
	defaultWorkers              = 4
	defaultChunkSize            = 64 * 1024 * 1024
	defaultMaxTransfers         = 16
	defaultRateLimit            = 120
	defaultSessionSweep         = 5 * time.Minute
	defaultFileSweep            = 10 * time.Minute

	downloadsDirName = "downloads"
	dumpFileName     = "webfiles.yml"
)

const (
	EnvBotToken      = "BOT_TOKEN"
	EnvAPIURL        = "TELEGRAM_API_URL"
	EnvExternalURL   = "EXTERNAL_URL"
	EnvSharedDir     = "SHARED_DIR"
	EnvCookiesFile   = "COOKIES_FILE"
	EnvRedisURL      = "REDIS_URL"
	EnvListen        = "LISTEN"
	EnvMetricsListen = "METRICS_LISTEN"
	EnvLogLevel      = "LOG_LEVEL"
)

type BotConfig struct {
	Token                string        `yaml:"token"`
	APIURL               string        `yaml:"api_url"`
	FormatsPerPage       int           `yaml:"formats_per_page"`
	MaxConcurrentPerUser int           `yaml:"max_concurrent_per_user"`
	ProgressInterval     time.Duration `yaml:"progress_interval"`
	Workers              int           `yaml:"workers"`
	MaxFileSize          int64         `yaml:"max_file_size"`
	CookiesFile          string        `yaml:"cookies_file"`
}

type SessionConfig struct {
	TTL            time.Duration `yaml:"ttl"`
	PartialTTL     time.Duration `yaml:"partial_ttl"`
	SweepEvery     time.Duration `yaml:"sweep_every"`
	FileSweepEvery time.Duration `yaml:"file_sweep_every"`
}

type HandlerConfig struct {
	URL          string        `yaml:"url"`
	ChunkSize    int           `yaml:"chunk_size"`
	MaxTransfers int64         `yaml:"max_transfers"`
	RateLimit    int           `yaml:"rate_limit"`
	WebFileTTL   time.Duration `yaml:"web_file_ttl"`
}

type Config struct {
	Listen        string        `yaml:"listen"`
	MetricsListen string        `yaml:"metrics_listen"`
	LogLevel      string        `yaml:"log_level"`
	SharedDir     string        `yaml:"shared_dir"`
	RedisURL      string        `yaml:"redis_url"`
	Bot           BotConfig     `yaml:"bot"`
	Session       SessionConfig `yaml:"session"`
	HandlerConfig HandlerConfig `yaml:"handler"`
}

func (c *Config) SetDefaults() {
	setDefault(&c.Listen, defaultListen)
	setDefault(&c.LogLevel, LogLevelInfo)
	setDefault(&c.SharedDir, defaultSharedDir)
	setDefault(&c.Bot.APIURL, defaultAPIURL)
	setDefault(&c.Bot.CookiesFile, defaultCookiesFile)
	setDefault(&c.Bot.FormatsPerPage, defaultFormatsPerPage)
	setDefault(&c.Bot.MaxConcurrentPerUser, defaultMaxConcurrentPerUser)
	setDefault(&c.Bot.ProgressInterval, defaultProgressInterval)
	setDefault(&c.Bot.Workers, defaultWorkers)
	setDefault(&c.Bot.MaxFileSize, defaultMaxFileSize)
	setDefault(&c.Session.TTL, defaultSessionTTL)
	setDefault(&c.Session.PartialTTL, defaultPartialSessionTTL)
	setDefault(&c.Session.SweepEvery, defaultSessionSweep)
	setDefault(&c.Session.FileSweepEvery, defaultFileSweep)
	setDefault(&c.HandlerConfig.URL, defaultExternalURL)
	setDefault(&c.HandlerConfig.ChunkSize, defaultChunkSize)
	setDefault(&c.HandlerConfig.MaxTransfers, defaultMaxTransfers)
	setDefault(&c.HandlerConfig.RateLimit, defaultRateLimit)
	setDefault(&c.HandlerConfig.WebFileTTL, defaultWebFileTTL)
}

func setDefault[T comparable](v *T, def T) {
	var zero T
	if *v == zero {
		*v = def
	}
}

// ApplyEnv overrides file values with the process environment.
func (c *Config) ApplyEnv() {
	overrides := map[string]*string{
		EnvBotToken:      &c.Bot.Token,
		EnvAPIURL:        &c.Bot.APIURL,
		EnvExternalURL:   &c.HandlerConfig.URL,
		EnvSharedDir:     &c.SharedDir,
		EnvCookiesFile:   &c.Bot.CookiesFile,
		EnvRedisURL:      &c.RedisURL,
		EnvListen:        &c.Listen,
		EnvMetricsListen: &c.MetricsListen,
		EnvLogLevel:      &c.LogLevel,
	}

	for name, dst := range overrides {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}

	c.HandlerConfig.URL = strings.TrimRight(c.HandlerConfig.URL, "/")
	c.Bot.APIURL = strings.TrimRight(c.Bot.APIURL, "/")
}

func (c *Config) Validate() error {
	var errs []error

	if c.Bot.Token == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvBotToken))
	}

	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		errs = append(errs, fmt.Errorf("unknown log level: %s", c.LogLevel))
	}

	positive := map[string]int64{
		"formats_per_page":        int64(c.Bot.FormatsPerPage),
		"max_concurrent_per_user": int64(c.Bot.MaxConcurrentPerUser),
		"workers":                 int64(c.Bot.Workers),
		"max_file_size":           c.Bot.MaxFileSize,
		"chunk_size":              int64(c.HandlerConfig.ChunkSize),
		"max_transfers":           c.HandlerConfig.MaxTransfers,
	}
	for name, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}

	if c.Session.PartialTTL < c.Session.TTL {
		errs = append(errs, fmt.Errorf("partial_ttl %s is shorter than ttl %s", c.Session.PartialTTL, c.Session.TTL))
	}

	return errors.Join(errs...)
}

// DownloadDir is the root of per-session working directories.
func (c *Config) DownloadDir() string {
	return filepath.Join(c.SharedDir, downloadsDirName)
}

// DumpFileName is where SIGUSR2 writes the web file registry snapshot.
func (c *Config) DumpFileName() string {
	return filepath.Join(c.SharedDir, dumpFileName)
}

// CookiesPath returns the cookie file only when it exists.
func (c *Config) CookiesPath() string {
	if c.Bot.CookiesFile == "" {
		return ""
	}

	if _, err := os.Stat(c.Bot.CookiesFile); err != nil {
		return ""
	}

	return c.Bot.CookiesFile
}

// Load reads .env (if present), the YAML file (if present) and the environment.
func Load(cfgPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("cannot load .env: %w", err)
	}

	cfg := &Config{}

	if cfgPath != "" {
		data, err := os.ReadFile(cfgPath)
		switch {
		case err == nil:
			if err := yaml.UnmarshalStrict(data, cfg); err != nil {
				return nil, fmt.Errorf("cannot parse config %s: %w", cfgPath, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("cannot read config %s: %w", cfgPath, err)
		}
	}

	cfg.ApplyEnv()
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func MustLoad(cfgPath string) *Config {
	cfg, err := Load(cfgPath)
	if err != nil {
		panic(err)
	}

	return cfg
}
