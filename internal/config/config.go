package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Model     ModelConfig
	Recommend RecommendConfig
	Notify    NotifyConfig
	Reminder  ReminderConfig
	Retrain   RetrainConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host      string
	Port      int
	Token     string
	RateLimit int // requests per minute per client IP; 0 disables
}

type StorageConfig struct {
	DataDir string
}

type ModelConfig struct {
	Path     string // empty means <data_dir>/model.json
	CacheTTL string
}

type RecommendConfig struct {
	InteractiveK           int
	ReminderK              int
	WindowDays             int
	HistoryLimit           int
	DefaultDurationMinutes int
}

type NotifyConfig struct {
	Endpoint string
	Timeout  string
	Retries  int
}

type ReminderConfig struct {
	CheckInterval string
}

type RetrainConfig struct {
	Interval string
	Limit    int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      4000,
			RateLimit: 120,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Model: ModelConfig{
			CacheTTL: "30s",
		},
		Recommend: RecommendConfig{
			InteractiveK:           2,
			ReminderK:              3,
			WindowDays:             30,
			HistoryLimit:           200,
			DefaultDurationMinutes: 30,
		},
		Notify: NotifyConfig{
			Endpoint: "http://notification-service/send",
			Timeout:  "5s",
			Retries:  0,
		},
		Reminder: ReminderConfig{
			CheckInterval: "10m",
		},
		Retrain: RetrainConfig{
			Interval: "168h",
			Limit:    5000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/slotwise/config.json, then applies SLOTWISE_* environment
// overrides. The server token is only read from the environment.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	if c.Recommend.InteractiveK < 1 || c.Recommend.ReminderK < 1 {
		return fmt.Errorf("recommend.interactive_k and recommend.reminder_k must be at least 1")
	}
	if c.Recommend.DefaultDurationMinutes < 1 || c.Recommend.DefaultDurationMinutes > 1440 {
		return fmt.Errorf("recommend.default_duration_minutes %d out of range 1..1440", c.Recommend.DefaultDurationMinutes)
	}
	if c.Notify.Retries < 0 {
		return fmt.Errorf("notify.retries must not be negative")
	}
	return nil
}

// ModelPath resolves model.path, defaulting into the data directory.
func (c Config) ModelPath() string {
	if c.Model.Path != "" {
		return c.Model.Path
	}
	return filepath.Join(c.Storage.DataDir, "model.json")
}

func (c Config) ModelCacheTTL() time.Duration {
	return parseDuration("model.cache_ttl", c.Model.CacheTTL, 30*time.Second)
}

func (c Config) NotifyTimeout() time.Duration {
	return parseDuration("notify.timeout", c.Notify.Timeout, 5*time.Second)
}

func (c Config) ReminderInterval() time.Duration {
	return positive(parseDuration("reminder.check_interval", c.Reminder.CheckInterval, 10*time.Minute), 10*time.Minute)
}

func (c Config) RetrainInterval() time.Duration {
	return positive(parseDuration("retrain.interval", c.Retrain.Interval, 7*24*time.Hour), 7*24*time.Hour)
}

func (c Config) DefaultDuration() time.Duration {
	return time.Duration(c.Recommend.DefaultDurationMinutes) * time.Minute
}

// parseDuration falls back to def with a warning when raw is malformed.
// Zero is allowed (model.cache_ttl uses it to disable caching).
func parseDuration(key, raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		fmt.Fprintf(os.Stderr, "[WARN] invalid duration for %s=%q. Using default %s.\n", key, raw, def)
		return def
	}
	return d
}

func positive(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
