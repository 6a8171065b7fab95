package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration // stored as a string, checked with time.ParseDuration on write
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "SLOTWISE_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "SLOTWISE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "SLOTWISE_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "server.rate_limit", typ: kInt, env: "SLOTWISE_SERVER_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Server.RateLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.RateLimit },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SLOTWISE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "model.path", typ: kString, env: "SLOTWISE_MODEL_PATH",
		apply:   func(cfg *Config, v any) { cfg.Model.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.ModelPath() },
	},
	{
		key: "model.cache_ttl", typ: kDuration, env: "SLOTWISE_MODEL_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Model.CacheTTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Model.CacheTTL },
	},
	{
		key: "recommend.interactive_k", typ: kInt, env: "SLOTWISE_RECOMMEND_INTERACTIVE_K",
		apply:   func(cfg *Config, v any) { cfg.Recommend.InteractiveK = v.(int) },
		extract: func(cfg Config) any { return cfg.Recommend.InteractiveK },
	},
	{
		key: "recommend.reminder_k", typ: kInt, env: "SLOTWISE_RECOMMEND_REMINDER_K",
		apply:   func(cfg *Config, v any) { cfg.Recommend.ReminderK = v.(int) },
		extract: func(cfg Config) any { return cfg.Recommend.ReminderK },
	},
	{
		key: "recommend.window_days", typ: kInt, env: "SLOTWISE_RECOMMEND_WINDOW_DAYS",
		apply:   func(cfg *Config, v any) { cfg.Recommend.WindowDays = v.(int) },
		extract: func(cfg Config) any { return cfg.Recommend.WindowDays },
	},
	{
		key: "recommend.history_limit", typ: kInt, env: "SLOTWISE_RECOMMEND_HISTORY_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Recommend.HistoryLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Recommend.HistoryLimit },
	},
	{
		key: "recommend.default_duration_minutes", typ: kInt, env: "SLOTWISE_RECOMMEND_DEFAULT_DURATION_MINUTES",
		apply:   func(cfg *Config, v any) { cfg.Recommend.DefaultDurationMinutes = v.(int) },
		extract: func(cfg Config) any { return cfg.Recommend.DefaultDurationMinutes },
	},
	{
		key: "notify.endpoint", typ: kString, env: "SLOTWISE_NOTIFY_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Notify.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.Endpoint },
	},
	{
		key: "notify.timeout", typ: kDuration, env: "SLOTWISE_NOTIFY_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Notify.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.Timeout },
	},
	{
		key: "notify.retries", typ: kInt, env: "SLOTWISE_NOTIFY_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Notify.Retries = v.(int) },
		extract: func(cfg Config) any { return cfg.Notify.Retries },
	},
	{
		key: "reminder.check_interval", typ: kDuration, env: "SLOTWISE_REMINDER_CHECK_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Reminder.CheckInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Reminder.CheckInterval },
	},
	{
		key: "retrain.interval", typ: kDuration, env: "SLOTWISE_RETRAIN_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Retrain.Interval = v.(string) },
		extract: func(cfg Config) any { return cfg.Retrain.Interval },
	},
	{
		key: "retrain.limit", typ: kInt, env: "SLOTWISE_RETRAIN_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Retrain.Limit = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrain.Limit },
	},
	{
		key: "log.level", typ: kString, env: "SLOTWISE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString, kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kDuration:
			if _, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, raw)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
