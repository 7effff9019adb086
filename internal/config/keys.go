package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
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
		key: "server.port", typ: kInt, env: "SKINMATCH_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "recommender.base_url", typ: kString, env: "SKINMATCH_RECOMMENDER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Recommender.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Recommender.BaseURL },
	},
	{
		key: "recommender.top_n", typ: kInt, env: "SKINMATCH_RECOMMENDER_TOP_N",
		apply:   func(cfg *Config, v any) { cfg.Recommender.TopN = v.(int) },
		extract: func(cfg Config) any { return cfg.Recommender.TopN },
	},
	{
		key: "recommender.timeout", typ: kString, env: "SKINMATCH_RECOMMENDER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Recommender.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Recommender.Timeout },
	},
	{
		key: "history.base_url", typ: kString, env: "SKINMATCH_HISTORY_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.History.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.History.BaseURL },
	},
	{
		key: "history.timeout", typ: kString, env: "SKINMATCH_HISTORY_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.History.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.History.Timeout },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SKINMATCH_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "SKINMATCH_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	// The API token never lives in Config; APIToken reads it from the
	// backend directly. Registered here so key validation knows it and
	// the management surface refuses to show or set it.
	{
		key: "api.token", typ: kString, env: "SKINMATCH_API_TOKEN", secret: true,
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
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
		if s.secret || s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
