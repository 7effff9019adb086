package config

import (
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Recommender RecommenderConfig
	History     HistoryConfig
	Storage     StorageConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port int
}

type RecommenderConfig struct {
	BaseURL string
	TopN    int
	Timeout string
}

type HistoryConfig struct {
	BaseURL string
	Timeout string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Recommender: RecommenderConfig{
			BaseURL: "http://localhost:8000",
			TopN:    5,
			Timeout: "10s",
		},
		History: HistoryConfig{
			BaseURL: "http://localhost:8001",
			Timeout: "10s",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a .env file in the working directory
// (if present), the JSON file backend at
// $XDG_CONFIG_HOME/skinmatch/config.json, and SKINMATCH_* environment
// variables, in ascending priority.
func Load() (Config, error) {
	// A missing .env file is the normal case.
	_ = godotenv.Load()
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

func parseTimeout(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// RecommenderTimeout returns the parsed recommendation-request timeout,
// falling back to 10s on an unparseable value.
func (c Config) RecommenderTimeout() time.Duration {
	return parseTimeout(c.Recommender.Timeout, 10*time.Second)
}

// HistoryTimeout returns the parsed history-request timeout, falling
// back to 10s on an unparseable value.
func (c Config) HistoryTimeout() time.Duration {
	return parseTimeout(c.History.Timeout, 10*time.Second)
}
