package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL        = "http://127.0.0.1:8085"
	DefaultTimeout        = 60 * time.Second
	DefaultTokenStatePath = "configs/judgectl_state.json"
	DefaultHistoryFile    = "/tmp/judgectl_history"
	DefaultOutcomeTopic   = "judge.outcome"
	DefaultWatchGroup     = "judgectl"
)

// KafkaConfig points the watch command at the outcome topic.
type KafkaConfig struct {
	Brokers      []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	OutcomeTopic string   `yaml:"outcomeTopic"`
	Group        string   `yaml:"group"`
}

// Config holds CLI configuration.
type Config struct {
	BaseURL        string        `yaml:"baseURL" env:"JUDGECTL_BASE_URL"`
	Timeout        time.Duration `yaml:"timeout"`
	TokenStatePath string        `yaml:"tokenStatePath"`
	HistoryFile    string        `yaml:"historyFile"`
	PrettyJSON     *bool         `yaml:"prettyJSON"`
	Kafka          KafkaConfig   `yaml:"kafka"`
}

// Load reads path if it exists, then environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file failed: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return cfg, fmt.Errorf("read config file failed: %w", err)
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("read env overrides failed: %w", err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TokenStatePath == "" {
		cfg.TokenStatePath = DefaultTokenStatePath
	}
	if cfg.HistoryFile == "" {
		cfg.HistoryFile = DefaultHistoryFile
	}
	if cfg.PrettyJSON == nil {
		value := true
		cfg.PrettyJSON = &value
	}
	if cfg.Kafka.OutcomeTopic == "" {
		cfg.Kafka.OutcomeTopic = DefaultOutcomeTopic
	}
	if cfg.Kafka.Group == "" {
		cfg.Kafka.Group = DefaultWatchGroup
	}
}
