package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Backend struct {
		URL         string `yaml:"url"`
		HTTPTimeout string `yaml:"http_timeout"`
	} `yaml:"backend"`
	Play struct {
		QuestionCount    int    `yaml:"question_count"`
		DailyLimit       int    `yaml:"daily_limit"`
		AutoSubmitBuffer string `yaml:"auto_submit_buffer"`
		FinishTimeout    string `yaml:"finish_timeout"`
	} `yaml:"play"`
	Retry struct {
		MaxAttempts int    `yaml:"max_attempts"`
		BaseDelay   string `yaml:"base_delay"`
		Strategy    string `yaml:"strategy"`
		MaxDelay    string `yaml:"max_delay"`
	} `yaml:"retry"`
	Settlement struct {
		Interval    string  `yaml:"interval"`
		MaxAttempts int     `yaml:"max_attempts"`
		Growth      float64 `yaml:"growth"`
		MaxDelay    string  `yaml:"max_delay"`
	} `yaml:"settlement"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PlayTTL  string `yaml:"play_ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or
// malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// IntOr returns v unless it is zero or negative.
func IntOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
