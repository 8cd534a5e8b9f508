package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects whether the engine is the real remote service or the in-process mock.
type Mode string

const (
	ModeMock Mode = "mock"
	ModeReal Mode = "real"
)

// Config holds application configuration.
type Config struct {
	Port            string   `yaml:"port"`
	Env             string   `yaml:"env"`
	LogLevel        string   `yaml:"log_level"`
	CORSAllowOrigin []string `yaml:"cors_allow_origins"`
	Mode            Mode     `yaml:"mode"`
	DatabaseURL     string   `yaml:"database_url"`

	Engine   EngineConfig   `yaml:"engine"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// EngineConfig describes how to reach the remote analysis engine.
type EngineConfig struct {
	BaseURL              string        `yaml:"base_url"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	MaxAttempts          int           `yaml:"max_attempts"`
	RetryBaseDelay       time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay        time.Duration `yaml:"retry_max_delay"`
	MaxReconnectAttempts int           `yaml:"ws_max_reconnect_attempts"`
	ReconnectInterval    time.Duration `yaml:"ws_reconnect_interval"`
	HealthCacheTTL       time.Duration `yaml:"health_cache_ttl"`
	ClientID             string        `yaml:"client_id"`
	ClientSecret         string        `yaml:"client_secret"`
	TokenURL             string        `yaml:"token_url"`
}

// AnalysisConfig tunes the session monitor.
type AnalysisConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	Timeout           time.Duration `yaml:"timeout"`
	PollRatePerSecond float64       `yaml:"poll_rate_per_second"`
	MockStepInterval  time.Duration `yaml:"mock_step_interval"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:            "8080",
		Env:             "dev",
		LogLevel:        "info",
		CORSAllowOrigin: []string{"http://localhost:3000"},
		Mode:            ModeMock,
		Engine: EngineConfig{
			BaseURL:              "http://localhost:8081",
			RequestTimeout:       30 * time.Second,
			MaxAttempts:          3,
			RetryBaseDelay:       500 * time.Millisecond,
			RetryMaxDelay:        5 * time.Second,
			MaxReconnectAttempts: 5,
			ReconnectInterval:    time.Second,
			HealthCacheTTL:       30 * time.Second,
		},
		Analysis: AnalysisConfig{
			PollInterval:      2 * time.Second,
			Timeout:           5 * time.Minute,
			PollRatePerSecond: 10,
			MockStepInterval:  1500 * time.Millisecond,
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
// Environment variables win over the file; the file wins over defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("PREPPER_CONFIG")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			log.Printf("config file %s ignored: %v", path, err)
		}
	}
	applyEnv(&cfg)

	cfg.Env = normalizeEnv(cfg.Env)
	cfg.Mode = ParseMode(string(cfg.Mode))
	if cfg.Env == "production" && cfg.Mode == ModeMock {
		log.Printf("PREPPER_MODE=mock in production; the mock engine will serve analyses")
	}
	return cfg
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	if raw := os.Getenv("CORS_ALLOW_ORIGINS"); raw != "" {
		cfg.CORSAllowOrigin = splitAndTrim(raw)
	}
	cfg.Mode = Mode(getEnv("PREPPER_MODE", string(cfg.Mode)))
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)

	e := &cfg.Engine
	e.BaseURL = strings.TrimRight(getEnv("ENGINE_BASE_URL", e.BaseURL), "/")
	e.RequestTimeout = getDuration("REQUEST_TIMEOUT", e.RequestTimeout)
	e.MaxAttempts = getInt("MAX_ATTEMPTS", e.MaxAttempts)
	e.RetryBaseDelay = getDuration("RETRY_BASE_DELAY", e.RetryBaseDelay)
	e.RetryMaxDelay = getDuration("RETRY_MAX_DELAY", e.RetryMaxDelay)
	e.MaxReconnectAttempts = getInt("WS_MAX_RECONNECT_ATTEMPTS", e.MaxReconnectAttempts)
	e.ReconnectInterval = getDuration("WS_RECONNECT_INTERVAL", e.ReconnectInterval)
	e.HealthCacheTTL = getDuration("HEALTH_CACHE_TTL", e.HealthCacheTTL)
	e.ClientID = getEnv("ENGINE_CLIENT_ID", e.ClientID)
	e.ClientSecret = getEnv("ENGINE_CLIENT_SECRET", e.ClientSecret)
	e.TokenURL = getEnv("ENGINE_TOKEN_URL", e.TokenURL)

	a := &cfg.Analysis
	a.PollInterval = getDuration("POLL_INTERVAL", a.PollInterval)
	a.Timeout = getDuration("ANALYSIS_TIMEOUT", a.Timeout)
	a.PollRatePerSecond = getFloat("POLL_RATE_PER_SECOND", a.PollRatePerSecond)
	a.MockStepInterval = getDuration("MOCK_STEP_INTERVAL", a.MockStepInterval)
}

// ParseMode normalizes a mode string; anything other than "real" is mock.
func ParseMode(raw string) Mode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeReal):
		return ModeReal
	default:
		return ModeMock
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config %s invalid int: %v", key, err)
		return def
	}
	return val
}

func getFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config %s invalid float: %v", key, err)
		return def
	}
	return val
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config %s invalid duration: %v", key, err)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}
