// Package config loads runtime settings from the environment (and an
// optional .env file) through viper.
package config

import (
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	App        AppConfig
	Cache      CacheConfig
	Classifier ClassifierConfig
}

type ServerConfig struct {
	Port           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Path string
}

type AppConfig struct {
	Env             string
	LogLevel        string
	ExceptionPolicy string // additive | reject
}

type CacheConfig struct {
	Enabled       bool
	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	TTLSeconds    int
}

type ClassifierConfig struct {
	MinObservations      int
	SeasonalityThreshold float64
	WindowDays           int
	IntervalMinutes      int // Background run period; 0 disables the scheduler
}

var (
	once     sync.Once
	instance *Config
)

// Load reads the process configuration once and returns the shared instance.
func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()
		instance = FromViper(viper.GetViper())
	})
	return instance
}

// FromViper registers defaults on v, binds the environment and builds a
// Config. Tests pass a fresh viper instance.
func FromViper(v *viper.Viper) *Config {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", 15)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 15)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:8080")
	v.SetDefault("DB_PATH", "stock.db")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("EXCEPTION_POLICY", "additive")
	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL_SECONDS", 300)
	v.SetDefault("CLASSIFIER_MIN_OBSERVATIONS", 30)
	v.SetDefault("CLASSIFIER_SEASONALITY_THRESHOLD", 0.3)
	v.SetDefault("CLASSIFIER_WINDOW_DAYS", 90)
	v.SetDefault("CLASSIFIER_INTERVAL_MINUTES", 0)

	// Read from environment variables
	v.AutomaticEnv()

	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: splitList(v.GetString("SERVER_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Path: v.GetString("DB_PATH"),
		},
		App: AppConfig{
			Env:             v.GetString("APP_ENV"),
			LogLevel:        v.GetString("LOG_LEVEL"),
			ExceptionPolicy: strings.ToLower(v.GetString("EXCEPTION_POLICY")),
		},
		Cache: CacheConfig{
			Enabled:       v.GetBool("CACHE_ENABLED"),
			RedisURL:      v.GetString("REDIS_URL"),
			RedisHost:     v.GetString("REDIS_HOST"),
			RedisPort:     v.GetString("REDIS_PORT"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
			TTLSeconds:    v.GetInt("CACHE_TTL_SECONDS"),
		},
		Classifier: ClassifierConfig{
			MinObservations:      v.GetInt("CLASSIFIER_MIN_OBSERVATIONS"),
			SeasonalityThreshold: v.GetFloat64("CLASSIFIER_SEASONALITY_THRESHOLD"),
			WindowDays:           v.GetInt("CLASSIFIER_WINDOW_DAYS"),
			IntervalMinutes:      v.GetInt("CLASSIFIER_INTERVAL_MINUTES"),
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
