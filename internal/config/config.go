package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            string   `yaml:"port"`
		AllowedOrigins  []string `yaml:"allowedOrigins"`
		ShutdownTimeout string   `yaml:"shutdownTimeout"`
	} `yaml:"server"`
	Storage struct {
		// Driver is memory, sqlite or postgres.
		Driver string `yaml:"driver"`
	} `yaml:"storage"`
	SQLite struct {
		DSN string `yaml:"dsn"`
	} `yaml:"sqlite"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Organizer struct {
		PasswordHash string `yaml:"passwordHash"`
	} `yaml:"organizer"`
	Events struct {
		KafkaBrokers []string `yaml:"kafkaBrokers"`
		Topic        string   `yaml:"topic"`
	} `yaml:"events"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads YAML config from path, then applies environment overrides. A
// .env file in the working directory is loaded first when present. A missing
// config file is not an error; the environment alone can configure the service.
func Load(path string) (Config, error) {
	cfg := Config{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setFromEnv(&c.Storage.Driver, "STORAGE_DRIVER")
	setFromEnv(&c.SQLite.DSN, "SQLITE_DSN")
	setFromEnv(&c.Postgres.URL, "DATABASE_URL")
	setFromEnv(&c.Redis.Addr, "REDIS_ADDR")
	setFromEnv(&c.Redis.Password, "REDIS_PASSWORD")
	setFromEnv(&c.Organizer.PasswordHash, "ORGANIZER_PASSWORD_HASH")
	setFromEnv(&c.Log.Level, "LOG_LEVEL")
	setFromEnv(&c.Log.Format, "LOG_FORMAT")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Events.KafkaBrokers = strings.Split(brokers, ",")
	}
}

// StorageDriver resolves the configured driver. Without one, a Postgres URL
// selects postgres and anything else runs in memory.
func (c Config) StorageDriver() string {
	if d := strings.ToLower(strings.TrimSpace(c.Storage.Driver)); d != "" {
		return d
	}
	if c.Postgres.URL != "" {
		return "postgres"
	}
	return "memory"
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
