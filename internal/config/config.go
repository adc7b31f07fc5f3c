package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	Storage    StorageConfig    `yaml:"storage"`
	Detector   DetectorConfig   `yaml:"detector"`
	Matching   MatchingConfig   `yaml:"matching"`
	Thumbnails ThumbnailsConfig `yaml:"thumbnails"`
	Worker     WorkerConfig     `yaml:"worker"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type WorkerConfig struct {
	Count       int `yaml:"count"`
	MetricsPort int `yaml:"metrics_port"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

// StorageConfig selects the blob backend. Backend "local" keeps originals and
// derivatives under Root; backend "s3" uses the MinIO settings below.
type StorageConfig struct {
	Backend   string `yaml:"backend"`
	Root      string `yaml:"root"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type DetectorConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type MatchingConfig struct {
	// Tolerance is the maximum embedding distance still considered the same
	// person. Lower is stricter.
	Tolerance float64 `yaml:"tolerance"`
	// DefaultConfidence is assigned to detections the service reports
	// without a confidence score.
	DefaultConfidence float64 `yaml:"default_confidence"`
}

type ThumbnailSize struct {
	Name   string `yaml:"name"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

type ThumbnailsConfig struct {
	// Sizes are generated in listed order.
	Sizes []ThumbnailSize `yaml:"sizes"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from a YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = "data/media"
	}
	if cfg.Detector.BaseURL == "" {
		cfg.Detector.BaseURL = "http://localhost:5000"
	}
	if cfg.Detector.Timeout == 0 {
		cfg.Detector.Timeout = 60 * time.Second
	}
	if cfg.Matching.Tolerance == 0 {
		cfg.Matching.Tolerance = 0.6
	}
	if cfg.Matching.DefaultConfidence == 0 {
		cfg.Matching.DefaultConfidence = 0.95
	}
	if len(cfg.Thumbnails.Sizes) == 0 {
		cfg.Thumbnails.Sizes = []ThumbnailSize{
			{Name: "small", Width: 256, Height: 256},
			{Name: "medium", Width: 800, Height: 800},
			{Name: "large", Width: 2048, Height: 2048},
		}
	}
	if cfg.Worker.Count == 0 {
		cfg.Worker.Count = 4
	}
	if cfg.Worker.MetricsPort == 0 {
		cfg.Worker.MetricsPort = 8082
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PP_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("PP_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("PP_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("PP_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("PP_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("PP_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("PP_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("PP_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("PP_STORAGE_ROOT"); v != "" {
		cfg.Storage.Root = v
	}
	if v := os.Getenv("PP_STORAGE_ENDPOINT"); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := os.Getenv("PP_STORAGE_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv("PP_STORAGE_SECRET_KEY"); v != "" {
		cfg.Storage.SecretKey = v
	}
	if v := os.Getenv("PP_STORAGE_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("PP_DETECTOR_URL"); v != "" {
		cfg.Detector.BaseURL = v
	}
	if v := os.Getenv("PP_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.Count = n
		}
	}
	if v := os.Getenv("PP_MATCH_TOLERANCE"); v != "" {
		if tol, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.Tolerance = tol
		}
	}
}
