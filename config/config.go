package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config stores the application configuration. Values come from defaults,
// then an optional YAML file, then the environment (including .env).
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Media    MediaConfig    `yaml:"media"`
	Tools    ToolsConfig    `yaml:"tools"`
	Download DownloadConfig `yaml:"download"`
	Edit     EditConfig     `yaml:"edit"`
	DB       DBConfig       `yaml:"db"`
	Redis    RedisConfig    `yaml:"redis"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RateLimit is the sustained POST rate per second; zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

type MediaConfig struct {
	// Root holds downloaded artifacts; edits live in Root/edits.
	Root string `yaml:"root"`
}

// EditsDir returns the directory for merged outputs and temp clips.
func (m MediaConfig) EditsDir() string {
	return filepath.Join(m.Root, "edits")
}

type ToolsConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path"`
	YtdlpPath  string `yaml:"ytdlp_path"`
}

type DownloadConfig struct {
	Workers    int           `yaml:"workers"`
	QueueSize  int           `yaml:"queue_size"`
	JobTimeout time.Duration `yaml:"job_timeout"`
	MaxBatch   int           `yaml:"max_batch"`
}

type EditConfig struct {
	CutTimeout    time.Duration `yaml:"cut_timeout"`
	ConcatTimeout time.Duration `yaml:"concat_timeout"`
	SweepSchedule string        `yaml:"sweep_schedule"`
	TempMaxAge    time.Duration `yaml:"temp_max_age"`
}

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type MinIOConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	OutputPath string `yaml:"output_path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			ShutdownTimeout: 5 * time.Second,
			RateLimit:       5,
			RateBurst:       10,
		},
		Media: MediaConfig{Root: "media"},
		Tools: ToolsConfig{FFmpegPath: "ffmpeg"},
		Download: DownloadConfig{
			Workers:    4,
			QueueSize:  100,
			JobTimeout: 30 * time.Minute,
			MaxBatch:   10,
		},
		Edit: EditConfig{
			CutTimeout:    60 * time.Second,
			ConcatTimeout: 120 * time.Second,
			SweepSchedule: "@every 10m",
			TempMaxAge:    time.Hour,
		},
		DB: DBConfig{
			Host: "127.0.0.1",
			Port: "3306",
			User: "root",
			Name: "reels",
		},
		Redis: RedisConfig{
			Host: "127.0.0.1",
			Port: "6379",
		},
		MinIO: MinIOConfig{
			Endpoint: "127.0.0.1:9000",
			Bucket:   "reel-audio",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		},
	}
}

// Load builds the configuration. path may be empty, in which case no YAML
// file is read.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// godotenv.Load does not override variables that are already set.
	_ = godotenv.Load()
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.RateLimit = getEnvFloat("RATE_LIMIT", cfg.Server.RateLimit)
	cfg.Server.RateBurst = getEnvInt("RATE_BURST", cfg.Server.RateBurst)

	cfg.Media.Root = getEnv("MEDIA_ROOT", cfg.Media.Root)
	cfg.Tools.FFmpegPath = getEnv("FFMPEG_PATH", cfg.Tools.FFmpegPath)
	cfg.Tools.YtdlpPath = getEnv("YTDLP_PATH", cfg.Tools.YtdlpPath)

	cfg.Download.Workers = getEnvInt("DOWNLOAD_WORKERS", cfg.Download.Workers)
	cfg.Download.QueueSize = getEnvInt("DOWNLOAD_QUEUE_SIZE", cfg.Download.QueueSize)
	cfg.Download.JobTimeout = getEnvDuration("DOWNLOAD_JOB_TIMEOUT", cfg.Download.JobTimeout)
	cfg.Download.MaxBatch = getEnvInt("DOWNLOAD_MAX_BATCH", cfg.Download.MaxBatch)

	cfg.Edit.CutTimeout = getEnvDuration("EDIT_CUT_TIMEOUT", cfg.Edit.CutTimeout)
	cfg.Edit.ConcatTimeout = getEnvDuration("EDIT_CONCAT_TIMEOUT", cfg.Edit.ConcatTimeout)
	cfg.Edit.SweepSchedule = getEnv("EDIT_SWEEP_SCHEDULE", cfg.Edit.SweepSchedule)
	cfg.Edit.TempMaxAge = getEnvDuration("EDIT_TEMP_MAX_AGE", cfg.Edit.TempMaxAge)

	cfg.DB.Host = getEnv("DB_HOST", cfg.DB.Host)
	cfg.DB.Port = getEnv("DB_PORT", cfg.DB.Port)
	cfg.DB.User = getEnv("DB_USER", cfg.DB.User)
	cfg.DB.Password = getEnv("DB_PASSWORD", cfg.DB.Password)
	cfg.DB.Name = getEnv("DB_NAME", cfg.DB.Name)

	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getEnv("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)

	cfg.MinIO.Enabled = getEnvBool("MINIO_ENABLED", cfg.MinIO.Enabled)
	cfg.MinIO.Endpoint = getEnv("MINIO_ENDPOINT", cfg.MinIO.Endpoint)
	cfg.MinIO.AccessKey = getEnv("MINIO_ACCESS_KEY", cfg.MinIO.AccessKey)
	cfg.MinIO.SecretKey = getEnv("MINIO_SECRET_KEY", cfg.MinIO.SecretKey)
	cfg.MinIO.Bucket = getEnv("MINIO_BUCKET", cfg.MinIO.Bucket)
	cfg.MinIO.UseSSL = getEnvBool("MINIO_USE_SSL", cfg.MinIO.UseSSL)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.OutputPath = getEnv("LOG_OUTPUT_PATH", cfg.Log.OutputPath)
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch {
	case c.Media.Root == "":
		return fmt.Errorf("media root must be set")
	case c.Download.Workers < 1:
		return fmt.Errorf("download workers must be at least 1, got %d", c.Download.Workers)
	case c.Download.QueueSize < 1:
		return fmt.Errorf("download queue size must be at least 1, got %d", c.Download.QueueSize)
	case c.Download.MaxBatch < 1:
		return fmt.Errorf("download max batch must be at least 1, got %d", c.Download.MaxBatch)
	case c.Download.JobTimeout <= 0 || c.Edit.CutTimeout <= 0 || c.Edit.ConcatTimeout <= 0:
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
