// Package config loads process settings from the environment, with an optional .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mtiwari1/siteopt/internal/artifact"
)

// Config is every setting the server and CLI read at startup.
type Config struct {
	HTTPAddr string
	GRPCAddr string
	TempDir  string
	LogLevel slog.Level

	MaxUploadBytes  int64
	MaxExtractBytes int64
	Workers         int

	GeminiAPIKey       string
	GeminiModel        string
	TransformerTimeout time.Duration

	CacheEntries  int
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DBDriver string
	DBDSN    string

	SourceBaseURL string
	SourceBranch  string

	S3 artifact.S3Config
}

// Load reads .env when present, then the environment. Invalid numeric values are errors.
func Load() (*Config, error) {
	_ = godotenv.Load()

	p := &parser{}
	cfg := &Config{
		HTTPAddr: envOrDefault("HTTP_ADDR", ":8080"),
		GRPCAddr: envOrDefault("GRPC_ADDR", ":50051"),
		TempDir:  envOrDefault("TEMP_DIR", "/tmp/siteopt"),
		LogLevel: p.envLevel("LOG_LEVEL", slog.LevelInfo),

		MaxUploadBytes:  p.envInt64("MAX_UPLOAD_BYTES", 50<<20),
		MaxExtractBytes: p.envInt64("MAX_EXTRACT_BYTES", 512<<20),
		Workers:         p.envInt("WORKERS", runtime.NumCPU()),

		GeminiAPIKey:       strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:        envOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		TransformerTimeout: p.envDuration("TRANSFORMER_TIMEOUT", 60*time.Second),

		CacheEntries:  p.envInt("CACHE_ENTRIES", 4096),
		CacheTTL:      p.envDuration("CACHE_TTL", 24*time.Hour),
		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       p.envInt("REDIS_DB", 0),

		DBDriver: strings.ToLower(envOrDefault("DB_DRIVER", "mysql")),
		DBDSN:    strings.TrimSpace(os.Getenv("DB_DSN")),

		SourceBaseURL: envOrDefault("SOURCE_BASE_URL", "https://github.com"),
		SourceBranch:  envOrDefault("SOURCE_BRANCH", "main"),

		S3: artifact.S3Config{
			Endpoint:  os.Getenv("ARCHIVE_S3_ENDPOINT"),
			Region:    envOrDefault("ARCHIVE_S3_REGION", "us-east-1"),
			AccessKey: os.Getenv("ARCHIVE_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("ARCHIVE_S3_SECRET_KEY"),
			Bucket:    os.Getenv("ARCHIVE_S3_BUCKET"),
			UseSSL:    p.envBool("ARCHIVE_S3_USE_SSL", false),
			URLExpiry: p.envDuration("ARCHIVE_URL_EXPIRY", time.Hour),
		},
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch {
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("config: MAX_UPLOAD_BYTES must be positive")
	case c.MaxExtractBytes <= 0:
		return fmt.Errorf("config: MAX_EXTRACT_BYTES must be positive")
	case c.Workers <= 0:
		return fmt.Errorf("config: WORKERS must be positive")
	case c.DBDriver != "mysql" && c.DBDriver != "postgres":
		return fmt.Errorf("config: DB_DRIVER must be mysql or postgres, got %q", c.DBDriver)
	}
	return nil
}

// envOrDefault reads an env variable or returns the fallback.
func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// parser keeps the first conversion error so Load can report it once.
type parser struct {
	err error
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: %s=%q: %w", key, raw, err)
	}
}

func (p *parser) envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) envInt64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) envBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) envLevel(key string, fallback slog.Level) slog.Level {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return l
}
