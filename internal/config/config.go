// internal/config/config.go

// Package config loads service settings from defaults, an optional YAML file,
// an optional .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"mcp-meal-snap/internal/nutrition"
)

var ErrInvalidConfiguration = errors.New("invalid configuration")

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Meals    MealsConfig    `yaml:"meals"`
	Redis    RedisConfig    `yaml:"redis"`
	Images   ImagesConfig   `yaml:"images"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AnalysisConfig struct {
	WebhookURL   string        `yaml:"webhook_url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	MockFallback bool          `yaml:"mock_fallback"`
	MaxImageSize int64         `yaml:"max_image_size"`
}

type MealsConfig struct {
	Timezone string                  `yaml:"timezone"`
	Balance  nutrition.BalancePolicy `yaml:"balance"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type ImagesConfig struct {
	Bucket        string `yaml:"bucket"`
	Region        string `yaml:"region"`
	PublicBaseURL string `yaml:"public_base_url"`
	KeyPrefix     string `yaml:"key_prefix"`
}

type AuthConfig struct {
	JWTSecret      string `yaml:"jwt_secret"`
	AllowAnonymous bool   `yaml:"allow_anonymous"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8011,
		},
		Database: DatabaseConfig{
			Path: "/data/meal-snap.db",
		},
		Analysis: AnalysisConfig{
			Timeout:      30 * time.Second,
			MaxAttempts:  2,
			RetryDelay:   500 * time.Millisecond,
			MaxImageSize: 10 << 20,
		},
		Meals: MealsConfig{
			Timezone: "Local",
			Balance:  nutrition.DefaultBalancePolicy(),
		},
		Redis: RedisConfig{
			TTL: 10 * time.Minute,
		},
		Images: ImagesConfig{
			KeyPrefix: "meals",
		},
		Auth: AuthConfig{
			AllowAnonymous: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a Config. path may be empty, in which case only defaults and
// the environment are used. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("SERVER_HOST", &c.Server.Host)
	num("SERVER_PORT", &c.Server.Port)
	str("DB_PATH", &c.Database.Path)
	str("ANALYSIS_WEBHOOK_URL", &c.Analysis.WebhookURL)
	dur("ANALYSIS_TIMEOUT", &c.Analysis.Timeout)
	num("ANALYSIS_MAX_ATTEMPTS", &c.Analysis.MaxAttempts)
	flag("ANALYSIS_MOCK_FALLBACK", &c.Analysis.MockFallback)
	str("MEAL_TIMEZONE", &c.Meals.Timezone)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	num("REDIS_DB", &c.Redis.DB)
	dur("REDIS_TTL", &c.Redis.TTL)
	str("S3_BUCKET", &c.Images.Bucket)
	str("S3_REGION", &c.Images.Region)
	if c.Images.Region == "" {
		str("AWS_REGION", &c.Images.Region)
	}
	str("CLOUDFRONT_URL", &c.Images.PublicBaseURL)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	flag("AUTH_ALLOW_ANONYMOUS", &c.Auth.AllowAnonymous)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, errors.Join(errs...))
	}
	return nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.Path == "" {
		problems = append(problems, "database.path is required")
	}
	if c.Analysis.Timeout <= 0 {
		problems = append(problems, "analysis.timeout must be positive")
	}
	if c.Analysis.MaxAttempts < 1 {
		problems = append(problems, "analysis.max_attempts must be at least 1")
	}
	if c.Analysis.MaxImageSize <= 0 {
		problems = append(problems, "analysis.max_image_size must be positive")
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, fmt.Sprintf("meals.timezone: %v", err))
	}
	if c.Meals.Balance.MinProteinGrams < 0 || c.Meals.Balance.MaxCarbCalorieRatio < 0 {
		problems = append(problems, "meals.balance thresholds must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// Location resolves the timezone meal slots are classified in.
func (c *Config) Location() (*time.Location, error) {
	if c.Meals.Timezone == "" || c.Meals.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Meals.Timezone)
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
