package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Planner   PlannerConfig
	Algorithm AlgorithmConfig
	Service   ServiceConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"SERVER_HOST"`
	Port         int           `mapstructure:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"SERVER_IDLE_TIMEOUT"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"POSTGRES_HOST"`
	Port     int    `mapstructure:"POSTGRES_PORT"`
	User     string `mapstructure:"POSTGRES_USER"`
	Password string `mapstructure:"POSTGRES_PASSWORD"`
	DBName   string `mapstructure:"POSTGRES_DB"`
	SSLMode  string `mapstructure:"POSTGRES_SSLMODE"`
	MaxConns int32  `mapstructure:"POSTGRES_MAX_CONNS"`
	MinConns int32  `mapstructure:"POSTGRES_MIN_CONNS"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     int    `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
	PoolSize int    `mapstructure:"REDIS_POOL_SIZE"`
}

// PlannerConfig holds OpenTripPlanner settings. An empty BaseURL disables
// route generation (commutes must then carry client-supplied geometry).
type PlannerConfig struct {
	BaseURL     string        `mapstructure:"OTP_BASE_URL"`
	GraphQLPath string        `mapstructure:"OTP_GRAPHQL_PATH"`
	Timeout     time.Duration `mapstructure:"OTP_TIMEOUT"`
}

// AlgorithmConfig holds matching thresholds and score weights.
type AlgorithmConfig struct {
	MinTimeOverlapMinutes    int     `mapstructure:"ALGO_MIN_TIME_OVERLAP_MINUTES"`
	MinOverlapDistanceMeters float64 `mapstructure:"ALGO_MIN_OVERLAP_DISTANCE_METERS"`
	OverlapToleranceMeters   float64 `mapstructure:"ALGO_OVERLAP_TOLERANCE_METERS"`
	OverlapWeight            float64 `mapstructure:"ALGO_OVERLAP_WEIGHT"`
	InterestWeight           float64 `mapstructure:"ALGO_INTEREST_WEIGHT"`
	SharedMetersPerMinute    float64 `mapstructure:"ALGO_SHARED_METERS_PER_MINUTE"`
}

// ServiceConfig holds lifecycle settings for the matching service.
// PassCooldownDays <= 0 disables cooldown hiding: a pass immediately
// completes the suggestion instead.
type ServiceConfig struct {
	PassCooldownDays         int `mapstructure:"MATCH_PASS_COOLDOWN_DAYS"`
	QueueAssignmentDaysAhead int `mapstructure:"MATCH_QUEUE_DAYS_AHEAD"`
}

// DSN returns the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode,
	)
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// ── Defaults ────────────────────────────────────────
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "5s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	viper.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "waymate")
	viper.SetDefault("POSTGRES_PASSWORD", "waymate_secret")
	viper.SetDefault("POSTGRES_DB", "waymate_db")
	viper.SetDefault("POSTGRES_SSLMODE", "disable")
	viper.SetDefault("POSTGRES_MAX_CONNS", 50)
	viper.SetDefault("POSTGRES_MIN_CONNS", 10)

	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_POOL_SIZE", 100)

	viper.SetDefault("OTP_BASE_URL", "")
	viper.SetDefault("OTP_GRAPHQL_PATH", "/otp/routers/default/index/graphql")
	viper.SetDefault("OTP_TIMEOUT", "15s")

	viper.SetDefault("ALGO_MIN_TIME_OVERLAP_MINUTES", 10)
	viper.SetDefault("ALGO_MIN_OVERLAP_DISTANCE_METERS", 250.0)
	viper.SetDefault("ALGO_OVERLAP_TOLERANCE_METERS", 120.0)
	viper.SetDefault("ALGO_OVERLAP_WEIGHT", 0.7)
	viper.SetDefault("ALGO_INTEREST_WEIGHT", 0.3)
	viper.SetDefault("ALGO_SHARED_METERS_PER_MINUTE", 80.0)

	viper.SetDefault("MATCH_PASS_COOLDOWN_DAYS", 7)
	viper.SetDefault("MATCH_QUEUE_DAYS_AHEAD", 1)

	// Try to read .env file. If it doesn't exist (e.g., inside Docker),
	// env vars injected by docker-compose env_file are used instead.
	_ = viper.ReadInConfig()

	cfg := &Config{}

	// ── Server ──────────────────────────────────────────
	cfg.Server = ServerConfig{
		Host:         viper.GetString("SERVER_HOST"),
		Port:         viper.GetInt("SERVER_PORT"),
		ReadTimeout:  viper.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: viper.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  viper.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	// ── Postgres ────────────────────────────────────────
	cfg.Postgres = PostgresConfig{
		Host:     viper.GetString("POSTGRES_HOST"),
		Port:     viper.GetInt("POSTGRES_PORT"),
		User:     viper.GetString("POSTGRES_USER"),
		Password: viper.GetString("POSTGRES_PASSWORD"),
		DBName:   viper.GetString("POSTGRES_DB"),
		SSLMode:  viper.GetString("POSTGRES_SSLMODE"),
		MaxConns: viper.GetInt32("POSTGRES_MAX_CONNS"),
		MinConns: viper.GetInt32("POSTGRES_MIN_CONNS"),
	}

	// ── Redis ───────────────────────────────────────────
	cfg.Redis = RedisConfig{
		Host:     viper.GetString("REDIS_HOST"),
		Port:     viper.GetInt("REDIS_PORT"),
		Password: viper.GetString("REDIS_PASSWORD"),
		DB:       viper.GetInt("REDIS_DB"),
		PoolSize: viper.GetInt("REDIS_POOL_SIZE"),
	}

	// ── Planner ─────────────────────────────────────────
	cfg.Planner = PlannerConfig{
		BaseURL:     viper.GetString("OTP_BASE_URL"),
		GraphQLPath: viper.GetString("OTP_GRAPHQL_PATH"),
		Timeout:     viper.GetDuration("OTP_TIMEOUT"),
	}

	// ── Algorithm ───────────────────────────────────────
	cfg.Algorithm = AlgorithmConfig{
		MinTimeOverlapMinutes:    viper.GetInt("ALGO_MIN_TIME_OVERLAP_MINUTES"),
		MinOverlapDistanceMeters: viper.GetFloat64("ALGO_MIN_OVERLAP_DISTANCE_METERS"),
		OverlapToleranceMeters:   viper.GetFloat64("ALGO_OVERLAP_TOLERANCE_METERS"),
		OverlapWeight:            viper.GetFloat64("ALGO_OVERLAP_WEIGHT"),
		InterestWeight:           viper.GetFloat64("ALGO_INTEREST_WEIGHT"),
		SharedMetersPerMinute:    viper.GetFloat64("ALGO_SHARED_METERS_PER_MINUTE"),
	}

	// ── Service ─────────────────────────────────────────
	cfg.Service = ServiceConfig{
		PassCooldownDays:         viper.GetInt("MATCH_PASS_COOLDOWN_DAYS"),
		QueueAssignmentDaysAhead: viper.GetInt("MATCH_QUEUE_DAYS_AHEAD"),
	}

	return cfg, nil
}
