// config.go

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration tree.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Session   SessionConfig   `mapstructure:"session"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Push      PushConfig      `mapstructure:"push"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig HTTP server settings
type ServerConfig struct {
	HTTPPort           int      `mapstructure:"http_port"`
	Debug              bool     `mapstructure:"debug"`
	LogLevel           string   `mapstructure:"log_level"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`
}

// DatabaseConfig PostgreSQL settings
type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// RedisConfig Redis settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SessionConfig controls the live session channel.
type SessionConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	StoreTimeout      time.Duration `mapstructure:"store_timeout"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	RelayEnabled      bool          `mapstructure:"relay_enabled"`
	RelayChannel      string        `mapstructure:"relay_channel"`
}

// JWTConfig bearer token verification
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// StorageConfig Cloudflare R2 bucket used for avatars
type StorageConfig struct {
	AccountID       string `mapstructure:"account_id"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
}

// Enabled reports whether every R2 setting is present.
func (c *StorageConfig) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" &&
		c.Bucket != "" && c.PublicBaseURL != ""
}

// PushConfig Expo push API
type PushConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ExpoURL     string `mapstructure:"expo_url"`
	AccessToken string `mapstructure:"access_token"`
}

// PaymentConfig Paystack API
type PaymentConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	SecretKey string `mapstructure:"secret_key"`
}

// SchedulerConfig periodic jobs
type SchedulerConfig struct {
	LeaderboardRefresh time.Duration `mapstructure:"leaderboard_refresh"`
	ReminderLead       time.Duration `mapstructure:"reminder_lead"`
}

var (
	// GlobalConfig holds the last loaded configuration
	GlobalConfig Config
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit_per_minute", 120)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "eyes")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("session.heartbeat_interval", 30*time.Second)
	v.SetDefault("session.store_timeout", 5*time.Second)
	v.SetDefault("session.send_buffer", 256)
	v.SetDefault("session.relay_enabled", false)
	v.SetDefault("session.relay_channel", "session:relay")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "eyes-survival")

	for _, key := range []string{"account_id", "access_key_id", "secret_access_key", "bucket", "public_base_url"} {
		v.SetDefault("storage."+key, "")
	}

	v.SetDefault("push.enabled", true)
	v.SetDefault("push.expo_url", "https://exp.host/--/api/v2/push/send")
	v.SetDefault("push.access_token", "")
	v.SetDefault("payment.base_url", "https://api.paystack.co")
	v.SetDefault("payment.secret_key", "")

	v.SetDefault("scheduler.leaderboard_refresh", 5*time.Minute)
	v.SetDefault("scheduler.reminder_lead", 10*time.Minute)
}

// LoadConfig reads .env, the YAML file at configPath and the environment.
//
// A missing .env file is ignored. A missing config file is an error only when
// a path was given explicitly.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	GlobalConfig = cfg
	return &cfg, nil
}

// GetDSN builds the lib/pq connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// GetRedisAddr returns host:port
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
