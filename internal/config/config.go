package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/barangay-docflow/internal/domain/entity"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Cache         CacheConfig        `mapstructure:"cache"`
	Sync          SyncConfig         `mapstructure:"sync"`
	Notification  NotificationConfig `mapstructure:"notification"`
	Directory     DirectoryConfig    `mapstructure:"directory"`
	DocumentTypes []string           `mapstructure:"document_types"`
	Logger        LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// CacheConfig selects the fallback cache backend
type CacheConfig struct {
	Driver string      `mapstructure:"driver"`
	Dir    string      `mapstructure:"dir"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SyncConfig controls assignment reconciliation
type SyncConfig struct {
	// Schedule is a cron expression; empty disables the periodic run
	Schedule        string        `mapstructure:"schedule"`
	Timeout         time.Duration `mapstructure:"timeout"`
	OnChange        bool          `mapstructure:"on_change"`
	OnStartup       bool          `mapstructure:"on_startup"`
	MetricsInterval time.Duration `mapstructure:"metrics_interval"`
}

// NotificationConfig selects the notification channel
type NotificationConfig struct {
	Channel string     `mapstructure:"channel"`
	Lark    LarkConfig `mapstructure:"lark"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
}

// DirectoryConfig lists the users known to the service
type DirectoryConfig struct {
	Users []entity.User `mapstructure:"users"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Supported backend names
const (
	DatabaseSQLite   = "sqlite3"
	DatabasePostgres = "postgres"

	CacheFile  = "file"
	CacheRedis = "redis"
	CacheNone  = "none"

	ChannelLog  = "log"
	ChannelLark = "lark"
)

// Load loads configuration from file and environment variables.
// An empty path uses defaults and the environment only.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DOCFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", DatabaseSQLite)
	v.SetDefault("database.path", "data/docflow.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("cache.driver", CacheFile)
	v.SetDefault("cache.dir", "data/workflow-cache")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.key_prefix", "docflow:workflow:")

	v.SetDefault("sync.schedule", "@every 15m")
	v.SetDefault("sync.timeout", 2*time.Minute)
	v.SetDefault("sync.on_change", true)
	v.SetDefault("sync.on_startup", true)
	v.SetDefault("sync.metrics_interval", 30*time.Second)

	v.SetDefault("notification.channel", ChannelLog)

	v.SetDefault("document_types", []string{"barangay_clearance", "certificate_of_indigency", "certificate_of_residency"})

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds credentials to their conventional variable names
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("database.dsn", "DATABASE_URL")
	_ = v.BindEnv("cache.redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("cache.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("notification.lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("notification.lark.app_secret", "LARK_APP_SECRET")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	switch c.Database.Driver {
	case DatabaseSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite3")
		}
	case DatabasePostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}

	switch c.Cache.Driver {
	case CacheFile:
		if c.Cache.Dir == "" {
			return fmt.Errorf("cache.dir is required for the file cache")
		}
	case CacheRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis cache")
		}
	case CacheNone:
	default:
		return fmt.Errorf("cache.driver %q is not supported", c.Cache.Driver)
	}

	if c.Sync.Schedule != "" {
		if _, err := cron.ParseStandard(c.Sync.Schedule); err != nil {
			return fmt.Errorf("sync.schedule: %w", err)
		}
	}

	switch c.Notification.Channel {
	case ChannelLog:
	case ChannelLark:
		if c.Notification.Lark.AppID == "" || c.Notification.Lark.AppSecret == "" {
			return fmt.Errorf("notification.lark.app_id and app_secret are required for the lark channel")
		}
	default:
		return fmt.Errorf("notification.channel %q is not supported", c.Notification.Channel)
	}

	seen := make(map[string]bool, len(c.Directory.Users))
	for i, u := range c.Directory.Users {
		if strings.TrimSpace(u.ID) == "" {
			return fmt.Errorf("directory.users[%d].id is required", i)
		}
		if seen[u.ID] {
			return fmt.Errorf("directory.users[%d]: duplicate id %q", i, u.ID)
		}
		seen[u.ID] = true
	}

	for i, id := range c.DocumentTypes {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("document_types[%d] is empty", i)
		}
	}

	return nil
}
