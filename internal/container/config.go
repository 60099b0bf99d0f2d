// Package container provides dependency injection and lifecycle management
// for the document workflow service.
package container

import (
	"go.uber.org/zap"

	"github.com/garyjia/barangay-docflow/internal/config"
	"github.com/garyjia/barangay-docflow/internal/infrastructure/cache"
	"github.com/garyjia/barangay-docflow/internal/infrastructure/notify"
	httpiface "github.com/garyjia/barangay-docflow/internal/interfaces/http"
	"github.com/garyjia/barangay-docflow/pkg/database"
	"github.com/garyjia/barangay-docflow/pkg/utils"
)

// The helpers below bridge the file-based configuration loaded by viper
// and the settings structs of each infrastructure package.

func databaseConfig(c config.DatabaseConfig) database.Config {
	return database.Config{
		Driver:          c.Driver,
		Path:            c.Path,
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

func redisConfig(c config.RedisConfig) cache.RedisConfig {
	return cache.RedisConfig{
		Addr:      c.Addr,
		Password:  c.Password,
		DB:        c.DB,
		KeyPrefix: c.KeyPrefix,
	}
}

func larkConfig(c config.LarkConfig) notify.LarkConfig {
	return notify.LarkConfig{
		AppID:     c.AppID,
		AppSecret: c.AppSecret,
	}
}

// ServerConfig converts the server section for the HTTP adapter
func ServerConfig(c config.ServerConfig) httpiface.ServerConfig {
	return httpiface.ServerConfig{
		Host:            c.Host,
		Port:            c.Port,
		Mode:            c.Mode,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		ShutdownTimeout: c.ShutdownTimeout,
	}
}

// LoggerConfig converts the logger section
func LoggerConfig(c config.LoggerConfig) utils.LoggerConfig {
	return utils.LoggerConfig{
		Level:      c.Level,
		OutputPath: c.OutputPath,
		Format:     c.Format,
		Service:    "docflow",
	}
}

func zapKeyValue(logger *zap.Logger) *utils.KeyValueLogger {
	return utils.NewKeyValueLogger(logger)
}
