package config

import (
	"github.com/yndnr/authmesh-go/internal/core/service"
	"github.com/yndnr/authmesh-go/internal/server/hubserver"
	"github.com/yndnr/authmesh-go/internal/storage"
	"github.com/yndnr/authmesh-go/internal/telemetry/logger"
)

// ToDispatcherConfig converts the hub and auth sections.
func (c *ServerConfig) ToDispatcherConfig() service.Config {
	cfg := service.DefaultConfig()
	cfg.UID = c.Hub.UID
	if c.Auth.Pepper != "" {
		cfg.Pepper = []byte(c.Auth.Pepper)
	}
	cfg.Banned = append([]uint64(nil), c.Auth.Banned...)
	if c.Auth.LookupTimeout > 0 {
		cfg.LookupTimeout = c.Auth.LookupTimeout
	}
	if c.Auth.LookupWorkers > 0 {
		cfg.LookupWorkers = c.Auth.LookupWorkers
	}
	cfg.LookupRate = c.Auth.LookupRate
	cfg.LookupBurst = c.Auth.LookupBurst
	return cfg
}

// ToHubConfig converts the hub section. TLS is left to the caller, which
// owns the certificate reloader.
func (c *ServerConfig) ToHubConfig() *hubserver.Config {
	cfg := hubserver.DefaultConfig()
	cfg.Address = c.Hub.Listen
	cfg.ReadTimeout = c.Hub.ReadTimeout
	cfg.WriteTimeout = c.Hub.WriteTimeout
	cfg.IdleTimeout = c.Hub.IdleTimeout
	cfg.FrameRate = c.Hub.FrameRate
	cfg.FrameBurst = c.Hub.FrameBurst
	cfg.MaxConnections = c.Hub.MaxConnections
	return cfg
}

// ToBadgerConfig converts the storage section.
func (c *ServerConfig) ToBadgerConfig() storage.BadgerConfig {
	cfg := storage.DefaultBadgerConfig(c.Storage.DataDir)
	if c.Storage.EncryptionKey != "" {
		cfg.EncryptionKey = []byte(c.Storage.EncryptionKey)
	}
	cfg.GCInterval = c.Storage.GCInterval
	return cfg
}

// ToPostgresConfig converts the postgres settings of the auth section.
func (c *ServerConfig) ToPostgresConfig() storage.PostgresConfig {
	query := c.Auth.Query
	if query == "" {
		query = storage.DefaultPostgresQuery
	}
	return storage.PostgresConfig{
		ConnInfo: c.Auth.ConnInfo,
		Query:    query,
	}
}

// ToLoggerConfig converts the log section.
func (c *ServerConfig) ToLoggerConfig() logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = c.Log.Format
	cfg.Secure = c.Log.Secure
	return cfg
}
