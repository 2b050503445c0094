package config

import (
	"time"

	"github.com/yndnr/authmesh-go/internal/storage"
)

// Default values.
const (
	DefaultHubUID         = 1
	DefaultHubListen      = "127.0.0.1:9003"
	DefaultReadTimeout    = 0
	DefaultWriteTimeout   = 10 * time.Second
	DefaultIdleTimeout    = 5 * time.Minute
	DefaultFrameRate      = 100.0
	DefaultFrameBurst     = 200
	DefaultMaxConnections = 10000

	DefaultBackend       = storage.BackendBadger
	DefaultLookupTimeout = 2 * time.Second
	DefaultLookupWorkers = 8

	DefaultDataDir    = "/var/lib/authmesh-hub/data"
	DefaultGCInterval = 10 * time.Minute

	DefaultPrivateKeyFile = "/etc/authmesh-hub/hub.key"
	DefaultAdminAddr      = "127.0.0.1:9080"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Hub: HubSection{
			UID:            DefaultHubUID,
			Listen:         DefaultHubListen,
			ReadTimeout:    DefaultReadTimeout,
			WriteTimeout:   DefaultWriteTimeout,
			IdleTimeout:    DefaultIdleTimeout,
			FrameRate:      DefaultFrameRate,
			FrameBurst:     DefaultFrameBurst,
			MaxConnections: DefaultMaxConnections,
		},
		Auth: AuthSection{
			Backend:       DefaultBackend,
			Query:         storage.DefaultPostgresQuery,
			LookupTimeout: DefaultLookupTimeout,
			LookupWorkers: DefaultLookupWorkers,
		},
		Storage: StorageSection{
			DataDir:    DefaultDataDir,
			GCInterval: DefaultGCInterval,
		},
		Signing: SigningSection{
			PrivateKeyFile: DefaultPrivateKeyFile,
		},
		Admin: AdminSection{
			Addr: DefaultAdminAddr,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
			Secure: true,
		},
	}
}
