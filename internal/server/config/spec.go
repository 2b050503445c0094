package config

import "time"

// ServerConfig is the root configuration of authmesh-hub.
type ServerConfig struct {
	Hub     HubSection     `koanf:"hub"`
	Auth    AuthSection    `koanf:"auth"`
	Storage StorageSection `koanf:"storage"`
	Signing SigningSection `koanf:"signing"`
	Admin   AdminSection   `koanf:"admin"`
	Log     LogSection     `koanf:"log"`
}

// HubSection configures the frame listener.
type HubSection struct {
	// UID is the hub's own identifier. Traffic that is not part of the
	// authentication exchange is addressed to it.
	UID uint64 `koanf:"uid"`

	Listen      string `koanf:"listen"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`

	// FrameRate limits inbound frames per connection per second; zero
	// disables the limit.
	FrameRate  float64 `koanf:"frame_rate"`
	FrameBurst int     `koanf:"frame_burst"`

	MaxConnections int `koanf:"max_connections"`
}

// AuthSection configures identity lookup and the authentication exchange.
// It is the part of the configuration re-applied on reload.
type AuthSection struct {
	// Backend is one of postgres, badger or memory.
	Backend string `koanf:"backend"`

	// ConnInfo and Query configure the postgres backend.
	ConnInfo string `koanf:"conn_info"`
	Query    string `koanf:"query"`

	// Pepper keys the salts handed to unknown identities. Empty disables
	// faking.
	Pepper string `koanf:"pepper"`

	Banned []uint64 `koanf:"banned"`

	LookupTimeout time.Duration `koanf:"lookup_timeout"`
	LookupWorkers int           `koanf:"lookup_workers"`
	LookupRate    float64       `koanf:"lookup_rate"`
	LookupBurst   int           `koanf:"lookup_burst"`
}

// StorageSection configures the badger identity store.
type StorageSection struct {
	DataDir       string        `koanf:"data_dir"`
	EncryptionKey string        `koanf:"encryption_key"`
	GCInterval    time.Duration `koanf:"gc_interval"`
}

// SigningSection locates the key used to sign registrations.
type SigningSection struct {
	PrivateKeyFile string `koanf:"private_key_file"`
}

// AdminSection configures the health and metrics endpoint.
type AdminSection struct {
	// Addr is the listen address; empty disables the admin server.
	Addr string `koanf:"addr"`

	// AllowList restricts admin clients by IP or CIDR.
	AllowList []string `koanf:"allow_list"`

	// RateLimit is the per-client request rate; zero disables it.
	RateLimit int `koanf:"rate_limit"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Secure bool   `koanf:"secure"`
}
