package config

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/yndnr/authmesh-go/internal/storage"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyHub(&cfg.Hub); err != nil {
		return err
	}
	if err := verifyAuth(&cfg.Auth); err != nil {
		return err
	}
	if cfg.Auth.Backend == storage.BackendBadger {
		if err := verifyStorage(&cfg.Storage); err != nil {
			return err
		}
	}
	if cfg.Signing.PrivateKeyFile == "" {
		return errors.New("signing.private_key_file is required")
	}
	if cfg.Admin.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.Admin.Addr); err != nil {
			return fmt.Errorf("admin.addr: %w", err)
		}
	}
	if cfg.Admin.RateLimit < 0 {
		return errors.New("admin.rate_limit must not be negative")
	}
	return verifyLog(&cfg.Log)
}

func verifyHub(cfg *HubSection) error {
	if cfg.Listen == "" {
		return errors.New("hub.listen is required")
	}
	if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
		return fmt.Errorf("hub.listen: %w", err)
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return errors.New("hub.tls_cert_file and hub.tls_key_file must be set together")
	}
	for _, path := range []string{cfg.TLSCertFile, cfg.TLSKeyFile} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("hub tls file: %w", err)
		}
	}
	if cfg.ReadTimeout < 0 || cfg.WriteTimeout < 0 || cfg.IdleTimeout < 0 {
		return errors.New("hub timeouts must not be negative")
	}
	if cfg.FrameRate < 0 || cfg.FrameBurst < 0 {
		return errors.New("hub.frame_rate and hub.frame_burst must not be negative")
	}
	if cfg.MaxConnections < 0 {
		return errors.New("hub.max_connections must not be negative")
	}
	return nil
}

func verifyAuth(cfg *AuthSection) error {
	switch cfg.Backend {
	case storage.BackendPostgres:
		if cfg.ConnInfo == "" {
			return errors.New("auth.conn_info is required for the postgres backend")
		}
	case storage.BackendBadger, storage.BackendMemory:
	default:
		return fmt.Errorf("auth.backend %q is not one of postgres, badger, memory", cfg.Backend)
	}
	if cfg.LookupTimeout < 0 {
		return errors.New("auth.lookup_timeout must not be negative")
	}
	if cfg.LookupWorkers < 0 || cfg.LookupBurst < 0 || cfg.LookupRate < 0 {
		return errors.New("auth lookup limits must not be negative")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required for the badger backend")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("cannot create data directory: %w", err)
	}
	if cfg.GCInterval < 0 {
		return errors.New("storage.gc_interval must not be negative")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is invalid", cfg.Level)
	}
	switch cfg.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q is invalid", cfg.Format)
	}
	return nil
}
