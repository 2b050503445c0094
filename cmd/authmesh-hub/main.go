// Package main provides the entry point for authmesh-hub.
//
// authmesh-hub accepts frame connections, authenticates identities with
// SRP against the configured identity backend and signs the registrations
// of authenticated sessions.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/yndnr/authmesh-go/internal/core/service"
	"github.com/yndnr/authmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/authmesh-go/internal/infra/confloader"
	"github.com/yndnr/authmesh-go/internal/infra/shutdown"
	"github.com/yndnr/authmesh-go/internal/infra/tlsroots"
	"github.com/yndnr/authmesh-go/internal/server/config"
	"github.com/yndnr/authmesh-go/internal/server/hubserver"
	"github.com/yndnr/authmesh-go/internal/server/httpserver"
	"github.com/yndnr/authmesh-go/internal/storage"
	"github.com/yndnr/authmesh-go/internal/storage/memory"
	"github.com/yndnr/authmesh-go/internal/telemetry/logger"
	"github.com/yndnr/authmesh-go/internal/telemetry/metric"
	"github.com/yndnr/authmesh-go/pkg/crypto/sign"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("authmesh-hub %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.ToLoggerConfig())
	logger.SetDefault(log)
	info := buildinfo.Get()
	log.Info("starting authmesh-hub",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile)
	log.Info("effective configuration", "config", config.Sanitize(cfg))

	reg := metric.NewRegistry()

	resolver, err := openResolver(cfg, reg, log)
	if err != nil {
		return fmt.Errorf("init identity backend: %w", err)
	}

	key, err := sign.LoadKeyFile(cfg.Signing.PrivateKeyFile)
	if err != nil {
		resolver.Close()
		return fmt.Errorf("load signing key: %w", err)
	}
	signer, err := sign.NewEd25519Signer(key)
	if err != nil {
		resolver.Close()
		return err
	}
	log.Info("registration signing key loaded", "public_key", sign.EncodePublicKey(signer.PublicKey()))

	disp, err := service.New(resolver, signer, cfg.ToDispatcherConfig(),
		service.WithLogger(log), service.WithMetrics(reg))
	if err != nil {
		resolver.Close()
		return fmt.Errorf("init dispatcher: %w", err)
	}
	reg.Registerer().MustRegister(metric.NewSessionCollector(disp.Stats))

	hubCfg := cfg.ToHubConfig()
	var certs *tlsroots.CertReloader
	if cfg.Hub.TLSCertFile != "" {
		certs, err = tlsroots.NewCertReloader(cfg.Hub.TLSCertFile, cfg.Hub.TLSKeyFile, tlsroots.WithLogger(log))
		if err != nil {
			resolver.Close()
			return fmt.Errorf("load hub certificate: %w", err)
		}
		if err := certs.Watch(); err != nil {
			log.Warn("certificate reload disabled", "error", err)
		}
		hubCfg.TLSConfig = certs.ServerConfig()
	}

	srv := hubserver.New(hubCfg, disp, hubserver.WithLogger(log), hubserver.WithMetrics(reg))

	shutdownHandler := shutdown.NewHandler(shutdownTimeout, shutdown.WithLogger(log))

	// Hooks run in reverse registration order: last started, first stopped.
	shutdownHandler.OnShutdown("identity backend", func(context.Context) error {
		return resolver.Close()
	})
	if certs != nil {
		shutdownHandler.OnShutdown("certificate watcher", func(context.Context) error {
			return certs.Stop()
		})
	}

	ctx := context.Background()
	if err := srv.Start(ctx); err != nil {
		resolver.Close()
		return fmt.Errorf("start hub: %w", err)
	}
	log.Info("hub listening", "addr", srv.Addr().String(), "tls", hubCfg.TLSConfig != nil)
	shutdownHandler.OnShutdown("hub server", srv.Shutdown)

	if cfg.Admin.Addr != "" {
		admin := httpserver.New(cfg.Admin.Addr, httpserver.NewRouter(&httpserver.RouterConfig{
			Stats:       disp.Stats,
			Connections: srv.Connections,
			Metrics:     reg.Handler(),
			Logger:      log,
			AllowList:   cfg.Admin.AllowList,
			RateLimit:   cfg.Admin.RateLimit,
		}))
		go func() {
			log.Info("admin server listening", "addr", cfg.Admin.Addr)
			if err := admin.ListenAndServe(); err != nil {
				log.Error("admin server error", "error", err)
				shutdownHandler.Trigger("admin server failed")
			}
		}()
		shutdownHandler.OnShutdown("admin server", admin.Shutdown)
	}

	if *configFile != "" {
		watcher, err := watchConfig(*configFile, srv, reg, log)
		if err != nil {
			log.Warn("configuration reload disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("config watcher", func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	log.Info("hub started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("hub stopped gracefully")
	return nil
}

// loadConfig loads configuration from file and environment.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// identityBackend is an identity resolver the hub owns and closes.
type identityBackend interface {
	storage.IdentityResolver
	Close() error
}

// openResolver opens the configured identity backend.
func openResolver(cfg *config.ServerConfig, reg *metric.Registry, log *slog.Logger) (identityBackend, error) {
	switch cfg.Auth.Backend {
	case storage.BackendPostgres:
		return storage.NewPostgresResolver(cfg.ToPostgresConfig(), log)
	case storage.BackendBadger:
		store, err := storage.NewBadgerStore(cfg.ToBadgerConfig(), log)
		if err != nil {
			return nil, err
		}
		return store.RegisterMetrics(reg.Registerer()), nil
	case storage.BackendMemory:
		log.Warn("memory identity backend holds no identities; every login will be rejected or faked")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown auth backend %q", cfg.Auth.Backend)
	}
}

// watchConfig reapplies the reloadable settings (auth section and log
// level) whenever the configuration file changes. Listener, storage and
// signing settings need a restart.
func watchConfig(path string, srv *hubserver.Server, reg *metric.Registry, log *slog.Logger) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		w.Stop()
		return nil, err
	}
	w.OnChange(func(string) {
		cfg, err := loadConfig(path)
		if err != nil {
			reg.RecordReload("failed")
			log.Error("configuration reload failed", "error", err)
			return
		}
		srv.Reconfigure(cfg.ToDispatcherConfig())
		logger.SetLevel(cfg.Log.Level)
		reg.RecordReload("ok")
		log.Info("configuration reloaded", "log_level", cfg.Log.Level)
	})
	w.StartAsync()
	return w, nil
}
