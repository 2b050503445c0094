package tlsroots

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/yndnr/authmesh-go/internal/infra/confloader"
)

// CertReloader serves a certificate that follows its files on disk.
type CertReloader struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	debounce time.Duration

	cert    atomic.Pointer[tls.Certificate]
	watcher *confloader.Watcher
}

// ReloaderOption configures a CertReloader.
type ReloaderOption func(*CertReloader)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ReloaderOption {
	return func(r *CertReloader) { r.logger = logger }
}

// WithDebounce sets the quiet period after a change before reloading.
func WithDebounce(d time.Duration) ReloaderOption {
	return func(r *CertReloader) { r.debounce = d }
}

// NewCertReloader loads the key pair. It fails when the files do not hold
// a valid pair.
func NewCertReloader(certFile, keyFile string, opts ...ReloaderOption) (*CertReloader, error) {
	r := &CertReloader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   slog.Default(),
		debounce: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: initial load: %w", err)
	}
	return r, nil
}

// Reload reads the key pair again. On failure the previous certificate
// stays in use.
func (r *CertReloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	r.cert.Store(&cert)
	return nil
}

// Watch starts reloading on file changes.
func (r *CertReloader) Watch() error {
	w, err := confloader.NewWatcher(
		confloader.WithWatcherLogger(r.logger),
		confloader.WithDebounce(r.debounce),
	)
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	for _, path := range []string{r.certFile, r.keyFile} {
		if err := w.Watch(path); err != nil {
			w.Stop()
			return fmt.Errorf("tlsroots: watch %s: %w", path, err)
		}
	}
	w.OnChange(func(path string) {
		if err := r.Reload(); err != nil {
			r.logger.Error("certificate reload failed", "file", path, "error", err)
			return
		}
		r.logger.Info("certificate reloaded", "cert_file", r.certFile)
	})
	w.StartAsync()
	r.watcher = w
	return nil
}

// Stop stops watching.
func (r *CertReloader) Stop() error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Stop()
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *CertReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.cert.Load(), nil
}

// ServerConfig returns a server configuration backed by the reloader.
func (r *CertReloader) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: r.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}
