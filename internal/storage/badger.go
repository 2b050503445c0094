package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/pkg/crypto/adaptive"
)

// identityPrefix namespaces identity records inside the badger keyspace.
var identityPrefix = []byte("identity/")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("identity store closed")

// BadgerStore implements IdentityStore on Badger v3.
type BadgerStore struct {
	db     *badger.DB
	cfg    BadgerConfig
	sealer *adaptive.Sealer // nil stores records in the clear
	logger *slog.Logger
	closed atomic.Bool

	lastGCTime atomic.Int64 // Unix milliseconds
	gcRuns     atomic.Uint64

	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsGCRuns       prometheus.Counter

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewBadgerStore opens (or creates) a badger identity store.
func NewBadgerStore(cfg BadgerConfig, logger *slog.Logger) (*BadgerStore, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var sealer *adaptive.Sealer
	if len(cfg.EncryptionKey) > 0 {
		s, err := adaptive.New(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("badger: record sealing: %w", err)
		}
		sealer = s
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites && !cfg.InMemory
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		cfg:    cfg,
		sealer: sealer,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if cfg.InMemory || cfg.GCInterval <= 0 {
		close(s.doneCh)
	} else {
		go s.gcLoop()
	}

	logger.Info("badger identity store started",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"sealed", sealer != nil)

	return s, nil
}

func identityKey(identity uint64) []byte {
	key := make([]byte, len(identityPrefix)+8)
	copy(key, identityPrefix)
	binary.BigEndian.PutUint64(key[len(identityPrefix):], identity)
	return key
}

// Resolve implements IdentityResolver.
func (s *BadgerStore) Resolve(ctx context.Context, identity uint64) (*domain.IdentityRecord, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := identityKey(identity)
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrUnknownIdentity
		}
		return nil, domain.ErrStorageError.WithCause(err)
	}
	return s.decode(identity, key, value)
}

// Put implements IdentityStore.
func (s *BadgerStore) Put(ctx context.Context, rec *domain.IdentityRecord, overwrite bool) error {
	if s.closed.Load() {
		return ErrClosed
	}
	key := identityKey(rec.Identity)
	value, err := s.encode(key, rec)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if !overwrite {
			_, err := txn.Get(key)
			if err == nil {
				return domain.ErrIdentityConflict.WithDetails(fmt.Sprintf("identity %d", rec.Identity))
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return txn.Set(key, value)
	})
}

// Delete implements IdentityStore.
func (s *BadgerStore) Delete(ctx context.Context, identity uint64) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(identityKey(identity))
	})
}

// Scan implements IdentityStore.
func (s *BadgerStore) Scan(ctx context.Context, fn func(rec *domain.IdentityRecord) bool) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = identityPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := item.KeyCopy(nil)
			if len(key) != len(identityPrefix)+8 {
				continue
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := s.decode(binary.BigEndian.Uint64(key[len(identityPrefix):]), key, value)
			if err != nil {
				return err
			}
			if !fn(rec) {
				break
			}
		}
		return nil
	})
}

func (s *BadgerStore) encode(key []byte, rec *domain.IdentityRecord) ([]byte, error) {
	value, err := rec.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if s.sealer == nil {
		return value, nil
	}
	return s.sealer.Seal(value, key)
}

func (s *BadgerStore) decode(identity uint64, key, value []byte) (*domain.IdentityRecord, error) {
	if s.sealer != nil {
		plain, err := s.sealer.Open(value, key)
		if err != nil {
			return nil, domain.ErrStorageError.WithDetails("unseal record").WithCause(err)
		}
		value = plain
	}
	rec := &domain.IdentityRecord{Identity: identity}
	if err := rec.UnmarshalBinary(value); err != nil {
		return nil, err
	}
	return rec, nil
}

// GC runs value log garbage collection until nothing is left to rewrite.
func (s *BadgerStore) GC() error {
	for {
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return fmt.Errorf("gc: %w", err)
		}
		s.gcRuns.Add(1)
		if s.metricsGCRuns != nil {
			s.metricsGCRuns.Inc()
		}
	}
	s.lastGCTime.Store(time.Now().UnixMilli())
	return nil
}

// Close stops background work and closes the database.
func (s *BadgerStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Info("shutting down badger identity store")

	close(s.stopCh)
	<-s.doneCh

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// RegisterMetrics registers store metrics with Prometheus and returns the
// store for chaining.
func (s *BadgerStore) RegisterMetrics(registry prometheus.Registerer) *BadgerStore {
	s.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "authmesh",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	s.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "authmesh",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	s.metricsGCRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "authmesh",
		Subsystem: "badger",
		Name:      "gc_rewrites_total",
		Help:      "Value log files rewritten by garbage collection",
	})
	registry.MustRegister(s.metricsLSMSize, s.metricsValueLogSize, s.metricsGCRuns)
	s.updateSizeMetrics()
	return s
}

func (s *BadgerStore) updateSizeMetrics() {
	if s.metricsLSMSize == nil {
		return
	}
	lsm, vlog := s.db.Size()
	s.metricsLSMSize.Set(float64(lsm))
	s.metricsValueLogSize.Set(float64(vlog))
}

func (s *BadgerStore) gcLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.GC(); err != nil {
				s.logger.Error("auto gc failed", "error", err)
			}
			s.updateSizeMetrics()
		case <-s.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
