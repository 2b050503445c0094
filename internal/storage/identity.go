package storage

import (
	"context"
	"time"

	"github.com/yndnr/authmesh-go/internal/core/domain"
)

// IdentityResolver looks up the record of one identity.
//
// Not-found and backend failures both return an error; callers that must
// not leak which one happened treat them alike. Implementations must be
// safe for concurrent use.
type IdentityResolver interface {
	Resolve(ctx context.Context, identity uint64) (*domain.IdentityRecord, error)
}

// IdentityStore is a writable identity backend.
type IdentityStore interface {
	IdentityResolver

	// Put stores rec. Without overwrite it fails with
	// domain.ErrIdentityConflict when the identity is already enrolled.
	Put(ctx context.Context, rec *domain.IdentityRecord, overwrite bool) error

	// Delete removes an identity. Deleting a missing identity is not an error.
	Delete(ctx context.Context, identity uint64) error

	// Scan calls fn for every stored record. fn returns false to stop.
	Scan(ctx context.Context, fn func(rec *domain.IdentityRecord) bool) error

	// Close releases the backend.
	Close() error
}

// Backend names accepted by configuration.
const (
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
	BackendMemory   = "memory"
)

// BadgerConfig configures the badger identity store.
type BadgerConfig struct {
	// Dir is the storage directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps all data in memory (tests and ephemeral hubs).
	InMemory bool

	// EncryptionKey, when set, seals every record at rest.
	EncryptionKey []byte

	// GCInterval is the interval between value log GC runs.
	// Default: 10m
	GCInterval time.Duration

	// GCThreshold is the value log discard ratio that triggers a rewrite.
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 16MB
	CacheSize int64

	// SyncWrites enables fsync after each write.
	// Default: true (enrolment is rare and must survive a crash)
	SyncWrites bool
}

// DefaultBadgerConfig returns the default badger configuration.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{
		Dir:         dir,
		GCInterval:  10 * time.Minute,
		GCThreshold: 0.5,
		CacheSize:   16 << 20,
		SyncWrites:  true,
	}
}

// PostgresConfig configures the postgres identity resolver.
type PostgresConfig struct {
	// ConnInfo is a libpq connection string or URL.
	ConnInfo string

	// Query selects (identity, salt, verifier[, group]) for the identity
	// passed as $1. The first column is ignored.
	Query string

	// ConnectTimeout bounds connection establishment.
	// Default: 5s
	ConnectTimeout time.Duration
}

// DefaultPostgresQuery is used when no query is configured.
const DefaultPostgresQuery = "SELECT uid, salt, verifier, type FROM wh_identity WHERE uid = $1"
