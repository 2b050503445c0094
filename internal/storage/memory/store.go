package memory

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/internal/storage"
	"github.com/yndnr/authmesh-go/pkg/cmap"
)

// Store keeps identity records in a sharded concurrent map.
type Store struct {
	records *cmap.Map[uint64, *domain.IdentityRecord]
	closed  atomic.Bool
}

var _ storage.IdentityStore = (*Store)(nil)

// Option configures the Store.
type Option func(*options)

type options struct {
	shards int
}

// WithShardCount sets the number of map shards.
func WithShardCount(n int) Option {
	return func(o *options) { o.shards = n }
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	o := options{shards: cmap.DefaultShardCount}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store{
		records: cmap.New[uint64, *domain.IdentityRecord](cmap.Uint64, cmap.WithShardCount(o.shards)),
	}
}

// Resolve returns a copy of the stored record.
func (s *Store) Resolve(ctx context.Context, identity uint64) (*domain.IdentityRecord, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := s.records.Get(identity)
	if !ok {
		return nil, domain.ErrUnknownIdentity
	}
	return rec.Clone(), nil
}

// Put stores a copy of rec.
func (s *Store) Put(ctx context.Context, rec *domain.IdentityRecord, overwrite bool) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if overwrite {
		s.records.Set(rec.Identity, rec.Clone())
		return nil
	}
	if !s.records.SetIfAbsent(rec.Identity, rec.Clone()) {
		return domain.ErrIdentityConflict
	}
	return nil
}

// Delete removes an identity.
func (s *Store) Delete(ctx context.Context, identity uint64) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.records.Delete(identity)
	return nil
}

// Scan visits records in identity order.
func (s *Store) Scan(ctx context.Context, fn func(rec *domain.IdentityRecord) bool) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	recs := s.records.Values()
	slices.SortFunc(recs, func(a, b *domain.IdentityRecord) int {
		switch {
		case a.Identity < b.Identity:
			return -1
		case a.Identity > b.Identity:
			return 1
		}
		return 0
	})
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(rec.Clone()) {
			break
		}
	}
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	return s.records.Count()
}

// Close drops all records.
func (s *Store) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.records.Clear()
	}
	return nil
}
