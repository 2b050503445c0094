package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/semaphore"

	"github.com/yndnr/authmesh-go/internal/core/domain"
)

// Result columns of the identity query.
const (
	colSalt     = 1
	colVerifier = 2
	colGroup    = 3
)

// PostgresResolver resolves identities with a configurable SQL query.
//
// It keeps a single lazily established connection. A failed query closes
// and discards that connection; the next lookup reconnects. Lookups are
// serialized on the connection.
type PostgresResolver struct {
	cfg    PostgresConfig
	pgcfg  *pgx.ConnConfig
	logger *slog.Logger

	// slot serializes use of conn; waiting for it honours the lookup
	// context.
	slot *semaphore.Weighted
	conn *pgx.Conn
}

// NewPostgresResolver validates the configuration. No connection is made
// until the first lookup.
func NewPostgresResolver(cfg PostgresConfig, logger *slog.Logger) (*PostgresResolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnInfo == "" {
		return nil, domain.ErrMissingArgument.WithDetails("postgres conn_info")
	}
	if cfg.Query == "" {
		cfg.Query = DefaultPostgresQuery
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	pgcfg, err := pgx.ParseConfig(cfg.ConnInfo)
	if err != nil {
		return nil, domain.ErrInvalidArgument.WithDetails("postgres conn_info").WithCause(err)
	}
	pgcfg.ConnectTimeout = cfg.ConnectTimeout
	return &PostgresResolver{cfg: cfg, pgcfg: pgcfg, logger: logger, slot: semaphore.NewWeighted(1)}, nil
}

// Resolve implements IdentityResolver.
func (p *PostgresResolver) Resolve(ctx context.Context, identity uint64) (*domain.IdentityRecord, error) {
	if err := p.slot.Acquire(ctx, 1); err != nil {
		return nil, domain.ErrStorageError.WithDetails("busy").WithCause(err)
	}
	defer p.slot.Release(1)

	conn, err := p.connection(ctx)
	if err != nil {
		return nil, domain.ErrStorageError.WithDetails("connect").WithCause(err)
	}

	rows, err := conn.Query(ctx, p.cfg.Query, pgx.QueryExecModeSimpleProtocol, strconv.FormatUint(identity, 10))
	if err != nil {
		p.discard(err)
		return nil, domain.ErrStorageError.WithDetails("query").WithCause(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			p.discard(err)
			return nil, domain.ErrStorageError.WithDetails("query").WithCause(err)
		}
		return nil, domain.ErrUnknownIdentity
	}
	values, err := rows.Values()
	if err != nil {
		p.discard(err)
		return nil, domain.ErrStorageError.WithDetails("decode row").WithCause(err)
	}
	return recordFromRow(identity, values)
}

// connection returns the live connection, dialing when there is none.
func (p *PostgresResolver) connection(ctx context.Context) (*pgx.Conn, error) {
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn, nil
	}
	p.conn = nil
	conn, err := pgx.ConnectConfig(ctx, p.pgcfg)
	if err != nil {
		p.logger.Debug("postgres connect failed", "error", err)
		return nil, err
	}
	p.conn = conn
	return conn, nil
}

// discard drops the connection after a failure so the next lookup starts
// clean.
func (p *PostgresResolver) discard(cause error) {
	var pgErr *pgconn.PgError
	if errors.As(cause, &pgErr) {
		p.logger.Debug("postgres query failed", "code", pgErr.Code, "message", pgErr.Message)
	} else {
		p.logger.Debug("postgres query failed", "error", cause)
	}
	if p.conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = p.conn.Close(ctx)
	p.conn = nil
}

// Connected reports whether a connection is currently held.
func (p *PostgresResolver) Connected() bool {
	_ = p.slot.Acquire(context.Background(), 1)
	defer p.slot.Release(1)
	return p.conn != nil && !p.conn.IsClosed()
}

// Close closes the held connection, if any.
func (p *PostgresResolver) Close() error {
	_ = p.slot.Acquire(context.Background(), 1)
	defer p.slot.Release(1)
	if p.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.conn.Close(ctx)
	p.conn = nil
	return err
}

// recordFromRow builds a record from (identity, salt, verifier[, group]).
// A missing or unusable group column yields domain.GroupUnspecified.
func recordFromRow(identity uint64, values []any) (*domain.IdentityRecord, error) {
	if len(values) <= colVerifier {
		return nil, domain.ErrIdentityValidation.WithDetails(fmt.Sprintf("query returned %d columns", len(values)))
	}
	rec := &domain.IdentityRecord{
		Identity: identity,
		Salt:     columnBytes(values[colSalt]),
		Verifier: columnBytes(values[colVerifier]),
		Group:    domain.GroupUnspecified,
	}
	if len(values) > colGroup {
		if g, ok := columnGroup(values[colGroup]); ok {
			rec.Group = g
		}
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func columnBytes(v any) []byte {
	switch b := v.(type) {
	case []byte:
		return append([]byte(nil), b...)
	case string:
		return []byte(b)
	default:
		return nil
	}
}

func columnGroup(v any) (uint32, bool) {
	var n int64
	switch g := v.(type) {
	case int16:
		n = int64(g)
	case int32:
		n = int64(g)
	case int64:
		n = g
	default:
		return 0, false
	}
	if n < 0 || n > int64(domain.MaxGroup) {
		return 0, false
	}
	return uint32(n), true
}
