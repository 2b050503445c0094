package service

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/internal/storage"
	"github.com/yndnr/authmesh-go/internal/telemetry/logger"
	"github.com/yndnr/authmesh-go/internal/telemetry/metric"
	"github.com/yndnr/authmesh-go/pkg/frame"
)

// Signer signs a frame on behalf of an authenticated peer.
type Signer interface {
	Sign(f *frame.Frame) error
}

// Config holds the dispatcher settings that can change at runtime.
type Config struct {
	// UID is the hub's own identifier; non-authentication traffic is
	// routed to it.
	UID uint64

	// Pepper keys the fake salts handed out for failed identifications.
	// Empty disables faking: failures get a plain rejection.
	Pepper []byte

	// Banned identities always take the failure path.
	Banned []uint64

	// LookupTimeout bounds one identity lookup (default: 2s).
	LookupTimeout time.Duration

	// LookupWorkers bounds concurrent identity lookups (default: 8).
	LookupWorkers int

	// LookupRate is the sustained lookup budget per second; zero or less
	// means unlimited.
	LookupRate float64

	// LookupBurst is the lookup budget burst (default: LookupWorkers).
	LookupBurst int
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		LookupTimeout: 2 * time.Second,
		LookupWorkers: 8,
	}
}

// Dispatcher runs the authentication exchange for every connection.
//
// Route, Complete, Stop, Cleanup and Configure must be called from one
// goroutine. Stats may be called from any goroutine.
type Dispatcher struct {
	uid      uint64
	resolver storage.IdentityResolver
	signer   Signer
	logger   *slog.Logger
	metrics  *metric.Registry

	sessions *sessionIndex
	faker    *faker
	banned   map[uint64]struct{}
	limiter  *rate.Limiter
	pool     *semaphore.Weighted
	workers  int
	timeout  time.Duration

	completions chan *Lookup
	done        chan struct{}
	wg          sync.WaitGroup
	nextTicket  uint64
	closed      bool

	statsMu sync.Mutex
	stats   metric.SessionStats
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metric.Registry) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New creates a dispatcher. signer may be nil, in which case every
// registration is rejected.
func New(resolver storage.IdentityResolver, signer Signer, cfg Config, opts ...Option) (*Dispatcher, error) {
	if resolver == nil {
		return nil, domain.ErrMissingArgument.WithDetails("identity resolver is required")
	}
	d := &Dispatcher{
		resolver: resolver,
		signer:   signer,
		sessions: newSessionIndex(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logger.OrDefault(d.logger)
	d.Configure(cfg)

	// Room for one result per possible worker keeps workers from blocking
	// on a busy loop in the common case.
	d.completions = make(chan *Lookup, max(d.workers, 64))
	d.publish()
	return d, nil
}

// Configure applies cfg. Lookups already in flight keep the pool and
// timeout they started with.
func (d *Dispatcher) Configure(cfg Config) {
	def := DefaultConfig()
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = def.LookupTimeout
	}
	if cfg.LookupWorkers <= 0 {
		cfg.LookupWorkers = def.LookupWorkers
	}
	if cfg.LookupBurst <= 0 {
		cfg.LookupBurst = cfg.LookupWorkers
	}

	d.uid = cfg.UID
	d.timeout = cfg.LookupTimeout

	d.faker.destroy()
	d.faker = newFaker(cfg.Pepper)

	d.banned = make(map[uint64]struct{}, len(cfg.Banned))
	for _, id := range cfg.Banned {
		d.banned[id] = struct{}{}
	}

	limit := rate.Inf
	if cfg.LookupRate > 0 {
		limit = rate.Limit(cfg.LookupRate)
	}
	if d.limiter == nil {
		d.limiter = rate.NewLimiter(limit, cfg.LookupBurst)
	} else {
		d.limiter.SetLimit(limit)
		d.limiter.SetBurst(cfg.LookupBurst)
	}

	if d.pool == nil || d.workers != cfg.LookupWorkers {
		d.pool = semaphore.NewWeighted(int64(cfg.LookupWorkers))
		d.workers = cfg.LookupWorkers
	}

	d.logger.Debug("authentication settings",
		slog.Uint64("uid", cfg.UID),
		slog.String("pepper", string(cfg.Pepper)),
		slog.Int("banned", len(cfg.Banned)),
		slog.Duration("lookup_timeout", cfg.LookupTimeout),
		slog.Int("lookup_workers", cfg.LookupWorkers),
		slog.Float64("lookup_rate", cfg.LookupRate),
		slog.Int("lookup_burst", cfg.LookupBurst),
	)
	if !d.faker.enabled() {
		d.logger.Warn("no pepper configured: unknown identities are rejected instead of challenged")
	}
}

// Route handles one inbound frame. For OutcomeReply the frame has been
// rewritten in place and its NextHop is the origin; for OutcomeForward
// NextHop is the hub itself; for OutcomePending the frame is returned
// later by Complete.
func (d *Dispatcher) Route(f *frame.Frame) Outcome {
	kind := Classify(f)
	var (
		outcome = OutcomeReply
		result  string
		err     error
	)
	switch kind {
	case KindIdentify:
		outcome, result, err = d.identify(f)
	case KindAuthenticate:
		result, err = d.authenticate(f)
	case KindRegister:
		result, err = d.register(f)
	default:
		f.SetNextHop(d.uid)
		return OutcomeForward
	}
	d.record(kind, f, result, err)
	d.publish()
	return outcome
}

const (
	resultAccepted = "accepted"
	resultRejected = "rejected"
	resultFaked    = "faked"
	resultPending  = "pending"
)

func (d *Dispatcher) identify(f *frame.Frame) (Outcome, string, error) {
	origin, identity := f.Origin(), f.Source()

	switch {
	case d.closed:
		d.reject(f)
		return OutcomeReply, resultRejected, domain.ErrServiceUnavailable
	case f.PayloadLength() == 0:
		d.reject(f)
		return OutcomeReply, resultRejected, domain.ErrMalformedRequest.WithDetails("empty nonce")
	case d.sessions.contains(origin):
		d.reject(f)
		return OutcomeReply, resultRejected, domain.ErrDuplicateAttempt
	case d.isBanned(identity):
		result, err := d.identifyFailed(f, domain.ErrIdentityBanned)
		return OutcomeReply, result, err
	case !d.limiter.Allow():
		d.metrics.RecordLookup("rate_limited")
		result, err := d.identifyFailed(f, domain.ErrLookupUnavailable.WithDetails("lookup budget exhausted"))
		return OutcomeReply, result, err
	}

	pool := d.pool
	if !pool.TryAcquire(1) {
		d.metrics.RecordLookup("saturated")
		result, err := d.identifyFailed(f, domain.ErrLookupUnavailable.WithDetails("lookup workers busy"))
		return OutcomeReply, result, err
	}
	d.startLookup(f, pool)
	return OutcomePending, resultPending, nil
}

// identifyFailed blocks the origin and answers with a fake challenge, or
// rejects when faking is unavailable.
func (d *Dispatcher) identifyFailed(f *frame.Frame, cause error) (string, error) {
	d.sessions.block(f.Origin())
	if !d.faker.enabled() {
		d.reject(f)
		return resultRejected, cause
	}
	salt, nonce, err := d.faker.challenge(f.Source())
	if err != nil || !d.writeChallenge(f, salt, nonce) {
		d.reject(f)
		return resultRejected, cause
	}
	return resultFaked, cause
}

func (d *Dispatcher) authenticate(f *frame.Frame) (string, error) {
	origin := f.Origin()
	e, ok := d.sessions.get(origin)
	if !ok || e.state != entryLive {
		d.reject(f)
		return resultRejected, domain.ErrProtocolViolation.WithDetails("no identification in progress")
	}

	var proof []byte
	ok = e.auth.AuthenticateUser(f.Payload())
	if ok {
		proof, ok = e.auth.HostProof()
	}
	if !ok || len(proof) == 0 || len(proof) >= frame.PayloadSize {
		d.sessions.block(origin)
		d.reject(f)
		return resultRejected, domain.ErrProtocolViolation.WithDetails("proof verification failed")
	}

	f.SetPayload(proof)
	d.accept(f)
	return resultAccepted, nil
}

func (d *Dispatcher) register(f *frame.Frame) (string, error) {
	e, ok := d.sessions.get(f.Origin())
	if !ok || e.state != entryLive || !e.auth.IsAuthenticated() {
		d.reject(f)
		return resultRejected, domain.ErrProtocolViolation.WithDetails("not authenticated")
	}
	if d.signer == nil {
		d.reject(f)
		return resultRejected, domain.ErrSigningFailure.WithDetails("no signing key")
	}

	f.SetSource(e.auth.Identity())
	f.SetSession(uint8(e.auth.Group()))
	if err := d.signer.Sign(f); err != nil {
		d.reject(f)
		return resultRejected, domain.ErrSigningFailure.WithCause(err)
	}
	f.SetNextHop(f.Origin())
	return resultAccepted, nil
}

// writeChallenge stores [u16 saltLen][u16 nonceLen][salt][nonce] and
// accepts the frame.
func (d *Dispatcher) writeChallenge(f *frame.Frame, salt, nonce []byte) bool {
	n := 4 + len(salt) + len(nonce)
	if len(salt) == 0 || len(nonce) == 0 || n > frame.PayloadSize {
		return false
	}
	f.SetData16(0, uint16(len(salt)))
	f.SetData16(2, uint16(len(nonce)))
	f.SetBytes(4, salt)
	f.SetBytes(4+len(salt), nonce)
	f.Truncate(frame.HeaderSize + n)
	d.accept(f)
	return true
}

func (d *Dispatcher) accept(f *frame.Frame) {
	f.SetSource(0)
	f.SetDestination(0)
	f.SetStatus(frame.StatusAccepted)
	f.SetNextHop(f.Origin())
}

// reject turns f into a header-only rejection addressed to its origin.
func (d *Dispatcher) reject(f *frame.Frame) {
	f.SetSource(0)
	f.SetDestination(0)
	f.Truncate(frame.HeaderSize)
	f.SetStatus(frame.StatusRejected)
	f.SetNextHop(f.Origin())
}

func (d *Dispatcher) isBanned(identity uint64) bool {
	_, ok := d.banned[identity]
	return ok
}

// Stop forgets origin, typically because its connection closed. An
// in-flight lookup is cancelled and its result discarded.
func (d *Dispatcher) Stop(origin uint64) bool {
	ok := d.sessions.remove(origin)
	if ok {
		d.publish()
	}
	return ok
}

// Cleanup releases every entry, cancels all lookups and waits for the
// lookup workers to exit. The dispatcher rejects identifications
// afterwards.
func (d *Dispatcher) Cleanup() {
	if d.closed {
		return
	}
	d.closed = true
	d.sessions.clear()
	close(d.done)
	d.wg.Wait()
	d.faker.destroy()
	d.publish()
}

// Stats returns the latest session index statistics.
func (d *Dispatcher) Stats() metric.SessionStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

func (d *Dispatcher) publish() {
	s := d.sessions.stats()
	d.statsMu.Lock()
	d.stats = s
	d.statsMu.Unlock()
}

func (d *Dispatcher) record(kind RequestKind, f *frame.Frame, result string, err error) {
	d.metrics.RecordRequest(kind.String(), result)
	if err != nil {
		d.logger.Debug("request refused",
			slog.String("kind", kind.String()),
			slog.Uint64("origin", f.Origin()),
			slog.String("result", result),
			slog.String("error", err.Error()),
		)
	}
}
