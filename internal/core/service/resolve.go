package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/pkg/crypto/srp"
	"github.com/yndnr/authmesh-go/pkg/frame"
)

// Lookup is a finished identity lookup. Lookups are delivered on
// Completions and must be handed back to Complete on the dispatch
// goroutine.
type Lookup struct {
	Origin   uint64
	Identity uint64
	Elapsed  time.Duration

	ticket uint64
	record *domain.IdentityRecord
	err    error
}

// Err returns the lookup error, if any.
func (l *Lookup) Err() error { return l.err }

// Completions delivers finished lookups.
func (d *Dispatcher) Completions() <-chan *Lookup {
	return d.completions
}

// startLookup parks f in a pending entry and resolves its identity on a
// worker. The caller holds one unit of pool.
func (d *Dispatcher) startLookup(f *frame.Frame, pool *semaphore.Weighted) {
	d.nextTicket++
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	e := &entry{
		state:  entryPending,
		ticket: d.nextTicket,
		cancel: cancel,
		parked: f,
	}
	d.sessions.insert(f.Origin(), e)

	l := &Lookup{Origin: f.Origin(), Identity: f.Source(), ticket: e.ticket}
	d.wg.Add(1)
	go d.resolve(ctx, cancel, pool, l)
}

func (d *Dispatcher) resolve(ctx context.Context, cancel context.CancelFunc, pool *semaphore.Weighted, l *Lookup) {
	defer d.wg.Done()
	defer pool.Release(1)
	defer cancel()

	start := time.Now()
	rec, err := d.resolver.Resolve(ctx, l.Identity)
	if err == nil && rec == nil {
		err = domain.ErrUnknownIdentity
	}
	l.record, l.err, l.Elapsed = rec, err, time.Since(start)

	select {
	case d.completions <- l:
	case <-d.done:
	}
}

// Complete applies a finished lookup. It returns the parked frame, now
// rewritten into the identification response, or false when the lookup
// is stale: its origin was stopped, or stopped and reused, meanwhile.
func (d *Dispatcher) Complete(l *Lookup) (*frame.Frame, bool) {
	e, ok := d.sessions.get(l.Origin)
	if !ok || e.state != entryPending || e.ticket != l.ticket {
		d.metrics.RecordLookup("stale")
		return nil, false
	}
	f := e.parked
	e.cancel()

	d.metrics.ObserveLookupDuration(l.Elapsed.Seconds())
	var (
		result string
		err    error
	)
	if l.err != nil {
		d.metrics.RecordLookup("failed")
		result, err = d.identifyFailed(f, lookupError(l.err))
	} else {
		d.metrics.RecordLookup("ok")
		result, err = d.establish(f, e, l)
	}
	d.record(KindIdentify, f, result, err)
	d.publish()
	return f, true
}

// establish runs the host side of the exchange against the resolved
// record and answers with the real challenge.
func (d *Dispatcher) establish(f *frame.Frame, e *entry, l *Lookup) (string, error) {
	rec := l.record
	auth := srp.NewHost()
	auth.SetGroup(rec.Group)
	if err := auth.Identify(l.Identity, rec.Salt, rec.Verifier, f.Payload()); err != nil {
		auth.Destroy()
		return d.identifyFailed(f, domain.ErrProtocolViolation.WithCause(err))
	}

	d.sessions.promote(e, auth)
	if !d.writeChallenge(f, auth.Salt(), auth.Nonce()) {
		d.sessions.block(f.Origin())
		d.reject(f)
		return resultRejected, domain.ErrMalformedRequest.WithDetails("challenge does not fit a frame")
	}
	d.logger.Debug("identity challenged",
		slog.Uint64("origin", f.Origin()),
		slog.Uint64("identity", l.Identity),
		slog.Duration("lookup", l.Elapsed),
	)
	return resultAccepted, nil
}

func lookupError(err error) error {
	switch {
	case domain.IsDomainError(err, ""):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrLookupUnavailable.WithDetails("lookup timed out")
	default:
		return domain.ErrLookupUnavailable.WithCause(err)
	}
}
