package service

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/pkg/crypto/sign"
	"github.com/yndnr/authmesh-go/pkg/crypto/srp"
	"github.com/yndnr/authmesh-go/pkg/frame"
)

const (
	hubUID   = 1
	testPass = "correct horse battery staple"
)

var testPepper = []byte("0123456789abcdef-pepper")

// mockResolver serves records from a map. When gate is set, lookups wait
// for it to close or for their context to end.
type mockResolver struct {
	mu      sync.Mutex
	records map[uint64]*domain.IdentityRecord
	err     error
	gate    chan struct{}
	calls   int
}

func newMockResolver() *mockResolver {
	return &mockResolver{records: make(map[uint64]*domain.IdentityRecord)}
}

func (m *mockResolver) Resolve(ctx context.Context, identity uint64) (*domain.IdentityRecord, error) {
	m.mu.Lock()
	m.calls++
	rec, ok := m.records[identity]
	err, gate := m.err, m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrUnknownIdentity
	}
	return rec.Clone(), nil
}

func (m *mockResolver) enroll(t *testing.T, identity uint64, group uint32) {
	t.Helper()
	salt, err := srp.GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	v, err := srp.GenerateVerifier(identity, []byte(testPass), salt)
	if err != nil {
		t.Fatalf("GenerateVerifier() error = %v", err)
	}
	m.mu.Lock()
	m.records[identity] = &domain.IdentityRecord{Identity: identity, Salt: salt, Verifier: v, Group: group}
	m.mu.Unlock()
}

func (m *mockResolver) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type failingSigner struct{}

func (failingSigner) Sign(*frame.Frame) error { return errors.New("hsm offline") }

func newTestDispatcher(t *testing.T, r *mockResolver, signer Signer, cfg Config) *Dispatcher {
	t.Helper()
	cfg.UID = hubUID
	d, err := New(r, signer, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(d.Cleanup)
	return d
}

func newTestSigner(t *testing.T) (*sign.Ed25519Signer, ed25519.PublicKey) {
	t.Helper()
	pub, priv, err := sign.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	s, err := sign.NewEd25519Signer(priv)
	if err != nil {
		t.Fatalf("NewEd25519Signer() error = %v", err)
	}
	return s, pub
}

func request(origin uint64, cmd, qlf uint8, source uint64, payload []byte) *frame.Frame {
	f := frame.New(origin)
	f.SetSource(source)
	f.SetDestination(hubUID)
	f.SetSequence(7)
	f.SetContext(cmd, qlf, frame.StatusRequest)
	f.SetPayload(payload)
	return f
}

// pump waits for one finished lookup and applies it.
func pump(t *testing.T, d *Dispatcher) *frame.Frame {
	t.Helper()
	select {
	case l := <-d.Completions():
		f, ok := d.Complete(l)
		if !ok {
			t.Fatalf("Complete() reported a stale lookup for origin %d", l.Origin)
		}
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("no lookup completed")
		return nil
	}
}

// identify routes an identification request and returns the response.
func identify(t *testing.T, d *Dispatcher, origin, identity uint64, nonce []byte) *frame.Frame {
	t.Helper()
	f := request(origin, frame.CmdNull, frame.QlfIdentify, identity, nonce)
	if d.Route(f) == OutcomePending {
		return pump(t, d)
	}
	return f
}

func parseChallenge(t *testing.T, f *frame.Frame) (salt, nonce []byte) {
	t.Helper()
	saltLen, ok1 := f.Data16(0)
	nonceLen, ok2 := f.Data16(2)
	p := f.Payload()
	if !ok1 || !ok2 || len(p) != 4+int(saltLen)+int(nonceLen) {
		t.Fatalf("malformed challenge payload (%d bytes, salt %d, nonce %d)", len(p), saltLen, nonceLen)
	}
	return p[4 : 4+saltLen], p[4+saltLen:]
}

func assertAccepted(t *testing.T, f *frame.Frame, origin uint64) {
	t.Helper()
	if f.Status() != frame.StatusAccepted {
		t.Fatalf("Status() = %d, want ACCEPTED", f.Status())
	}
	if f.Source() != 0 || f.Destination() != 0 {
		t.Errorf("source/destination = %d/%d, want 0/0", f.Source(), f.Destination())
	}
	if f.NextHop() != origin {
		t.Errorf("NextHop() = %d, want origin %d", f.NextHop(), origin)
	}
	if !f.Validate() {
		t.Error("response length field does not match content")
	}
}

func assertRejected(t *testing.T, f *frame.Frame, origin uint64) {
	t.Helper()
	if f.Status() != frame.StatusRejected {
		t.Fatalf("Status() = %d, want REJECTED", f.Status())
	}
	if f.Source() != 0 || f.Destination() != 0 {
		t.Errorf("source/destination = %d/%d, want 0/0", f.Source(), f.Destination())
	}
	if f.Length() != frame.HeaderSize || f.PayloadLength() != 0 {
		t.Errorf("Length() = %d, want header only", f.Length())
	}
	if f.NextHop() != origin {
		t.Errorf("NextHop() = %d, want origin %d", f.NextHop(), origin)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		cmd    uint8
		qlf    uint8
		status uint8
		want   RequestKind
	}{
		{"identify", frame.CmdNull, frame.QlfIdentify, frame.StatusRequest, KindIdentify},
		{"authenticate", frame.CmdNull, frame.QlfAuthenticate, frame.StatusRequest, KindAuthenticate},
		{"register", frame.CmdBasic, frame.QlfRegister, frame.StatusRequest, KindRegister},
		{"identify response", frame.CmdNull, frame.QlfIdentify, frame.StatusAccepted, KindOther},
		{"register rejected", frame.CmdBasic, frame.QlfRegister, frame.StatusRejected, KindOther},
		{"describe", frame.CmdNull, frame.QlfDescribe, frame.StatusRequest, KindOther},
		{"get key", frame.CmdBasic, frame.QlfGetKey, frame.StatusRequest, KindOther},
		{"unknown command", 9, frame.QlfIdentify, frame.StatusRequest, KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := frame.New(1)
			f.SetContext(tt.cmd, tt.qlf, tt.status)
			if got := Classify(f); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_RequiresResolver(t *testing.T) {
	if _, err := New(nil, nil, DefaultConfig()); !errors.Is(err, domain.ErrMissingArgument) {
		t.Errorf("New(nil) error = %v, want ErrMissingArgument", err)
	}
}

func TestDispatcher_FullExchange(t *testing.T) {
	r := newMockResolver()
	r.enroll(t, 1001, 7)
	signer, pub := newTestSigner(t)
	d := newTestDispatcher(t, r, signer, Config{Pepper: testPepper})

	const origin = 55
	user, err := srp.NewUser(1001, []byte(testPass))
	if err != nil {
		t.Fatalf("NewUser() error = %v", err)
	}
	defer user.Destroy()

	f := identify(t, d, origin, 1001, user.Nonce())
	assertAccepted(t, f, origin)
	salt, nonce := parseChallenge(t, f)
	if len(salt) != srp.SaltSize || len(nonce) != srp.NonceSize {
		t.Errorf("challenge salt/nonce = %d/%d bytes, want %d/%d", len(salt), len(nonce), srp.SaltSize, srp.NonceSize)
	}

	m1, err := user.Challenge(salt, nonce)
	if err != nil {
		t.Fatalf("Challenge() error = %v", err)
	}
	f = request(origin, frame.CmdNull, frame.QlfAuthenticate, 0, m1)
	if got := d.Route(f); got != OutcomeReply {
		t.Fatalf("Route(authenticate) = %v, want reply", got)
	}
	assertAccepted(t, f, origin)
	if !user.VerifyHost(f.Payload()) {
		t.Fatal("host proof does not verify")
	}

	f = request(origin, frame.CmdBasic, frame.QlfRegister, 0, []byte("register me"))
	if got := d.Route(f); got != OutcomeReply {
		t.Fatalf("Route(register) = %v, want reply", got)
	}
	if f.NextHop() != origin {
		t.Errorf("NextHop() = %d, want origin", f.NextHop())
	}
	if f.Source() != 1001 {
		t.Errorf("Source() = %d, want identity 1001", f.Source())
	}
	if f.Session() != 7 {
		t.Errorf("Session() = %d, want group 7", f.Session())
	}
	if f.Status() != frame.StatusRequest {
		t.Errorf("Status() = %d, want unchanged", f.Status())
	}
	if err := sign.Verify(pub, f); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !bytes.Equal(f.Payload(), []byte("register me")) {
		t.Errorf("payload after Verify = %q", f.Payload())
	}

	// The authenticator stays so the peer may ask again.
	f = request(origin, frame.CmdBasic, frame.QlfRegister, 0, nil)
	d.Route(f)
	if f.Status() == frame.StatusRejected {
		t.Error("repeated registration rejected")
	}

	if s := d.Stats(); s.Live != 1 || s.Blocked != 0 || s.Pending != 0 {
		t.Errorf("Stats() = %+v, want one live entry", s)
	}
}

func TestDispatcher_SecondIdentifyRejected(t *testing.T) {
	nonce := func(t *testing.T) []byte {
		u, err := srp.NewUser(1, []byte("x"))
		if err != nil {
			t.Fatalf("NewUser() error = %v", err)
		}
		return u.Nonce()
	}

	t.Run("after success", func(t *testing.T) {
		r := newMockResolver()
		r.enroll(t, 1, 0)
		d := newTestDispatcher(t, r, nil, Config{})
		assertAccepted(t, identify(t, d, 9, 1, nonce(t)), 9)
		assertRejected(t, identify(t, d, 9, 1, nonce(t)), 9)
	})

	t.Run("after failure", func(t *testing.T) {
		d := newTestDispatcher(t, newMockResolver(), nil, Config{Pepper: testPepper})
		assertAccepted(t, identify(t, d, 9, 404, nonce(t)), 9)
		assertRejected(t, identify(t, d, 9, 404, nonce(t)), 9)
	})

	t.Run("while pending", func(t *testing.T) {
		r := newMockResolver()
		r.enroll(t, 1, 0)
		r.gate = make(chan struct{})
		d := newTestDispatcher(t, r, nil, Config{})

		first := request(9, frame.CmdNull, frame.QlfIdentify, 1, nonce(t))
		if got := d.Route(first); got != OutcomePending {
			t.Fatalf("Route() = %v, want pending", got)
		}
		second := request(9, frame.CmdNull, frame.QlfIdentify, 1, nonce(t))
		if got := d.Route(second); got != OutcomeReply {
			t.Fatalf("Route(second) = %v, want reply", got)
		}
		assertRejected(t, second, 9)

		close(r.gate)
		if f := pump(t, d); f != first {
			t.Error("Complete() returned a different frame than the parked one")
		}
		assertAccepted(t, first, 9)
		if r.callCount() != 1 {
			t.Errorf("resolver calls = %d, want 1", r.callCount())
		}
	})
}

func TestDispatcher_EmptyNonce(t *testing.T) {
	r := newMockResolver()
	d := newTestDispatcher(t, r, nil, Config{Pepper: testPepper})

	f := identify(t, d, 3, 1, nil)
	assertRejected(t, f, 3)
	if d.Stats().Blocked != 0 {
		t.Error("empty nonce blocked the origin")
	}
	if r.callCount() != 0 {
		t.Error("empty nonce triggered a lookup")
	}
}

func TestDispatcher_UnknownIdentityFaked(t *testing.T) {
	r := newMockResolver()
	r.enroll(t, 1, 0)
	d := newTestDispatcher(t, r, nil, Config{Pepper: testPepper})

	u, _ := srp.NewUser(1, []byte("x"))
	genuine := identify(t, d, 10, 1, u.Nonce())
	realSalt, realNonce := parseChallenge(t, genuine)

	f1 := identify(t, d, 11, 404, u.Nonce())
	assertAccepted(t, f1, 11)
	salt1, nonce1 := parseChallenge(t, f1)
	salt1 = append([]byte(nil), salt1...)
	nonce1 = append([]byte(nil), nonce1...)

	f2 := identify(t, d, 12, 404, u.Nonce())
	salt2, nonce2 := parseChallenge(t, f2)

	if !bytes.Equal(salt1, salt2) {
		t.Error("fake salt changed between requests")
	}
	if bytes.Equal(nonce1, nonce2) {
		t.Error("fake nonce repeated")
	}
	if len(salt1) > srp.SaltSize {
		t.Errorf("fake salt is %d bytes, want at most %d", len(salt1), srp.SaltSize)
	}
	if len(salt1) != len(realSalt) || len(nonce1) != len(realNonce) || f1.Length() != genuine.Length() {
		t.Errorf("fake layout %d/%d/%d differs from real %d/%d/%d",
			len(salt1), len(nonce1), f1.Length(), len(realSalt), len(realNonce), genuine.Length())
	}

	// The faked origin is blocked.
	f := request(11, frame.CmdNull, frame.QlfAuthenticate, 0, make([]byte, srp.ProofSize))
	d.Route(f)
	assertRejected(t, f, 11)

	if s := d.Stats(); s.Blocked != 2 || s.Live != 1 {
		t.Errorf("Stats() = %+v, want 2 blocked and 1 live", s)
	}
}

func TestDispatcher_ShortPepperFakeMatchesReal(t *testing.T) {
	for _, pepper := range []string{"s", "s3cret", "0123456789abcde"} {
		t.Run(pepper, func(t *testing.T) {
			r := newMockResolver()
			r.enroll(t, 1, 0)
			d := newTestDispatcher(t, r, nil, Config{Pepper: []byte(pepper)})

			u, _ := srp.NewUser(1, []byte("x"))
			genuine := identify(t, d, 10, 1, u.Nonce())
			realSalt, realNonce := parseChallenge(t, genuine)
			realSaltLen, realNonceLen := len(realSalt), len(realNonce)

			fake := identify(t, d, 11, 404, u.Nonce())
			assertAccepted(t, fake, 11)
			salt, nonce := parseChallenge(t, fake)
			if len(salt) != realSaltLen || len(nonce) != realNonceLen {
				t.Errorf("fake salt/nonce = %d/%d bytes, real = %d/%d", len(salt), len(nonce), realSaltLen, realNonceLen)
			}
			if fake.Length() != genuine.Length() {
				t.Errorf("fake frame length = %d, real = %d", fake.Length(), genuine.Length())
			}
		})
	}
}

func TestDispatcher_UnknownIdentityWithoutPepper(t *testing.T) {
	d := newTestDispatcher(t, newMockResolver(), nil, Config{})
	u, _ := srp.NewUser(404, []byte("x"))
	f := identify(t, d, 5, 404, u.Nonce())
	assertRejected(t, f, 5)
	if d.Stats().Blocked != 1 {
		t.Error("failed identification did not block the origin")
	}
}

func TestDispatcher_LookupFailure(t *testing.T) {
	r := newMockResolver()
	r.enroll(t, 1, 0)
	r.err = domain.ErrStorageError
	d := newTestDispatcher(t, r, nil, Config{Pepper: testPepper})

	u, _ := srp.NewUser(1, []byte("x"))
	f := identify(t, d, 5, 1, u.Nonce())
	assertAccepted(t, f, 5)
	parseChallenge(t, f)
	if d.Stats().Blocked != 1 {
		t.Error("backend failure did not block the origin")
	}
}

func TestDispatcher_InvalidClientNonce(t *testing.T) {
	r := newMockResolver()
	r.enroll(t, 1, 0)
	d := newTestDispatcher(t, r, nil, Config{})

	f := identify(t, d, 5, 1, make([]byte, srp.NonceSize))
	assertRejected(t, f, 5)
	if s := d.Stats(); s.Blocked != 1 || s.Live != 0 {
		t.Errorf("Stats() = %+v, want the origin blocked", s)
	}
}

func TestDispatcher_Banned(t *testing.T) {
	r := newMockResolver()
	r.enroll(t, 66, 0)
	d := newTestDispatcher(t, r, nil, Config{Pepper: testPepper, Banned: []uint64{66}})

	u, _ := srp.NewUser(66, []byte(testPass))
	f := identify(t, d, 5, 66, u.Nonce())
	assertAccepted(t, f, 5)
	if r.callCount() != 0 {
		t.Errorf("resolver calls = %d, want 0 for a banned identity", r.callCount())
	}
	if d.Stats().Blocked != 1 {
		t.Error("banned identity did not block the origin")
	}
}

func TestDispatcher_FlippedProofBlocks(t *testing.T) {
	r := newMockResolver()
	r.enroll(t, 1, 0)
	signer, _ := newTestSigner(t)
	d := newTestDispatcher(t, r, signer, Config{})

	user, _ := srp.NewUser(1, []byte(testPass))
	salt, nonce := parseChallenge(t, identify(t, d, 5, 1, user.Nonce()))
	m1, err := user.Challenge(salt, nonce)
	if err != nil {
		t.Fatalf("Challenge() error = %v", err)
	}

	bad := append([]byte(nil), m1...)
	bad[0] ^= 1
	f := request(5, frame.CmdNull, frame.QlfAuthenticate, 0, bad)
	d.Route(f)
	assertRejected(t, f, 5)

	if s := d.Stats(); s.Blocked != 1 || s.Live != 0 {
		t.Errorf("Stats() = %+v, want the origin blocked", s)
	}

	// Neither the correct proof nor a registration gets through now.
	f = request(5, frame.CmdNull, frame.QlfAuthenticate, 0, m1)
	d.Route(f)
	assertRejected(t, f, 5)
	f = request(5, frame.CmdBasic, frame.QlfRegister, 0, nil)
	d.Route(f)
	assertRejected(t, f, 5)
}

func TestDispatcher_RegisterRequiresAuthentication(t *testing.T) {
	r := newMockResolver()
	r.enroll(t, 1, 0)
	signer, _ := newTestSigner(t)
	d := newTestDispatcher(t, r, signer, Config{})

	f := request(5, frame.CmdBasic, frame.QlfRegister, 0, nil)
	d.Route(f)
	assertRejected(t, f, 5)

	user, _ := srp.NewUser(1, []byte(testPass))
	salt, nonce := parseChallenge(t, identify(t, d, 5, 1, user.Nonce()))

	f = request(5, frame.CmdBasic, frame.QlfRegister, 0, nil)
	d.Route(f)
	assertRejected(t, f, 5)

	// A premature registration does not block the exchange.
	m1, _ := user.Challenge(salt, nonce)
	f = request(5, frame.CmdNull, frame.QlfAuthenticate, 0, m1)
	d.Route(f)
	assertAccepted(t, f, 5)
}

func TestDispatcher_AuthenticateWithoutIdentify(t *testing.T) {
	d := newTestDispatcher(t, newMockResolver(), nil, Config{})
	f := request(5, frame.CmdNull, frame.QlfAuthenticate, 0, make([]byte, srp.ProofSize))
	d.Route(f)
	assertRejected(t, f, 5)
	if d.Stats().Blocked != 0 {
		t.Error("authenticate without an entry created one")
	}
}

func TestDispatcher_SigningFailure(t *testing.T) {
	for _, tc := range []struct {
		name   string
		signer Signer
	}{
		{"signer error", failingSigner{}},
		{"no signer", nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := newMockResolver()
			r.enroll(t, 1, 0)
			d := newTestDispatcher(t, r, tc.signer, Config{})

			user, _ := srp.NewUser(1, []byte(testPass))
			salt, nonce := parseChallenge(t, identify(t, d, 5, 1, user.Nonce()))
			m1, _ := user.Challenge(salt, nonce)
			d.Route(request(5, frame.CmdNull, frame.QlfAuthenticate, 0, m1))

			f := request(5, frame.CmdBasic, frame.QlfRegister, 0, []byte("x"))
			d.Route(f)
			assertRejected(t, f, 5)
		})
	}
}

func TestDispatcher_ForwardsOtherTraffic(t *testing.T) {
	d := newTestDispatcher(t, newMockResolver(), nil, Config{})
	for _, tc := range []struct {
		name   string
		cmd    uint8
		qlf    uint8
		status uint8
	}{
		{"get key", frame.CmdBasic, frame.QlfGetKey, frame.StatusRequest},
		{"identify response", frame.CmdNull, frame.QlfIdentify, frame.StatusAccepted},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := request(5, tc.cmd, tc.qlf, 77, []byte("data"))
			f.SetStatus(tc.status)
			before := append([]byte(nil), f.Bytes()...)

			if got := d.Route(f); got != OutcomeForward {
				t.Fatalf("Route() = %v, want forward", got)
			}
			if f.NextHop() != hubUID {
				t.Errorf("NextHop() = %d, want hub uid", f.NextHop())
			}
			if !bytes.Equal(f.Bytes(), before) {
				t.Error("forwarded frame was modified")
			}
		})
	}
}

func TestDispatcher_LookupBudget(t *testing.T) {
	r := newMockResolver()
	r.enroll(t, 1, 0)
	d := newTestDispatcher(t, r, nil, Config{LookupRate: 0.001, LookupBurst: 1})

	u, _ := srp.NewUser(1, []byte(testPass))
	assertAccepted(t, identify(t, d, 5, 1, u.Nonce()), 5)

	f := identify(t, d, 6, 1, u.Nonce())
	assertRejected(t, f, 6)
	if r.callCount() != 1 {
		t.Errorf("resolver calls = %d, want 1", r.callCount())
	}
	if d.Stats().Blocked != 1 {
		t.Error("exhausted budget did not block the origin")
	}
}

func TestDispatcher_WorkersSaturated(t *testing.T) {
	r := newMockResolver()
	r.enroll(t, 1, 0)
	r.gate = make(chan struct{})
	d := newTestDispatcher(t, r, nil, Config{LookupWorkers: 1})

	u, _ := srp.NewUser(1, []byte(testPass))
	first := request(5, frame.CmdNull, frame.QlfIdentify, 1, u.Nonce())
	if d.Route(first) != OutcomePending {
		t.Fatal("first identify not pending")
	}
	second := request(6, frame.CmdNull, frame.QlfIdentify, 1, u.Nonce())
	if d.Route(second) != OutcomeReply {
		t.Fatal("second identify not answered immediately")
	}
	assertRejected(t, second, 6)

	close(r.gate)
	assertAccepted(t, pump(t, d), 5)
}

func TestDispatcher_StopDiscardsLookup(t *testing.T) {
	r := newMockResolver()
	r.enroll(t, 1, 0)
	r.gate = make(chan struct{})
	d := newTestDispatcher(t, r, nil, Config{})
	u, _ := srp.NewUser(1, []byte(testPass))

	if d.Route(request(5, frame.CmdNull, frame.QlfIdentify, 1, u.Nonce())) != OutcomePending {
		t.Fatal("identify not pending")
	}
	if !d.Stop(5) {
		t.Fatal("Stop() found no entry")
	}
	if d.Stop(5) {
		t.Error("second Stop() found an entry")
	}

	var cancelled *Lookup
	select {
	case cancelled = <-d.Completions():
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled lookup never finished")
	}
	if !errors.Is(cancelled.Err(), context.Canceled) {
		t.Errorf("cancelled lookup error = %v, want context.Canceled", cancelled.Err())
	}

	// The origin is reused before the stale result is applied.
	reused := request(5, frame.CmdNull, frame.QlfIdentify, 1, u.Nonce())
	if d.Route(reused) != OutcomePending {
		t.Fatal("identify on reused origin not pending")
	}
	if _, ok := d.Complete(cancelled); ok {
		t.Fatal("stale lookup applied to the reused origin")
	}
	if d.Stats().Pending != 1 {
		t.Error("stale lookup disturbed the pending entry")
	}

	close(r.gate)
	if f := pump(t, d); f != reused {
		t.Error("Complete() returned the wrong frame")
	}
	assertAccepted(t, reused, 5)
}

func TestDispatcher_LookupTimeout(t *testing.T) {
	r := newMockResolver()
	r.enroll(t, 1, 0)
	r.gate = make(chan struct{})
	defer close(r.gate)
	d := newTestDispatcher(t, r, nil, Config{LookupTimeout: 20 * time.Millisecond})

	u, _ := srp.NewUser(1, []byte(testPass))
	f := identify(t, d, 5, 1, u.Nonce())
	assertRejected(t, f, 5)
	if d.Stats().Blocked != 1 {
		t.Error("timed out lookup did not block the origin")
	}
}

func TestDispatcher_Cleanup(t *testing.T) {
	r := newMockResolver()
	r.enroll(t, 1, 0)
	d := newTestDispatcher(t, r, nil, Config{})

	u, _ := srp.NewUser(1, []byte(testPass))
	identify(t, d, 5, 1, u.Nonce())

	r.mu.Lock()
	r.gate = make(chan struct{})
	r.mu.Unlock()
	if d.Route(request(6, frame.CmdNull, frame.QlfIdentify, 1, u.Nonce())) != OutcomePending {
		t.Fatal("identify not pending")
	}

	done := make(chan struct{})
	go func() {
		d.Cleanup()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Cleanup() did not return")
	}

	if s := d.Stats(); s.Live != 0 || s.Pending != 0 || s.Blocked != 0 {
		t.Errorf("Stats() after Cleanup = %+v", s)
	}
	f := request(7, frame.CmdNull, frame.QlfIdentify, 1, u.Nonce())
	if d.Route(f) != OutcomeReply {
		t.Fatal("identify after Cleanup not answered")
	}
	assertRejected(t, f, 7)
	d.Cleanup()
}

func TestDispatcher_Configure(t *testing.T) {
	d := newTestDispatcher(t, newMockResolver(), nil, Config{})
	u, _ := srp.NewUser(404, []byte("x"))

	assertRejected(t, identify(t, d, 5, 404, u.Nonce()), 5)

	d.Configure(Config{UID: 2, Pepper: testPepper})
	assertAccepted(t, identify(t, d, 6, 404, u.Nonce()), 6)

	f := request(7, frame.CmdBasic, frame.QlfGetKey, 0, nil)
	d.Route(f)
	if f.NextHop() != 2 {
		t.Errorf("NextHop() = %d, want reconfigured uid 2", f.NextHop())
	}
}

func TestDispatcher_ManyOrigins(t *testing.T) {
	d := newTestDispatcher(t, newMockResolver(), nil, Config{Pepper: testPepper, LookupWorkers: 4})
	u, _ := srp.NewUser(1, []byte("x"))

	const n = 200
	for origin := uint64(1); origin <= n; origin++ {
		assertAccepted(t, identify(t, d, origin, origin, u.Nonce()), origin)
	}
	if s := d.Stats(); s.Blocked != n || s.Capacity < n {
		t.Errorf("Stats() = %+v, want %d blocked", s, n)
	}
	for origin := uint64(1); origin <= n; origin++ {
		if !d.Stop(origin) {
			t.Fatalf("Stop(%d) found no entry", origin)
		}
	}
	if s := d.Stats(); s.Blocked != 0 {
		t.Errorf("Stats() after Stop = %+v", s)
	}
}
