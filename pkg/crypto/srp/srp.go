package srp

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
)

var (
	// ErrInvalidParameter is returned for empty or oversized inputs.
	ErrInvalidParameter = errors.New("srp: invalid parameter")
	// ErrInvalidNonce is returned when a public value is zero modulo N or
	// the derived scrambler is zero.
	ErrInvalidNonce = errors.New("srp: invalid nonce")
	// ErrIllegalState is returned when an operation does not fit the
	// authenticator's lifecycle.
	ErrIllegalState = errors.New("srp: illegal state")
)

// State is the lifecycle stage of an Authenticator.
type State int

const (
	StateCreated State = iota
	StateIdentified
	StateAuthenticated
	StateDiscarded
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateIdentified:
		return "identified"
	case StateAuthenticated:
		return "authenticated"
	case StateDiscarded:
		return "discarded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Authenticator holds one side of an SRP-6a exchange.
type Authenticator struct {
	host     bool
	state    State
	identity uint64
	group    uint32

	salt     []byte
	password []byte

	secret *big.Int // b for the host, a for the user
	v      *big.Int
	pubA   *big.Int
	pubB   *big.Int

	key []byte
	m1  []byte
	m2  []byte

	rand io.Reader
}

// NewHost creates a host-role authenticator.
func NewHost() *Authenticator {
	return &Authenticator{host: true, rand: rand.Reader}
}

// NewUser creates a user-role authenticator and generates its nonce A.
func NewUser(identity uint64, password []byte) (*Authenticator, error) {
	if len(password) == 0 {
		return nil, ErrInvalidParameter
	}
	a := &Authenticator{
		identity: identity,
		password: append([]byte(nil), password...),
		rand:     rand.Reader,
	}
	secret, err := randomSecret(a.rand)
	if err != nil {
		return nil, err
	}
	a.secret = secret
	a.pubA = new(big.Int).Exp(groupG, secret, groupN)
	return a, nil
}

// Identify loads the identity's record and the peer's nonce A and computes
// the host challenge B along with the expected proofs.
func (a *Authenticator) Identify(identity uint64, salt, verifier, nonce []byte) error {
	if !a.host || a.state != StateCreated {
		return ErrIllegalState
	}
	if len(salt) == 0 || len(verifier) == 0 || len(nonce) == 0 || len(nonce) > NonceSize {
		return ErrInvalidParameter
	}
	pubA := new(big.Int).SetBytes(nonce)
	if !validNonce(pubA) {
		return ErrInvalidNonce
	}

	v := new(big.Int).SetBytes(verifier)
	b, err := randomSecret(a.rand)
	if err != nil {
		return err
	}
	// B = k*v + g^b mod N
	pubB := new(big.Int).Mul(multiplier, v)
	pubB.Add(pubB, new(big.Int).Exp(groupG, b, groupN))
	pubB.Mod(pubB, groupN)

	u := scramble(pubA, pubB)
	if u.Sign() == 0 {
		wipe(b)
		return ErrInvalidNonce
	}

	// S = (A * v^u)^b mod N
	s := new(big.Int).Exp(v, u, groupN)
	s.Mul(s, pubA)
	s.Mod(s, groupN)
	s.Exp(s, b, groupN)

	a.identity = identity
	a.salt = append([]byte(nil), salt...)
	a.v = v
	a.secret = b
	a.pubA = pubA
	a.pubB = pubB
	a.key = hashOf(pad(s))
	a.m1 = clientProof(identity, a.salt, pubA, pubB, a.key)
	a.m2 = hostProof(pubA, a.m1, a.key)
	a.state = StateIdentified
	wipe(s)
	return nil
}

// AuthenticateUser checks the peer's proof M1. It succeeds at most once.
func (a *Authenticator) AuthenticateUser(proof []byte) bool {
	if !a.host || a.state != StateIdentified {
		return false
	}
	if subtle.ConstantTimeCompare(proof, a.m1) != 1 {
		return false
	}
	a.state = StateAuthenticated
	return true
}

// HostProof returns M2 once the peer has been authenticated.
func (a *Authenticator) HostProof() ([]byte, bool) {
	if !a.host || a.state != StateAuthenticated {
		return nil, false
	}
	return a.m2, true
}

// Challenge answers the host's salt and nonce B and returns M1.
func (a *Authenticator) Challenge(salt, nonce []byte) ([]byte, error) {
	if a.host || a.state != StateCreated {
		return nil, ErrIllegalState
	}
	if len(salt) == 0 || len(nonce) == 0 || len(nonce) > NonceSize {
		return nil, ErrInvalidParameter
	}
	pubB := new(big.Int).SetBytes(nonce)
	if !validNonce(pubB) {
		return nil, ErrInvalidNonce
	}
	u := scramble(a.pubA, pubB)
	if u.Sign() == 0 {
		return nil, ErrInvalidNonce
	}

	x := privateKey(a.identity, a.password, salt)
	// S = (B - k*g^x)^(a + u*x) mod N
	base := new(big.Int).Exp(groupG, x, groupN)
	base.Mul(base, multiplier)
	base.Sub(pubB, base)
	base.Mod(base, groupN)
	exp := new(big.Int).Mul(u, x)
	exp.Add(exp, a.secret)
	s := new(big.Int).Exp(base, exp, groupN)

	a.salt = append([]byte(nil), salt...)
	a.pubB = pubB
	a.key = hashOf(pad(s))
	a.m1 = clientProof(a.identity, a.salt, a.pubA, pubB, a.key)
	a.m2 = hostProof(a.pubA, a.m1, a.key)
	a.state = StateIdentified
	wipe(x)
	wipe(exp)
	wipe(s)
	return a.m1, nil
}

// VerifyHost checks the host's proof M2.
func (a *Authenticator) VerifyHost(proof []byte) bool {
	if a.host || a.state != StateIdentified {
		return false
	}
	if subtle.ConstantTimeCompare(proof, a.m2) != 1 {
		return false
	}
	a.state = StateAuthenticated
	return true
}

// Nonce returns the encoded public value this side sends: B for the host
// and A for the user. It is nil before the value exists.
func (a *Authenticator) Nonce() []byte {
	pub := a.pubB
	if !a.host {
		pub = a.pubA
	}
	if pub == nil || a.state == StateDiscarded {
		return nil
	}
	return pad(pub)
}

// Salt returns the salt in use.
func (a *Authenticator) Salt() []byte { return a.salt }

// SessionKey returns K once both proofs are settled.
func (a *Authenticator) SessionKey() ([]byte, bool) {
	if a.state != StateAuthenticated {
		return nil, false
	}
	return a.key, true
}

func (a *Authenticator) IsAuthenticated() bool { return a.state == StateAuthenticated }
func (a *Authenticator) IsHost() bool          { return a.host }
func (a *Authenticator) State() State          { return a.state }
func (a *Authenticator) Identity() uint64      { return a.identity }
func (a *Authenticator) Group() uint32         { return a.group }
func (a *Authenticator) SetGroup(g uint32)     { a.group = g }

// Destroy zeroes all secret material. The authenticator is unusable
// afterwards.
func (a *Authenticator) Destroy() {
	wipe(a.secret)
	wipe(a.v)
	wipeBytes(a.password)
	wipeBytes(a.key)
	wipeBytes(a.m1)
	wipeBytes(a.m2)
	wipeBytes(a.salt)
	a.secret, a.v, a.pubA, a.pubB = nil, nil, nil, nil
	a.password, a.key, a.m1, a.m2, a.salt = nil, nil, nil, nil, nil
	a.state = StateDiscarded
}

func randomSecret(r io.Reader) (*big.Int, error) {
	buf := make([]byte, secretSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("srp: read random: %w", err)
	}
	x := new(big.Int).SetBytes(buf)
	wipeBytes(buf)
	if x.Sign() == 0 {
		x.SetInt64(1)
	}
	return x, nil
}
