// Package sign appends and checks ed25519 signatures on frames.
//
// A signed frame carries the signature as the last SignatureSize bytes of
// its payload. The signature covers the wire image that precedes it, with
// the length field already counting the signature.
package sign

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yndnr/authmesh-go/pkg/frame"
)

// SignatureSize is the number of bytes a signature adds to the payload.
const SignatureSize = ed25519.SignatureSize

var (
	// ErrNoRoom is returned when the payload cannot fit a signature.
	ErrNoRoom = errors.New("sign: no room for signature")
	// ErrBadSignature is returned when verification fails.
	ErrBadSignature = errors.New("sign: bad signature")
)

// Ed25519Signer signs frames with a fixed private key.
type Ed25519Signer struct {
	key ed25519.PrivateKey
}

// NewEd25519Signer wraps a private key.
func NewEd25519Signer(key ed25519.PrivateKey) (*Ed25519Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("ed25519 private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	return &Ed25519Signer{key: key}, nil
}

// PublicKey returns the verification key.
func (s *Ed25519Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Sign appends a signature to f's payload. On failure f is unchanged.
func (s *Ed25519Signer) Sign(f *frame.Frame) error {
	n := f.Size()
	if n+SignatureSize > frame.MTU {
		return ErrNoRoom
	}
	if !f.Truncate(n + SignatureSize) {
		return ErrNoRoom
	}
	sig := ed25519.Sign(s.key, f.Buffer()[:n])
	copy(f.Buffer()[n:], sig)
	return nil
}

// Verify checks the trailing signature of f against pub and strips it on
// success.
func Verify(pub ed25519.PublicKey, f *frame.Frame) error {
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	if !f.Validate() || f.PayloadLength() < SignatureSize {
		return ErrBadSignature
	}
	n := f.Size() - SignatureSize
	buf := f.Buffer()
	if !ed25519.Verify(pub, buf[:n], buf[n:f.Size()]) {
		return ErrBadSignature
	}
	f.Truncate(n)
	return nil
}

// GenerateKey returns a new key pair.
func GenerateKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// WriteKeyFile stores the private key seed as hex.
func WriteKeyFile(path string, key ed25519.PrivateKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(key.Seed()) + "\n"); err != nil {
		return err
	}
	return file.Sync()
}

// LoadKeyFile reads a private key written by WriteKeyFile.
func LoadKeyFile(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode key file %s: %w", path, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("key file %s: seed must be %d bytes, got %d", path, ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// EncodePublicKey renders a public key for display and configuration.
func EncodePublicKey(pub ed25519.PublicKey) string {
	return "ed25519:" + hex.EncodeToString(pub)
}

// DecodePublicKey parses the output of EncodePublicKey.
func DecodePublicKey(s string) (ed25519.PublicKey, error) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(s), "ed25519:")
	if !ok {
		return nil, errors.New("public key must start with ed25519:")
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(b))
	}
	return ed25519.PublicKey(b), nil
}
