package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// CipherType identifies the cipher algorithm.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

// Wire tags prefixed to every sealed blob.
const (
	tagAESGCM   byte = 1
	tagChaCha20 byte = 2
)

const keyInfo = "authmesh record sealing v1"

var (
	// ErrEmptySecret is returned when no key material is supplied.
	ErrEmptySecret = errors.New("adaptive: empty secret")
	// ErrMalformed is returned for sealed data that cannot be parsed.
	ErrMalformed = errors.New("adaptive: malformed sealed data")
)

// Sealer encrypts small records with AEAD. It writes with its preferred
// cipher and opens data written by either supported cipher under the same
// secret.
type Sealer struct {
	preferred CipherType
	aesgcm    cipher.AEAD
	chacha    cipher.AEAD
}

// New derives a sealer from secret and picks the cipher best suited to the
// current hardware.
func New(secret []byte) (*Sealer, error) {
	return NewWithType(secret, Preferred())
}

// NewWithType derives a sealer that writes with cipherType.
func NewWithType(secret []byte, cipherType CipherType) (*Sealer, error) {
	if cipherType != CipherAESGCM && cipherType != CipherChaCha20 {
		return nil, fmt.Errorf("adaptive: unknown cipher type %q", cipherType)
	}
	key, err := deriveKey(secret)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	chacha, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	clear(key)

	return &Sealer{preferred: cipherType, aesgcm: gcm, chacha: chacha}, nil
}

// Preferred returns AES-GCM where the runtime has hardware AES support and
// ChaCha20-Poly1305 otherwise.
func Preferred() CipherType {
	switch runtime.GOARCH {
	case "amd64", "arm64", "s390x", "ppc64le":
		return CipherAESGCM
	default:
		return CipherChaCha20
	}
}

// Type returns the cipher used for sealing.
func (s *Sealer) Type() CipherType { return s.preferred }

// Seal encrypts plaintext bound to aad. Output layout is
// [tag][nonce][ciphertext+mac].
func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	tag, aead := s.writer()
	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(plaintext)+aead.Overhead())
	out[0] = tag
	if _, err := io.ReadFull(rand.Reader, out[1:]); err != nil {
		return nil, err
	}
	return aead.Seal(out, out[1:], plaintext, aad), nil
}

// Open decrypts data produced by Seal with the same secret and aad.
func (s *Sealer) Open(sealed, aad []byte) ([]byte, error) {
	if len(sealed) < 1 {
		return nil, ErrMalformed
	}
	var aead cipher.AEAD
	switch sealed[0] {
	case tagAESGCM:
		aead = s.aesgcm
	case tagChaCha20:
		aead = s.chacha
	default:
		return nil, ErrMalformed
	}
	body := sealed[1:]
	if len(body) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrMalformed
	}
	nonce := body[:aead.NonceSize()]
	return aead.Open(nil, nonce, body[aead.NonceSize():], aad)
}

// Overhead returns the number of bytes Seal adds to a plaintext.
func (s *Sealer) Overhead() int {
	_, aead := s.writer()
	return 1 + aead.NonceSize() + aead.Overhead()
}

func (s *Sealer) writer() (byte, cipher.AEAD) {
	if s.preferred == CipherChaCha20 {
		return tagChaCha20, s.chacha
	}
	return tagAESGCM, s.aesgcm
}

func deriveKey(secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, err
	}
	return key, nil
}
