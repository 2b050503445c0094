package srp

import (
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"math/big"

	"golang.org/x/crypto/hkdf"
)

// GenerateSalt returns SaltSize random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("srp: generate salt: %w", err)
	}
	return salt, nil
}

// GenerateVerifier computes v = g^x mod N for the identity's password.
func GenerateVerifier(identity uint64, password, salt []byte) ([]byte, error) {
	if len(password) == 0 || len(salt) == 0 {
		return nil, ErrInvalidParameter
	}
	x := privateKey(identity, password, salt)
	v := new(big.Int).Exp(groupG, x, groupN)
	wipe(x)
	return v.Bytes(), nil
}

// FakeSalt derives a salt for an identity that has no record. The result is
// stable for a given pepper and identity and is min(n, SaltSize) bytes long;
// n <= 0 selects SaltSize.
func FakeSalt(identity uint64, pepper []byte, n int) ([]byte, error) {
	if len(pepper) == 0 {
		return nil, ErrInvalidParameter
	}
	if n <= 0 || n > SaltSize {
		n = SaltSize
	}
	kdf := hkdf.New(sha512.New, pepper, nil, identityBytes(identity))
	salt := make([]byte, n)
	if _, err := kdf.Read(salt); err != nil {
		return nil, fmt.Errorf("srp: derive salt: %w", err)
	}
	return salt, nil
}

// FakeNonce returns g^r mod N for a fresh random r, encoded like a real host
// nonce.
func FakeNonce() ([]byte, error) {
	r, err := randomSecret(rand.Reader)
	if err != nil {
		return nil, err
	}
	nonce := pad(new(big.Int).Exp(groupG, r, groupN))
	wipe(r)
	return nonce, nil
}
