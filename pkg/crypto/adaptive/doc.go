// Package adaptive seals small records for AuthMesh storage backends.
//
// A Sealer derives a 256-bit key from a configured secret with HKDF-SHA256
// and encrypts with one of two AEADs:
//
//   - AES-256-GCM: preferred when hardware AES support is available
//   - ChaCha20-Poly1305: fallback for other platforms
//
// Every sealed blob starts with a one-byte cipher tag, so data written on
// one platform opens on another as long as the secret is the same.
//
// Usage:
//
//	s, err := adaptive.New([]byte(cfg.Storage.EncryptionKey))
//	sealed, err := s.Seal(record, key)
//	record, err := s.Open(sealed, key)
package adaptive
