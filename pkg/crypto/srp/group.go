package srp

import (
	"crypto/sha512"
	"math/big"
	"strconv"
	"strings"
)

// 3072-bit group from RFC 5054, appendix A.
const primeHex = "" +
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
	"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
	"15728E5A8AAAC42DAD33170D04507A33A85521ABDF1CBA64" +
	"ECFB850458DBEF0A8AEA71575D060C7DB3970F85A6E1E4C7" +
	"ABF5AE8CDB0933D71E8C94E04A25619DCEE3D2261AD2EE6B" +
	"F12FFA06D98A0864D87602733EC86A64521F2B18177B200C" +
	"BBE117577A615D6C770988C0BAD946E208E24FA074E5AB31" +
	"43DB5BFCE0FD108E4B82D120A93AD2CAFFFFFFFFFFFFFFFF"

const (
	// NonceSize is the encoded size of A and B.
	NonceSize = 384
	// ProofSize is the size of M1 and M2.
	ProofSize = sha512.Size
	// SaltSize is the size of generated salts.
	SaltSize = 16
	// secretSize is the size of the random private exponents a and b.
	secretSize = 32
)

var (
	groupN = mustHex(primeHex)
	groupG = big.NewInt(5)
	// k = H(N | PAD(g))
	multiplier = new(big.Int).SetBytes(hashOf(groupN.Bytes(), pad(groupG)))
	// H(N) xor H(g)
	groupDigest = xorBytes(hashOf(groupN.Bytes()), hashOf(groupG.Bytes()))
)

func mustHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 16)
	if !ok {
		panic("srp: bad group prime")
	}
	return n
}

func hashOf(parts ...[]byte) []byte {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// pad left-pads x to the byte length of N.
func pad(x *big.Int) []byte {
	return x.FillBytes(make([]byte, NonceSize))
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func identityBytes(identity uint64) []byte {
	return []byte(strconv.FormatUint(identity, 10))
}

// privateKey computes x = H(s | H(I | ":" | P)).
func privateKey(identity uint64, password, salt []byte) *big.Int {
	inner := hashOf(identityBytes(identity), []byte(":"), password)
	return new(big.Int).SetBytes(hashOf(salt, inner))
}

// scramble computes u = H(PAD(A) | PAD(B)).
func scramble(a, b *big.Int) *big.Int {
	return new(big.Int).SetBytes(hashOf(pad(a), pad(b)))
}

// clientProof computes M1 = H(H(N) xor H(g) | H(I) | s | A | B | K).
func clientProof(identity uint64, salt []byte, a, b *big.Int, key []byte) []byte {
	return hashOf(groupDigest, hashOf(identityBytes(identity)), salt, pad(a), pad(b), key)
}

// hostProof computes M2 = H(A | M1 | K).
func hostProof(a *big.Int, m1, key []byte) []byte {
	return hashOf(pad(a), m1, key)
}

// validNonce reports whether x is a usable public value (x mod N != 0).
func validNonce(x *big.Int) bool {
	return new(big.Int).Mod(x, groupN).Sign() != 0
}

func wipe(x *big.Int) {
	if x != nil {
		clear(x.Bits())
		x.SetInt64(0)
	}
}

func wipeBytes(b []byte) {
	clear(b)
}
