// Package srp implements SRP-6a mutual authentication for AuthMesh.
//
// Both roles are provided by a single Authenticator type:
//
//   - Host: holds the verifier, issues the challenge (B) and checks the
//     peer's proof (M1), then proves itself with M2
//   - User: derives the private key from the password, answers the
//     challenge with M1 and checks the host's M2
//
// Parameters:
//
//   - Group: the 3072-bit group of RFC 5054 with generator 5
//   - Hash: SHA-512
//   - Identity: the decimal string of the 64-bit identity
//
// The package also produces the material used to answer identification
// requests for unknown identities: a pepper-derived salt that is stable per
// identity and a nonce with the same distribution as a real challenge.
//
// Usage:
//
//	host := srp.NewHost()
//	if err := host.Identify(id, salt, verifier, clientNonce); err != nil { ... }
//	// send host.Salt(), host.Nonce()
//	if !host.AuthenticateUser(proof) { ... }
//	m2, _ := host.HostProof()
//
// An Authenticator is not safe for concurrent use.
package srp
