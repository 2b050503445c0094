// Package domain defines the core domain models for AuthMesh.
//
// Domain models are pure value objects without any IO dependencies or
// framework coupling. This package contains:
//
//   - IdentityRecord: stored salt, verifier and group of an identity
//   - Errors: domain-specific error definitions with AM-* codes
package domain
