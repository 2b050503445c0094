// Package storage provides identity record storage for AuthMesh.
//
// Backends:
//
//   - postgres: read-only lookups against an existing identity table
//   - badger: embedded store with optional sealing of records at rest
//   - memory: see package memory
//
// All backends report a missing identity as domain.ErrUnknownIdentity and
// backend failures as domain.ErrStorageError.
package storage
