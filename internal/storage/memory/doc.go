// Package memory provides an in-memory identity store.
//
// Records live in a sharded concurrent map and are copied on the way in
// and out, so callers may keep or mutate what they pass and receive.
// Nothing survives a restart; the store suits tests and ephemeral hubs
// that are seeded at startup.
package memory
