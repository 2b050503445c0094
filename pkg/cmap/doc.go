// Package cmap provides a concurrent map for AuthMesh.
//
// Keys are spread over a power-of-two number of shards, each guarded by
// its own RWMutex. Shard selection uses murmur3 with a per-map random seed.
//
// Usage:
//
//	m := cmap.New[uint64, *Conn](cmap.Uint64, cmap.WithShardCount(32))
//	m.Set(id, conn)
//	conn, ok := m.Get(id)
package cmap
