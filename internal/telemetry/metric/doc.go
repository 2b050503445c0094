// Package metric provides Prometheus metrics for AuthMesh.
//
//   - prometheus.go: the hub registry and its /metrics handler
//   - collector.go: a collector sampling session index occupancy
//
// All metrics live under the "authmesh" namespace.
package metric
