// Package httpserver provides the hub's admin HTTP endpoint.
//
// Routes:
//
//	GET /healthz          liveness
//	GET /metrics          Prometheus exposition
//	GET /debug/sessions   session index counters
//
// The endpoint carries no authentication; restrict it with the network
// allowlist or bind it to loopback.
package httpserver
