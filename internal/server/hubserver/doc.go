// Package hubserver serves the authentication hub's frame protocol over
// TCP, optionally with TLS.
//
// Each connection gets a reader and a writer goroutine. Every frame is
// handed to a single event loop, which owns the dispatcher and is the
// only goroutine that touches it:
//
//	reader ──frame──▶ loop ──reply──▶ writer
//	                   ▲
//	lookup workers ────┘ (Completions)
package hubserver
