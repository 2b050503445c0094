// Package frame implements the fixed-size routing frame exchanged between
// hub peers.
//
// A frame is a 32-byte big-endian header followed by at most PayloadSize bytes
// of payload. The frame type operates on a caller-supplied buffer and never
// copies it.
package frame
