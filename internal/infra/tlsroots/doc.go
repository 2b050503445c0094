// Package tlsroots loads TLS material for the hub and the CLI.
//
//   - roots.go: trust pools (system roots plus extra CA files) and the
//     client configuration authmesh-cli dials with
//   - reloader.go: the hub's serving certificate, reloaded when the
//     certificate or key file changes
package tlsroots
