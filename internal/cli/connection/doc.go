// Package connection holds the authmesh-cli clients:
//
//   - hub.go: frame protocol client that runs the login exchange
//   - http.go: admin endpoint client (health, session counts)
package connection
