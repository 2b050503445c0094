// Package service implements the authentication dispatcher of AuthMesh.
//
// The Dispatcher classifies inbound frames and runs the SRP-6a exchange
// for each connection (origin):
//
//	Identify      CMD_NULL/QLF_IDENTIFY      A -> [saltLen][nonceLen][s][B]
//	Authenticate  CMD_NULL/QLF_AUTHENTICATE  M1 -> M2
//	Register      CMD_BASIC/QLF_REGISTER     frame signed with identity and group
//
// Progress per origin lives in a session index owned by the dispatch
// goroutine. An origin that fails identification or authentication is
// blocked until it disconnects. Unknown and banned identities receive a
// fake challenge when a pepper is configured, so they cannot be told
// apart from enrolled ones.
//
// Identity lookups run on a bounded worker pool. Route parks the frame and
// returns OutcomePending; the finished lookup arrives on Completions and
// Complete turns the parked frame into the response.
package service
