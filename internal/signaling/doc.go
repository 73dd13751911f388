// Package signaling routes WebRTC signaling envelopes between the participants
// of a debate.
//
// A Hub keeps at most one Route per (debate, user) pair. Each Route owns a
// bounded outbound queue drained by its own writer goroutine, so a slow peer
// only loses its own oldest messages and never stalls a sender. Payloads are
// opaque to the Hub; Server is the WebSocket gateway that feeds it.
package signaling
