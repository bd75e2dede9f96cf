// Package transport is the TCP transport of the secure communication server.
//
// The Listener accepts clients, reads their HANDSHAKE_1, hands the request
// to a domain.TransportHandler and waits for the handler to complete it with
// a session key. Completed connections are Conns bound to that key for their
// lifetime. Dial is the client side of the same protocol.
package transport
