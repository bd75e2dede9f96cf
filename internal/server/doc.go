// Package server implements the secure communication server: session key
// mediation for connecting clients and dispatch of outbound messages.
//
// All state is owned by a single event loop goroutine. Transport callbacks,
// authority responses and management calls are posted onto the loop as
// closures and run in the order they arrive, so the cache, the connection
// registry and the request correlation table need no locks.
//
// # Components
//
//   - SessionKeyCache (package cache) holds the general key pool and the
//     distribution key.
//   - KeyRequestCoordinator issues session key requests and routes each
//     response to the correlation recorded for it.
//   - ConnectionRegistry maps connection ids to live connections.
//   - HandshakeMediator resolves the key a client asks for, from the cache
//     or from the authority.
//   - DispatchEngine delivers outbound messages, sealing a broadcast once
//     for every client bound to the first pooled key.
//   - EventSink publishes the connection, error, listening and received
//     outputs.
package server
