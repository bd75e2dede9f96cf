// Package app wires the secure communication server for the CLI.
//
// NewWire builds the logging backend, the identity service and the metrics
// from a loaded config.Config. New assembles the authority client, the
// server and its TCP listener around an unlocked identity.
package app
