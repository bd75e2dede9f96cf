// Package domain defines core data models and interfaces shared across the app.
// It contains plain types (keys, connection ids, messages) and contracts
// (transport, authority client, stores) only.
package domain
