// Package authclient is the HTTP client of the key-distribution authority.
//
// It signs requests with the entity's Ed25519 key, verifies the authority's
// signature on responses, opens a rotated distribution key with the entity's
// X25519 key and decrypts the issued session keys.
package authclient
