// Command securecomm runs a secure communication server that obtains its
// session keys from an authority, and a matching client for testing it.
//
// Usage:
//
//	securecomm --config server.toml -p <passphrase> init
//	securecomm --config server.toml -p <passphrase> fingerprint
//	securecomm --config server.toml -p <passphrase> serve
//	securecomm --config client.toml -p <passphrase> connect --group Servers
package main
