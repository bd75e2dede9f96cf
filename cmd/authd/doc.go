// Command authd is a development key distribution authority. It issues
// session keys to the entities listed in its config over HTTP.
//
// Usage:
//
//	authd --config authd.toml init
//	authd --config authd.toml serve
package main
