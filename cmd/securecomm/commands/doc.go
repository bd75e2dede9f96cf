// Package commands implements the securecomm CLI.
package commands
