// Package commands implements the authd CLI.
package commands
