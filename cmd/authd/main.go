package main

import (
	"os"

	"github.com/lsmon/iotauth/cmd/authd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
