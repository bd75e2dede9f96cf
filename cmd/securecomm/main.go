package main

import (
	"os"

	"github.com/lsmon/iotauth/cmd/securecomm/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
