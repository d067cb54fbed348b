package main

import (
	"os"

	"github.com/quantrail/signals/cmd/signalsd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
