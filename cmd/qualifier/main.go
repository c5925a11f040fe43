package main

import (
	"os"

	"github.com/leadworks/qualifier/cmd/qualifier/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
