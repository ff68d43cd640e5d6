package main

import (
	"os"

	"github.com/foyer-io/foyer/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
