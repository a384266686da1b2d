package main

import (
	"os"

	"github.com/Real-Craft-Tech/stampwire/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
