package main

import (
	"os"

	"github.com/drksbr/browserrelay/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
