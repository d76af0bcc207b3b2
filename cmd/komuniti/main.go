package main

import (
	"os"

	"github.com/dasmlab/komuniti/cmd/komuniti/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
