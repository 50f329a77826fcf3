package main

import (
	"os"

	"github.com/petriage/petriage/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
