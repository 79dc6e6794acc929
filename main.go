package main

import (
	"os"

	"github.com/stdg/reqs-builder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
