package main

import (
	"os"

	"mcpdesk/cmd"
)

const (
	Version = "v0.01.00"
	License = "Apache-2.0"
)

func main() {
	if err := cmd.Execute(Version); err != nil {
		os.Exit(1)
	}
}
