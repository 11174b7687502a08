package main

import (
	"os"

	"github.com/jonesrussell/north-cloud/index-guard/internal/cli"
)

func main() {
	// cobra prints the error itself
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
