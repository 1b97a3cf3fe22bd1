package main

import (
	"os"

	"github.com/echodoc-ai/echodoc/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
