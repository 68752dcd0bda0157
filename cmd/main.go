package main

import (
	"os"

	"github.com/vaywinar/cerdas-cermat/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
