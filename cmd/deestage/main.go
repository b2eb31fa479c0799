package main

import (
	"os"

	"github.com/YoshitsuguKoike/deestage/internal/interface/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
