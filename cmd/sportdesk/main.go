package main

import (
	"os"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
