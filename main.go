package main

import (
	"os"

	"github.com/websites-starter/wsbuild/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
