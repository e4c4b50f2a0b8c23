package main

import (
	"os"

	"github.com/bnema/terms-cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
