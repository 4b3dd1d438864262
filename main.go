package main

import (
	"os"

	"github.com/snapframe/snapframe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
