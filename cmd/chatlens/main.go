// Package main provides the entry point for the chatlens CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/chatlens/cmd/chatlens/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
