// Package main provides the entry point for the conceptrank CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/conceptrank/cmd/conceptrank/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
