// Package main is the entry point for the rolesweep CLI binary.
package main

import (
	"os"

	cli "rolesweep/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
