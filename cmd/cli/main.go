// Package main is the entry point for the dgown CLI binary.
package main

import (
	"os"

	cli "delegated-groups/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
