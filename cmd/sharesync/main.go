// Package main is the entry point for sharesync.
package main

import (
	"os"

	"github.com/edumarques81/sharesync/cmd/sharesync/commands"
)

func main() {
	os.Exit(commands.Execute())
}
