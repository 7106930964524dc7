// Command phonex authors and debugs phoneme specs from the shell.
//
// Usage:
//
//	phonex [flags] <command> [args]
//
// Commands:
//
//	parse    - parse spec text or free text, write PHX
//	decode   - print a PHX file as spec text
//	inspect  - show single PHX records
//	legacy   - convert between PHN and PHX
//	render   - synthesize a PHX file, export or play it
//	voices   - list available voices
//	journal  - show recorded sessions
//	remote   - send a command to a running phonexd
package main

import (
	"fmt"
	"os"

	"github.com/loqalabs/phonex/cmd/phonex/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
