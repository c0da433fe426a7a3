// Command casebot is the entry point for the police disciplinary case
// assistant. It provides a CLI interface (via Cobra) and an HTTP server with
// JSON and SSE endpoints.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/casebot-go/cmd/casebot/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
