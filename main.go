// ABOUTME: Entry point for the crmsync CLI, HTTP API and MCP server
// ABOUTME: Delegates to the cobra command tree in package cli
package main

import (
	"fmt"
	"os"

	"github.com/harperreed/crmsync/cli"
)

const version = "0.2.0"

func main() {
	if err := cli.Execute(version); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
