// Command agenthost detects local applications and agent CLIs, opens paths
// in them, and hosts interactive agent sessions behind an HTTP API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
