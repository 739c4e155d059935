// Command realtime-agent runs a voice and text session against a Gemini
// Live endpoint from the terminal.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Error already printed by cobra
		os.Exit(1)
	}
}
