package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		// Errors are rendered by the notifier or by cobra; reaching here
		// just means a non-zero exit.
		os.Exit(1)
	}
}
