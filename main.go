package main

import (
	"fmt"
	"os"

	"github.com/TFMV/changetrack/cmd"
)

func main() {
	// Set up a deferred function to recover from panics.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Recovered from panic: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
