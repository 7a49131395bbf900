// Package main is the entry point for busctl.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/busctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
