// Package main is the entry point for wsinspect.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/wsinspect/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
