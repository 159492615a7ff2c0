package main

import (
	"fmt"
	"os"

	"pricewatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pricewatch: %v\n", err)
		os.Exit(1)
	}
}
