package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/simonkienzler/reqsniffer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, cmd.ErrCheckFailed) {
			fmt.Fprintf(os.Stderr, "an error occurred: %s\n", err)
		}
		os.Exit(1)
	}
}
