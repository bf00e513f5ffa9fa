// Package main is the entry point for the camflow CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/runger/camflow/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "camflow: %v\n", err)
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
