package main

import (
	"fmt"
	"os"

	"github.com/cyderes/lakehouse-pipeline/internal/commands"
)

func main() {
	rootCmd := commands.NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
