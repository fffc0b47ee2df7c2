package main

import (
	"fmt"
	"os"

	"github.com/benvon/workitem-fieldmap/cmd/fieldmap/commands"
)

func main() {
	rootCmd := commands.NewRootCmd(commands.LoadRuntime)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
