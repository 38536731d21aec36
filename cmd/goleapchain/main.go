package main

import (
	"fmt"
	"os"

	"github.com/biodoia/goleapchain/cmd/goleapchain/commands"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	rootCmd := commands.NewRootCmd(version, commit)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
