package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "twine",
	Short: "Twine is a virtual host document server",
	Long: `Twine serves a document root per virtual host. HTML documents run through a pipeline of stages,
everything else is sent as is. Settings come from TWINE_* environment variables.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
