package main

import (
	"os"

	"github.com/advdv/twine/app"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the document server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg, _ := cmd.Flags().GetString("config"); cfg != "" {
			if err := os.Setenv("TWINE_CONFIG", cfg); err != nil {
				return err
			}
		}

		a := app.New()
		if err := a.Err(); err != nil {
			return err
		}

		a.Run()

		return nil
	},
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "configuration file, overrides TWINE_CONFIG")
	rootCmd.AddCommand(serveCmd)
}
