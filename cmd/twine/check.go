package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/advdv/twine/config"
	"github.com/advdv/twine/vhost"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check [config]",
	Short: "Validate a configuration file and list its domains",
	Long:  `Reads the file (default: TWINE_CONFIG, then twine.yml) and prints every domain with its hostnames and root.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := os.Getenv("TWINE_CONFIG")
		if len(args) > 0 {
			path = args[0]
		}

		if path == "" {
			path = "twine.yml"
		}

		reg, err := config.Load(path)
		if err != nil {
			return err
		}

		printDomains(cmd.OutOrStdout(), reg)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func printDomains(w io.Writer, reg *vhost.Registry) {
	for _, d := range reg.All() {
		mark := " "
		if d == reg.Default() {
			mark = "*"
		}

		fmt.Fprintf(w, "%s %s\t%s\t%s\n", mark, d.Name, strings.Join(d.Hostnames, ","), d.Root)
	}
}
