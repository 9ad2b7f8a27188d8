package main

import (
	"github.com/spf13/cobra"
)

var configPath string

// rootCmd builds the gwcored command tree, grounded on the teacher's
// CLI.GetRootCommand (internal/infrastructure/migrations/cli.go).
func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gwcored",
		Short: "Gateway dispatch core",
		Long:  "gwcored runs the gateway dispatch core: route matching, load-balanced upstream dispatch, and health checking behind a read-only admin surface.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the gwcored YAML config file")

	root.AddCommand(serveCmd(), routesCmd())
	return root
}
