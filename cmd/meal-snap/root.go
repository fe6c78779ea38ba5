// cmd/meal-snap/root.go
package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "meal-snap",
		Short:         "meal-snap turns meal photos into nutrition records",
		Long:          "meal-snap analyzes meal photos through an analysis webhook, normalizes the result, and keeps daily nutrition summaries per user.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to YAML config file")

	cmd.AddCommand(
		newServeCmd(opts),
		newNormalizeCmd(),
		newClassifyCmd(),
		newTokenCmd(opts),
		newVersionCmd(),
	)
	return cmd
}
