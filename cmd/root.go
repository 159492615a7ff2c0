// Package cmd implements the pricewatch command line: the API server and
// one-shot fetch and item commands.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pricewatch/config"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// cfg is loaded once before any subcommand runs.
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:           "pricewatch",
		Short:         "Track product prices across retailer sites",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			cfg = loaded
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml); environment variables override it")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(fetchCommand())
	rootCmd.AddCommand(itemsCommand())
}

// Execute runs the root command
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}
