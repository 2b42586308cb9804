package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jvm-metadata/harvester/pkg/scraper"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the ids of registered scrapers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, id := range scraper.Registered() {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}
