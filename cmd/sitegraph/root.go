package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for sitegraph.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitegraph",
		Short: "Crawl a website into a link graph and download its images",
		Long: `sitegraph crawls a website starting from one URL, staying on the domain of
that URL. Pages are fetched by a pool of workers until the link budget is
used up or no links are left.

The result is a link graph written as JSON, the images of every page saved
to a directory and a manifest describing those images. Runs can be stored
in a local history database and compared later.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
