package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	root := &cobra.Command{
		Use:   "clara",
		Short: "Clara, the Nestzone property assistant",
		Long: `Clara answers Nestzone visitors by voice or text: she searches
properties by city, walks visitors through registration and login, and
falls back to a generative model for everything else.

Running clara without a subcommand starts the HTTP server.`,
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve, newChatCmd())
	return root
}
