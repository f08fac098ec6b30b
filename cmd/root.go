// Package cmd implements the nlq command line: the web server, one-shot
// questions from the terminal, and exemplar inspection.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "nlq",
	Short:         "Ask questions about the MoMA collection in plain English",
	Long:          `nlq turns natural-language questions into SQL with a large language model, runs the SQL against the collection database and answers in plain English.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
