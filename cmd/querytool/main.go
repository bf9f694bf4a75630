// querytool checks subscription queries and tries them against submissions
// without running the watcher.
//
// Usage:
//
//	querytool check 'deer -ych "hand drawn"'
//	querytool match 'multi* except multitude' submission.json
package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var noColor bool

	rootCmd := &cobra.Command{
		Use:   "querytool",
		Short: "Check and try out subscription queries",
		Long: `querytool compiles subscription and blocklist queries the same way the
watcher does, so a query can be checked before it is saved.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable coloured output")

	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newMatchCmd())
	return rootCmd
}
