package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"subscription_watcher/query"
)

func newCheckCmd() *cobra.Command {
	var showAST bool

	cmd := &cobra.Command{
		Use:   "check <query>",
		Short: "Compile a query and print its canonical form",
		Long: `Compile a query and print its canonical form. An invalid query is printed
with the problem underlined and the command exits non-zero.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.OutOrStdout(), args[0], showAST)
		},
	}
	cmd.Flags().BoolVar(&showAST, "ast", false, "Print the syntax tree as JSON")
	return cmd
}

func runCheck(w io.Writer, text string, showAST bool) error {
	q, err := query.Compile(text)
	if err != nil {
		printParseError(w, text, err)
		return err
	}

	color.New(color.FgGreen).Fprint(w, "valid: ")
	fmt.Fprintln(w, q.String())

	if showAST {
		data, err := query.ExplainJSON(text)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
	}
	return nil
}

// printParseError echoes the query and underlines the offending part.
func printParseError(w io.Writer, text string, err error) {
	color.New(color.FgRed, color.Bold).Fprintf(w, "invalid: %v\n", err)

	var perr *query.ParseError
	if !errors.As(err, &perr) {
		return
	}
	fmt.Fprintf(w, "  %s\n", text)
	fmt.Fprintf(w, "  %s%s\n",
		strings.Repeat(" ", perr.Position),
		color.New(color.FgRed).Sprint(strings.Repeat("^", max(perr.Length, 1))))
}
