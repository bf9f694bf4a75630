package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"subscription_watcher/query"
	"subscription_watcher/submission"
)

func newMatchCmd() *cobra.Command {
	var blocks []string

	cmd := &cobra.Command{
		Use:   "match <query> [submission.json]",
		Short: "Check a query against a submission",
		Long: `Check a query against a submission read as JSON from a file, or from
stdin when no file is given. Matching text is highlighted. Blocklist
entries given with --block are applied the way the watcher applies a
destination's blocklist.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 2 {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			s, err := readSubmission(in)
			if err != nil {
				return err
			}
			_, err = runMatch(cmd.OutOrStdout(), args[0], blocks, s)
			return err
		},
	}
	cmd.Flags().StringArrayVarP(&blocks, "block", "b", nil, "Blocklist entry (repeatable)")
	return cmd
}

func readSubmission(r io.Reader) (*submission.Submission, error) {
	var s submission.Submission
	dec := json.NewDecoder(r)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to read submission: %w", err)
	}
	return &s, nil
}

// runMatch prints whether s is delivered for text after the blocklist, and
// reports the same as a bool.
func runMatch(w io.Writer, text string, blocks []string, s *submission.Submission) (bool, error) {
	q, err := query.Compile(text)
	if err != nil {
		printParseError(w, text, err)
		return false, err
	}

	blocked := make([]*query.Query, 0, len(blocks))
	for _, b := range blocks {
		bq, err := query.Compile(b)
		if err != nil {
			printParseError(w, b, err)
			return false, err
		}
		blocked = append(blocked, bq)
	}

	if !q.Matches(s) {
		color.New(color.FgYellow).Fprintln(w, "no match")
		return false, nil
	}
	if !query.Blocklist(blocked...).Matches(s) {
		color.New(color.FgYellow).Fprintln(w, "blocked")
		for _, bq := range blocked {
			if bq.Matches(s) {
				fmt.Fprintf(w, "  by %s\n", bq.String())
			}
		}
		return false, nil
	}

	color.New(color.FgGreen, color.Bold).Fprintln(w, "match")
	printHighlights(w, s, q.Highlights(s))
	return true, nil
}

// printHighlights prints each text that has a match location with the
// matched spans coloured.
func printHighlights(w io.Writer, s *submission.Submission, locs []query.Location) {
	texts := make(map[string]string)
	for _, f := range []query.Field{query.FieldAny, query.FieldArtist} {
		for _, lt := range f.LocatedTexts(s) {
			texts[lt.Key] = lt.Text
		}
	}

	byKey := make(map[string][]query.Location)
	var keys []string
	for _, l := range locs {
		if _, ok := byKey[l.Key]; !ok {
			keys = append(keys, l.Key)
		}
		byKey[l.Key] = append(byKey[l.Key], l)
	}

	hl := color.New(color.FgBlack, color.BgYellow)
	for _, key := range keys {
		runes := []rune(texts[key])
		var b strings.Builder
		pos := 0
		for _, l := range byKey[key] {
			// Highlights are sorted; skip the part of a span already printed.
			start := max(l.Start, pos)
			if start >= l.End || l.End > len(runes) {
				continue
			}
			b.WriteString(string(runes[pos:start]))
			b.WriteString(hl.Sprint(string(runes[start:l.End])))
			pos = l.End
		}
		b.WriteString(string(runes[pos:]))
		fmt.Fprintf(w, "  %s: %s\n", key, b.String())
	}
}
