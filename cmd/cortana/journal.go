package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashwch/cortana/internal/journal"
	"github.com/spf13/cobra"
)

func newJournalCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent command decisions",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			j, err := a.openJournal()
			if err != nil {
				return err
			}
			events, err := j.Tail(limit)
			if err != nil {
				return err
			}
			if asJSON {
				payload, err := json.MarshalIndent(events, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, string(payload))
				return nil
			}
			if len(events) == 0 {
				fmt.Fprintln(a.stdout, "Journal is empty.")
				return nil
			}
			for _, ev := range events {
				fmt.Fprintln(a.stdout, journalLine(ev))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "lines", "n", 20, "number of entries to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func journalLine(ev journal.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %-9s", ev.Timestamp, ev.Decision)
	if ev.Decision == journal.DecisionExecuted {
		fmt.Fprintf(&b, " exit=%-3d", ev.ExitCode)
	} else {
		b.WriteString("         ")
	}
	b.WriteString(" ")
	b.WriteString(ev.Command)
	if ev.PlanID != "" {
		fmt.Fprintf(&b, "  [%s]", ev.PlanID)
	}
	return b.String()
}
