package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newKBCmd(a *app) *cobra.Command {
	var asJSON bool
	show := func(*cobra.Command, []string) error { return a.showKnowledge(asJSON) }

	cmd := &cobra.Command{
		Use:     "kb",
		Aliases: []string{"knowledge"},
		Short:   "Inspect and edit the knowledge base",
		Args:    cobra.NoArgs,
		RunE:    show,
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print the whole knowledge base as JSON")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Summarize what cortana knows",
		Args:  cobra.NoArgs,
		RunE:  show,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the knowledge base location",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			kb, _, err := a.openKnowledge()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, kb.Path())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> [value...]",
		Short: "Remember a fact; an empty value forgets it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			kb, _, err := a.openKnowledge()
			if err != nil {
				return err
			}
			value := strings.Join(args[1:], " ")
			if err := kb.SetFact(args[0], value); err != nil {
				return err
			}
			if strings.TrimSpace(value) == "" {
				fmt.Fprintf(a.stdout, "Forgot %s.\n", args[0])
			} else {
				fmt.Fprintf(a.stdout, "Remembered %s.\n", args[0])
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "note <text...>",
		Short: "Add a free-form note shared with the model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			kb, _, err := a.openKnowledge()
			if err != nil {
				return err
			}
			if err := kb.AddNote(strings.Join(args, " ")); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "Note saved.")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Rescan the system profile",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			kb, _, err := a.openKnowledge()
			if err != nil {
				return err
			}
			if err := kb.RefreshSystem(); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, kb.Snapshot().System.HumanSummary(summaryTools))
			return nil
		},
	})
	return cmd
}

func (a *app) showKnowledge(asJSON bool) error {
	kb, _, err := a.openKnowledge()
	if err != nil {
		return err
	}
	snap := kb.Snapshot()
	if asJSON {
		payload, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, string(payload))
		return nil
	}

	ok, total := snap.SuccessRate()
	fmt.Fprintf(a.stdout, "Knowledge base: %s\n", kb.Path())
	fmt.Fprintf(a.stdout, "Commands: %d recorded, %d succeeded\n", total, ok)
	if summary := snap.System.HumanSummary(summaryTools); summary != "" {
		fmt.Fprintln(a.stdout, "System:")
		fmt.Fprintln(a.stdout, summary)
	}
	if lines := snap.FactLines(); len(lines) > 0 {
		fmt.Fprintln(a.stdout, "Facts:")
		for _, line := range lines {
			fmt.Fprintln(a.stdout, "  "+line)
		}
	}
	if len(snap.Notes) > 0 {
		fmt.Fprintln(a.stdout, "Notes:")
		for _, note := range snap.Notes {
			fmt.Fprintln(a.stdout, "  "+note)
		}
	}
	return nil
}
