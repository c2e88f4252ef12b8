package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cronos/internal/journal"

	"github.com/spf13/cobra"
)

var (
	historyLimit   int
	historySession string
	historyLogins  bool
)

// historyCmd prints the send and login journal
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sends from the journal",
	Long: `Prints the latest composite sends recorded in the journal, newest first.
With --logins the login observations of --session are shown instead.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries")
	historyCmd.Flags().StringVarP(&historySession, "session", "s", "", "Only this identity")
	historyCmd.Flags().BoolVar(&historyLogins, "logins", false, "Show login observations")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if !cfg.Journal.Enabled {
		return errors.New("journal is disabled (journal.enabled)")
	}
	if historyLimit < 1 {
		return errors.New("--limit must be positive")
	}
	if historyLogins && historySession == "" {
		return errors.New("--logins requires --session")
	}

	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := commandContext()
	defer cancel()

	if historyLogins {
		logins, err := store.RecentLogins(ctx, historySession, historyLimit)
		if err != nil {
			return err
		}
		if len(logins) == 0 {
			fmt.Println(mutedStyle.Render("no login observations"))
		}
		for _, l := range logins {
			fmt.Printf("%s  %s\n", mutedStyle.Render(l.ObservedAt.Local().Format(time.DateTime)), renderStatus(l.Identity, l.Status))
		}
		return nil
	}

	sends, err := store.RecentSends(ctx, historySession, historyLimit)
	if err != nil {
		return err
	}
	if len(sends) == 0 {
		fmt.Println(mutedStyle.Render("no sends recorded"))
	}
	for _, r := range sends {
		outcome := successStyle.Render("ok  ")
		if !r.Success {
			outcome = errorStyle.Render("fail")
		}
		to := r.To
		if r.NonContact {
			to += " (number)"
		}
		line := fmt.Sprintf("%s  %s  %s -> %s [%s]",
			mutedStyle.Render(r.StartedAt.Local().Format(time.DateTime)),
			outcome, r.Session, to, strings.Join(r.Kinds, ", "))
		if !r.Success {
			line += " " + mutedStyle.Render(fmt.Sprintf("%s: %s", r.Step, r.Error))
		}
		fmt.Println(line)
	}
	return nil
}
