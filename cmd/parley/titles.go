package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/parleybot/parley/internal/session"
)

func titlesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "titles",
		Short: "Inspect and reset persisted title state",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List title state for all threads",
		Run: func(cmd *cobra.Command, args []string) {
			listTitles()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <thread-key>",
		Short: "Clear title state for a thread, re-enabling automatic titling",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			resetTitle(args[0])
		},
	})

	return cmd
}

func openStore() *session.Store {
	cfg := loadConfig()
	store, err := session.Open(cfg.DBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func listTitles() {
	store := openStore()
	defer store.Close()

	rows, err := store.ListTitleStates(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		fmt.Println("No title state recorded.")
		return
	}

	for _, r := range rows {
		line := fmt.Sprintf("  %-12s %s", r.State.Status, r.State.ThreadKey)
		switch {
		case r.State.AppliedTitle != "":
			line += fmt.Sprintf("  %q", r.State.AppliedTitle)
		case r.State.LastProposedTitle != "":
			line += fmt.Sprintf("  (proposed %q)", r.State.LastProposedTitle)
		}
		if r.State.RetryAfter > 0 {
			line += fmt.Sprintf("  retry at %s", time.UnixMilli(r.State.RetryAfter).Format("2006-01-02 15:04:05"))
		}
		if r.State.LastErrorClass != "" {
			line += fmt.Sprintf("  last error: %s", r.State.LastErrorClass)
		}
		fmt.Println(line)
	}
}

func resetTitle(threadKey string) {
	store := openStore()
	defer store.Close()

	n, err := store.ResetThreadKey(context.Background(), threadKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if n == 0 {
		fmt.Printf("No state found for %s\n", threadKey)
		return
	}
	fmt.Printf("Reset %d record(s) for %s\n", n, threadKey)
}
