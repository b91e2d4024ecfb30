package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
	"text/tabwriter"
	"time"

	"campaign-dialer/internal/audit"
	"campaign-dialer/internal/auth"
	"campaign-dialer/internal/dnc"

	"github.com/spf13/cobra"
)

func newRootCmd(open opener) *cobra.Command {
	var dsn string
	root := &cobra.Command{
		Use:           "dialerctl",
		Short:         "Inspect the campaign dialer's DNC registry and call records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", "", "postgres DSN (default: built from DB_* env)")

	// withStore opens the store for one command and audits as the local user.
	withStore := func(run func(cmd *cobra.Command, s *store, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer s.close()
			cmd.SetContext(audit.WithActor(cmd.Context(), audit.Actor{UserID: "cli:" + localUser(), Role: "cli"}))
			return run(cmd, s, args)
		}
	}

	root.AddCommand(newDNCCmd(withStore), newCallCmd(withStore), newHashPasswordCmd())
	return root
}

type storeRunner func(run func(cmd *cobra.Command, s *store, args []string) error) func(*cobra.Command, []string) error

// --- dnc ---

func newDNCCmd(withStore storeRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dnc",
		Short: "Manage the do-not-call registry",
	}

	var reason string
	add := &cobra.Command{
		Use:   "add <phone>",
		Short: "Register a phone as do-not-call",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, s *store, args []string) error {
			if err := s.dnc.Add(cmd.Context(), args[0], reason); err != nil {
				return err
			}
			e, err := s.dnc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "listed %s (%s)\n", e.Phone, e.Reason)
			return nil
		}),
	}
	add.Flags().StringVar(&reason, "reason", "operator request", "why the phone is listed")

	remove := &cobra.Command{
		Use:   "remove <phone>",
		Short: "Remove a phone from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, s *store, args []string) error {
			err := s.dnc.Remove(cmd.Context(), args[0])
			if errors.Is(err, dnc.ErrNotFound) {
				return fmt.Errorf("%s is not listed", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		}),
	}

	check := &cobra.Command{
		Use:   "check <phone>",
		Short: "Report whether a phone is listed",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, s *store, args []string) error {
			listed, err := s.dnc.IsListed(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if listed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: listed\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: not listed\n", args[0])
			}
			return nil
		}),
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every registered phone",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, s *store, args []string) error {
			entries, err := s.dnc.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PHONE\tADDED\tREASON")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Phone, e.AddedAt.UTC().Format(time.RFC3339), e.Reason)
			}
			return tw.Flush()
		}),
	}

	cmd.AddCommand(add, remove, check, list)
	return cmd
}

// --- call ---

func newCallCmd(withStore storeRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Inspect call records",
	}

	get := &cobra.Command{
		Use:   "get <call-id>",
		Short: "Print one call record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, s *store, args []string) error {
			c, err := s.calls.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), c)
		}),
	}

	list := &cobra.Command{
		Use:   "list <agent-instance-id>",
		Short: "List the calls an agent instance placed",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, s *store, args []string) error {
			rows, err := s.calls.ListByInstance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLEAD\tSTATUS\tOUTCOME\tDURATION")
			for _, c := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%ds\n", c.ID, c.LeadID, c.Status, dash(string(c.Outcome)), c.DurationSeconds)
			}
			return tw.Flush()
		}),
	}

	cmd.AddCommand(get, list)
	return cmd
}

// --- hash-password ---

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash an operator password for the OPERATORS setting (reads stdin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			pw := strings.TrimRight(string(raw), "\r\n")
			if pw == "" {
				return errors.New("empty password")
			}
			hash, err := auth.HashPassword(pw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func localUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	return "unknown"
}
