package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/aspect-build/enclaveproof/internal/refparser"
	"github.com/aspect-build/enclaveproof/internal/store"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		dbPath     string
		f          store.ListFilter
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded verification attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.Repo != "" {
				ref, err := refparser.Parse(f.Repo)
				if err != nil {
					return err
				}
				f.Repo = ref.String()
			}
			if _, err := os.Stat(dbPath); err != nil {
				return fmt.Errorf("open database %s: %w", dbPath, err)
			}

			st, err := store.NewStore(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			list, err := st.ListVerifications(f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if list == nil {
					list = []store.Verification{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIME\tENCLAVE\tREPO\tOUTCOME\tMEASUREMENT")
			for _, v := range list {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
					v.ID, v.CreatedAt.UTC().Format(time.RFC3339), v.Enclave, v.Repo, v.Outcome, v.Measurement)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", envOr("ENCLAVEPROOF_DB_PATH", "enclaveproof.db"), "SQLite database path")
	cmd.Flags().StringVar(&f.Enclave, "enclave", "", "Only attempts against this enclave")
	cmd.Flags().StringVar(&f.Repo, "repo", "", "Only attempts for this repository")
	cmd.Flags().IntVar(&f.Limit, "limit", store.DefaultListLimit, "Maximum number of attempts")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the attempts as JSON")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
