package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/paginated-scraper/internal/app"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the persisted checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cmd.Context(), e.cfg.Checkpoint, e.logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rec, ok, err := store.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintf(out, "no checkpoint at %s\n", store.Location())
				return nil
			}
			fmt.Fprintf(out, "checkpoint at %s\n", store.Location())
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("print checkpoint: %w", err)
			}
			return nil
		},
	}
}
