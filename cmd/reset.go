package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/paginated-scraper/internal/app"
	"github.com/JakeFAU/paginated-scraper/internal/sink"
)

func newResetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the checkpoint and output files so the next crawl starts fresh",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("reset deletes the checkpoint and output; pass --yes to confirm")
			}
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cmd.Context(), e.cfg.Checkpoint, e.logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			if err := store.Reset(cmd.Context()); err != nil {
				return err
			}

			out, err := sink.New(e.cfg.Output, e.logger)
			if err != nil {
				return fmt.Errorf("init output: %w", err)
			}
			if err := out.Remove(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed checkpoint at %s and output %s\n", store.Location(), out.Path())
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
