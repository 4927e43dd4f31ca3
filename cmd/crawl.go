package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/paginated-scraper/internal/app"
	"github.com/JakeFAU/paginated-scraper/internal/crawl"
)

const closeTimeout = 15 * time.Second

func newCrawlCmd() *cobra.Command {
	var (
		opts       app.Options
		statusAddr string
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the listing, resuming from the checkpoint",
		Long: `Starts at the page after the last committed one and walks forward until
the pagination indicator reports the final page. SIGINT and SIGTERM stop the
run after the current step; committed pages are never lost.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			cfg := e.cfg
			if statusAddr != "" {
				cfg.Status.Addr = statusAddr
			}
			if cfg.Crawl.PauseOnMissingLink {
				opts.Attention = pausePrompt(cmd.InOrStdin(), cmd.ErrOrStderr())
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, opts, e.logger)
			if err != nil {
				return fmt.Errorf("init crawl: %w", err)
			}
			res := a.Run(ctx)

			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
			defer cancel()
			if err := a.Close(closeCtx); err != nil {
				e.logger.Warn("shutdown incomplete", zap.Error(err))
			}

			printSummary(cmd.OutOrStdout(), res)
			if res.Outcome == crawl.OutcomeFatal {
				return errFatal
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "keep the checkpoint in memory and log rows instead of writing output")
	cmd.Flags().IntVar(&opts.MaxPages, "max-pages", 0, "stop after committing this many pages (overrides crawl.max_pages)")
	cmd.Flags().StringVar(&statusAddr, "status-addr", "", "serve the status API on this address (overrides status.addr)")
	return cmd
}

// pausePrompt blocks until the operator presses Enter or ctx ends.
func pausePrompt(in io.Reader, out io.Writer) crawl.AttentionFunc {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, page, index int, reason string) {
		fmt.Fprintf(out, "page %d, entry %d: %s. Press Enter to continue...\n", page, index, reason)
		done := make(chan struct{})
		go func() {
			_, _ = reader.ReadString('\n')
			close(done)
		}()
		// On ctx.Done the reader goroutine stays blocked in ReadString. The run
		// ends with ctx, so the process exits before it could leak.
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
}

func printSummary(w io.Writer, res crawl.Result) {
	fmt.Fprintf(w, "outcome:         %s\n", res.Outcome)
	fmt.Fprintf(w, "pages committed: %d (from page %d, last committed %d)\n", res.PagesCommitted, res.StartPage, res.LastPage)
	fmt.Fprintf(w, "records written: %d\n", res.Records)
	fmt.Fprintf(w, "skipped:         %d\n", res.Skipped)
	fmt.Fprintf(w, "needs attention: %d\n", res.Failed)
	fmt.Fprintf(w, "total processed: %d\n", res.TotalProcessed)
	fmt.Fprintf(w, "elapsed:         %s\n", res.Elapsed.Round(time.Millisecond))
	if res.Err != nil {
		fmt.Fprintf(w, "error:           %v\n", res.Err)
	}
}
