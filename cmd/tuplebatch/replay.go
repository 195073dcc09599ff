package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dan-strohschein/tuplebatch/deadletter"
	"github.com/dan-strohschein/tuplebatch/tuple"
)

func newReplayCmd(a *app) *cobra.Command {
	var opts deadletter.ReplayOptions

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-send chunks from the dead-letter spool",
		Long: `Re-sends every spooled chunk in batch and chunk order. Chunks that are
written are removed from the spool; chunks that fail again stay for the
next run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runReplay(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.BatchID, "batch", "", "replay only this batch ID")
	cmd.Flags().BoolVar(&opts.RetryableOnly, "retryable-only", false, "skip chunks whose last error was permanent")
	cmd.Flags().BoolVar(&opts.StopOnFirstError, "stop-on-first-error", false, "stop at the first chunk that fails again")
	return cmd
}

func (a *app) runReplay(ctx context.Context, opts deadletter.ReplayOptions) error {
	store, err := deadletter.Open(a.cfg.DeadLetter.Path, a.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// No failure sink: a replayed chunk that fails again keeps its
	// existing entry instead of being spooled a second time.
	c, err := a.newClient(nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := store.Replay(ctx, opts, func(ctx context.Context, e deadletter.Entry) error {
		result, err := c.WriteOperations(ctx, tuple.OperationSet(e.Operations), nil)
		if err != nil {
			return err
		}
		return result.Err()
	})
	if err != nil {
		return err
	}

	printHeader("Replay")
	printTable([]string{"", ""}, [][]string{
		{"replayed", fmt.Sprint(stats.Replayed)},
		{"failed", fmt.Sprint(stats.Failed)},
		{"skipped", fmt.Sprint(stats.Skipped)},
	})
	fmt.Fprintln(stdout)

	if stats.Failed > 0 {
		printWarning(fmt.Sprintf("%d chunk(s) failed again and remain in %s", stats.Failed, store.Path()))
		return &incompleteReplayError{failed: stats.Failed}
	}
	printSuccess(fmt.Sprintf("replayed %d chunk(s)", stats.Replayed))
	return nil
}

type incompleteReplayError struct {
	failed int
}

func (e *incompleteReplayError) reported() {}

func (e *incompleteReplayError) Error() string {
	return fmt.Sprintf("%d chunk(s) failed to replay", e.failed)
}
