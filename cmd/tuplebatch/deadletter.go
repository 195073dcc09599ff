package main

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dan-strohschein/tuplebatch/deadletter"
)

func newDeadLetterCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletter",
		Aliases: []string{"dl"},
		Short:   "Inspect and clear the dead-letter spool",
	}
	cmd.AddCommand(newDeadLetterListCmd(a), newDeadLetterPurgeCmd(a))
	return cmd
}

func newDeadLetterListCmd(a *app) *cobra.Command {
	var batchID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List spooled batches, or the chunks of one batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := deadletter.Open(a.cfg.DeadLetter.Path, a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if batchID != "" {
				return listBatch(store, batchID)
			}
			return listBatches(store)
		},
	}
	cmd.Flags().StringVar(&batchID, "batch", "", "show the chunks of this batch ID")
	return cmd
}

func listBatches(store *deadletter.Store) error {
	summaries, err := store.Batches()
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		printSuccess("dead-letter spool is empty")
		return nil
	}

	printHeader("Dead-letter batches")
	rows := make([][]string, 0, len(summaries))
	total := 0
	for _, s := range summaries {
		rows = append(rows, []string{s.BatchID, humanize.Comma(int64(s.Entries))})
		total += s.Entries
	}
	printTable([]string{"batch", "chunks"}, rows)
	fmt.Fprintln(stdout)
	printInfo(fmt.Sprintf("%s chunk(s) in %d batch(es)", humanize.Comma(int64(total)), len(summaries)))
	return nil
}

func listBatch(store *deadletter.Store, batchID string) error {
	entries, err := store.ListBatch(batchID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		printInfo("no spooled chunks for batch " + batchID)
		return nil
	}

	printHeader("Batch " + batchID)
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		code := e.ErrorCode
		if code == "" {
			code = "-"
		}
		rows = append(rows, []string{
			strconv.Itoa(e.ChunkIndex),
			humanize.Comma(int64(len(e.Operations))),
			string(e.Reason),
			code,
			yesNo(e.Retryable),
			humanize.Time(e.RecordedAt),
			truncate(e.Error, maxErrorWidth),
		})
	}
	printTable([]string{"chunk", "ops", "reason", "code", "retryable", "recorded", "error"}, rows)
	return nil
}

func newDeadLetterPurgeCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove every spooled chunk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return errors.New("purge drops every spooled chunk; pass --force to confirm")
			}
			store, err := deadletter.Open(a.cfg.DeadLetter.Path, a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Purge()
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("purged %s chunk(s)", humanize.Comma(int64(n))))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm the purge")
	return cmd
}
