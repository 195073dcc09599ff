package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dan-strohschein/tuplebatch/batch"
	"github.com/dan-strohschein/tuplebatch/client"
	"github.com/dan-strohschein/tuplebatch/config"
	"github.com/dan-strohschein/tuplebatch/deadletter"
	"github.com/dan-strohschein/tuplebatch/tuple"
)

// incompleteBatchError signals exit code 1 after the summary has already
// been printed.
type incompleteBatchError struct {
	result batch.BatchResult
}

func (e *incompleteBatchError) reported() {}

func (e *incompleteBatchError) Error() string {
	return fmt.Sprintf("batch %s did not complete: %d of %d chunks failed, %d not attempted",
		e.result.BatchID, e.result.FailedChunks, e.result.TotalChunks, len(e.result.NotAttempted))
}

type writeFlags struct {
	file             string
	chunkSize        int
	parallel         int
	retries          int
	retryDelay       time.Duration
	stopOnFirstError bool
	transactional    bool
}

func newWriteCmd(a *app) *cobra.Command {
	var f writeFlags

	cmd := &cobra.Command{
		Use:   "write --file ops.jsonl",
		Short: "Write and delete tuples listed in a JSON-lines file",
		Long: `Reads one operation per line:

  {"op":"write","user":"user:anne","relation":"viewer","object":"doc:1"}
  {"op":"delete","user":"user:bob","relation":"editor","object":"doc:1"}

and sends them in chunks. Use --file - to read standard input. Exits with
status 1 unless every chunk was written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("chunk-size") {
				a.cfg.Batch.ChunkSize = f.chunkSize
			}
			if flags.Changed("parallel") {
				a.cfg.Batch.Parallel = f.parallel
			}
			if flags.Changed("retries") {
				a.cfg.Batch.MaxRetries = f.retries
			}
			if flags.Changed("retry-delay") {
				a.cfg.Batch.RetryDelay = config.Duration(f.retryDelay)
			}
			if flags.Changed("stop-on-first-error") {
				a.cfg.Batch.StopOnFirstError = f.stopOnFirstError
			}
			return a.runWrite(cmd.Context(), f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.file, "file", "f", "", "JSON-lines operation file, or - for stdin")
	flags.IntVar(&f.chunkSize, "chunk-size", batch.DefaultMaxOperationsPerChunk, "maximum operations per request")
	flags.IntVar(&f.parallel, "parallel", batch.DefaultMaxParallelRequests, "maximum requests in flight")
	flags.IntVar(&f.retries, "retries", batch.DefaultMaxRetries, "retries per chunk after the first attempt")
	flags.DurationVar(&f.retryDelay, "retry-delay", batch.DefaultRetryDelay, "pause between attempts of one chunk")
	flags.BoolVar(&f.stopOnFirstError, "stop-on-first-error", false, "send no further chunks after the first failure")
	flags.BoolVar(&f.transactional, "transactional", false, "send everything as one all-or-nothing request")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *app) runWrite(ctx context.Context, f writeFlags) error {
	ops, err := readOperations(f.file)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		printWarning("no operations in " + f.file)
		return nil
	}

	var (
		sink  client.FailureSink
		store *deadletter.Store
	)
	if a.cfg.DeadLetter.Enabled && !f.transactional {
		store, err = deadletter.Open(a.cfg.DeadLetter.Path, a.logger)
		if err != nil {
			return err
		}
		defer store.Close()
		sink = store
	}

	c, err := a.newClient(sink)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info("writing operations",
		zap.String("file", f.file),
		zap.Int("operations", ops.Len()),
		zap.Bool("transactional", f.transactional))

	result, err := c.WriteOperations(ctx, ops, &client.WriteOptions{Transactional: f.transactional})
	if err != nil {
		return err
	}

	printBatchSummary(result)
	if store != nil && !result.IsCompleteSuccess() {
		printInfo(fmt.Sprintf("%d chunk(s) spooled to %s; run 'tuplebatch replay' to retry them",
			len(result.Errors)+len(result.NotAttempted), store.Path()))
	}

	if !result.IsCompleteSuccess() {
		if err := a.flushMetrics(); err != nil {
			a.logger.Warn("failed to write metrics", zap.Error(err))
		}
		return &incompleteBatchError{result: result}
	}
	return nil
}

func readOperations(path string) (tuple.OperationSet, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "open operation file")
		}
		defer file.Close()
		r = file
	}
	ops, err := tuple.ReadOperations(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return ops, nil
}
