package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dan-strohschein/tuplebatch/batch"
	"github.com/dan-strohschein/tuplebatch/protocol"
)

const maxErrorWidth = 72

func printBatchSummary(r batch.BatchResult) {
	printHeader("Batch " + r.BatchID)
	printTable([]string{"", ""}, [][]string{
		{"operations", humanize.Comma(int64(r.TotalOperations))},
		{"chunks", humanize.Comma(int64(r.TotalChunks))},
		{"succeeded", humanize.Comma(int64(r.SuccessfulChunks))},
		{"failed", humanize.Comma(int64(r.FailedChunks))},
		{"not attempted", humanize.Comma(int64(len(r.NotAttempted)))},
		{"success rate", humanize.FtoaWithDigits(r.SuccessRate()*100, 1) + "%"},
		{"duration", r.Duration.Round(time.Millisecond).String()},
	})

	if len(r.Errors) > 0 {
		printHeader("Failed chunks")
		rows := make([][]string, 0, len(r.Errors))
		for _, ce := range r.Errors {
			rows = append(rows, []string{
				strconv.Itoa(ce.ChunkIndex),
				humanize.Comma(int64(ce.Chunk.Len())),
				yesNo(protocol.IsRetryable(ce.Err)),
				truncate(errorText(ce.Err), maxErrorWidth),
			})
		}
		printTable([]string{"chunk", "ops", "retryable", "error"}, rows)
	}

	fmt.Fprintln(stdout)
	switch {
	case r.IsCompleteSuccess():
		printSuccess(fmt.Sprintf("wrote %s operations in %s chunk(s)",
			humanize.Comma(int64(r.TotalOperations)), humanize.Comma(int64(r.TotalChunks))))
	case r.Halted():
		printWarning(fmt.Sprintf("batch halted after %d of %d chunks", r.Attempted(), r.TotalChunks))
	case r.IsPartialSuccess():
		printWarning(fmt.Sprintf("batch partially applied: %d of %d chunks failed", r.FailedChunks, r.TotalChunks))
	default:
		printError("no chunk was written")
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return strings.Join(strings.Fields(err.Error()), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
