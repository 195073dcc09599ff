// Package batch splits an operation set into size-bounded chunks, sends the
// chunks with bounded parallelism through a retry policy, and folds the
// per-chunk outcomes into a single BatchResult.
//
// Per-chunk failures are data: they are reported in BatchResult, never as the
// error return of BatchWrite. Only configuration errors fail a call outright.
// Callers should check BatchResult.Err or BatchResult.IsCompleteSuccess.
package batch
