package batch

import (
	"github.com/dan-strohschein/tuplebatch/tuple"
)

// Chunk splits ops into consecutive windows of maxPerChunk operations, the
// last window possibly smaller. An empty set yields no chunks.
//
// Chunks share the backing array of ops. Each window's capacity is clipped
// to its length, so appending to a chunk never writes into ops.
func Chunk(ops tuple.OperationSet, maxPerChunk int) ([]tuple.Chunk, error) {
	if maxPerChunk < 1 {
		return nil, newConfigError(ErrCodeInvalidChunkSize, "MaxOperationsPerChunk", maxPerChunk,
			"max operations per chunk must be at least 1")
	}
	if len(ops) == 0 {
		return nil, nil
	}

	n := (len(ops) + maxPerChunk - 1) / maxPerChunk
	chunks := make([]tuple.Chunk, 0, n)
	for start := 0; start < len(ops); start += maxPerChunk {
		end := min(start+maxPerChunk, len(ops))
		chunks = append(chunks, tuple.Chunk{
			Index:      len(chunks),
			Operations: ops[start:end:end],
		})
	}
	return chunks, nil
}
