package batch

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dan-strohschein/tuplebatch/testutil"
	"github.com/dan-strohschein/tuplebatch/tuple"
)

func TestChunk(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		k     int
		sizes []int
	}{
		{"empty set", 0, 10, nil},
		{"exact multiple", 150, 50, []int{50, 50, 50}},
		{"remainder", 7, 3, []int{3, 3, 1}},
		{"one per chunk", 3, 1, []int{1, 1, 1}},
		{"chunk larger than set", 4, 100, []int{4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := testutil.BuildOperations(tt.n, 0)
			chunks, err := Chunk(ops, tt.k)
			require.NoError(t, err)
			require.Len(t, chunks, len(tt.sizes))
			for i, c := range chunks {
				assert.Equal(t, i, c.Index)
				assert.Equal(t, tt.sizes[i], c.Len())
			}
		})
	}
}

func TestChunkRejectsInvalidSize(t *testing.T) {
	for _, k := range []int{0, -1} {
		_, err := Chunk(testutil.BuildOperations(3, 0), k)
		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, ErrCodeInvalidChunkSize, cfgErr.Code)
	}
}

func TestChunkKeepsWritesAndDeletesInCallerOrder(t *testing.T) {
	ops := testutil.BuildOperations(2, 2)
	chunks, err := Chunk(ops, 3)
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Equal(t, []tuple.Kind{tuple.KindWrite, tuple.KindWrite, tuple.KindDelete},
		[]tuple.Kind{chunks[0].Operations[0].Kind, chunks[0].Operations[1].Kind, chunks[0].Operations[2].Kind})
	assert.Equal(t, tuple.KindDelete, chunks[1].Operations[0].Kind)
}

func TestChunkDoesNotLeakAppendsIntoCallerSet(t *testing.T) {
	ops := testutil.BuildOperations(4, 0)
	orig := ops[2]

	chunks, err := Chunk(ops, 2)
	require.NoError(t, err)

	_ = append(chunks[0].Operations, tuple.Delete(testutil.BuildKey()))
	assert.Equal(t, orig, ops[2])
}

func TestChunkPartitionProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 500).Draw(rt, "n")
		k := rapid.IntRange(1, 120).Draw(rt, "k")
		ops := testutil.RandomOperations(n)

		chunks, err := Chunk(ops, k)
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}

		want := (n + k - 1) / k
		if len(chunks) != want {
			rt.Fatalf("got %d chunks, want ceil(%d/%d) = %d", len(chunks), n, k, want)
		}

		var joined []tuple.Operation
		for i, c := range chunks {
			if c.Index != i {
				rt.Fatalf("chunk %d has index %d", i, c.Index)
			}
			if c.Len() < 1 || c.Len() > k {
				rt.Fatalf("chunk %d has size %d, want 1..%d", i, c.Len(), k)
			}
			if i < len(chunks)-1 && c.Len() != k {
				rt.Fatalf("non-final chunk %d has size %d, want %d", i, c.Len(), k)
			}
			joined = append(joined, c.Operations...)
		}

		if len(joined) != n {
			rt.Fatalf("concatenation has %d operations, want %d", len(joined), n)
		}
		for i := range joined {
			if joined[i] != ops[i] {
				rt.Fatalf("operation %d differs after concatenation", i)
			}
		}
	})
}

func TestChunkDeterminismProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("chunking twice yields identical chunks", prop.ForAll(
		func(n, k int) bool {
			ops := testutil.RandomOperations(n)
			first, err1 := Chunk(ops, k)
			second, err2 := Chunk(ops, k)
			if err1 != nil || err2 != nil || len(first) != len(second) {
				return false
			}
			for i := range first {
				if first[i].Index != second[i].Index || first[i].Fingerprint() != second[i].Fingerprint() {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 300),
		gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}
