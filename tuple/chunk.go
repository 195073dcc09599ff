package tuple

import (
	"encoding/json"

	"github.com/cespare/xxhash"
)

// Chunk is a contiguous, ordered slice of an OperationSet that is sent to
// the server in a single request. Index is zero-based.
type Chunk struct {
	Index      int
	Operations []Operation
}

// Len returns the number of operations in the chunk.
func (c Chunk) Len() int {
	return len(c.Operations)
}

// Writes returns the tuple keys of the chunk's write operations in order.
func (c Chunk) Writes() []TupleKey {
	return keysOf(c.Operations, KindWrite)
}

// Deletes returns the tuple keys of the chunk's delete operations in order.
func (c Chunk) Deletes() []TupleKey {
	return keysOf(c.Operations, KindDelete)
}

// Fingerprint returns a stable 64-bit digest of the chunk contents. Two
// chunks holding the same operations in the same order share a fingerprint
// regardless of their index.
func (c Chunk) Fingerprint() uint64 {
	d := xxhash.New()
	for _, op := range c.Operations {
		d.Write([]byte(op.Kind))
		d.Write([]byte{0})
		d.Write([]byte(op.Key.User))
		d.Write([]byte{0})
		d.Write([]byte(op.Key.Relation))
		d.Write([]byte{0})
		d.Write([]byte(op.Key.Object))
		if cond := op.Key.Condition; cond != nil {
			d.Write([]byte{0})
			d.Write([]byte(cond.Name))
			if len(cond.Context) > 0 {
				// map keys are sorted by encoding/json
				b, _ := json.Marshal(cond.Context)
				d.Write(b)
			}
		}
		d.Write([]byte{0x1e})
	}
	return d.Sum64()
}

func keysOf(ops []Operation, kind Kind) []TupleKey {
	keys := make([]TupleKey, 0, len(ops))
	for _, op := range ops {
		if op.Kind == kind {
			keys = append(keys, op.Key)
		}
	}
	return keys
}
