package tuple

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// maxLineSize bounds a single JSON line; tuples with large condition
// contexts still fit comfortably.
const maxLineSize = 1 << 20

// fileRecord is the on-disk shape of one operation in a JSON lines file.
type fileRecord struct {
	Op        Kind       `json:"op"`
	User      string     `json:"user"`
	Relation  string     `json:"relation"`
	Object    string     `json:"object"`
	Condition *Condition `json:"condition,omitempty"`
}

// ReadOperations parses a JSON lines stream of operations. Blank lines and
// lines beginning with '#' are ignored. Every operation is validated; the
// error names the 1-based line it came from.
func ReadOperations(r io.Reader) (OperationSet, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var ops OperationSet
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}

		var rec fileRecord
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		op := Operation{
			Kind: rec.Op,
			Key: TupleKey{
				User:      rec.User,
				Relation:  rec.Relation,
				Object:    rec.Object,
				Condition: rec.Condition,
			},
		}
		if err := op.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ops = append(ops, op)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", line+1, err)
	}
	return ops, nil
}

// WriteOperations encodes ops as JSON lines, the format ReadOperations reads.
func WriteOperations(w io.Writer, ops []Operation) error {
	enc := json.NewEncoder(w)
	for _, op := range ops {
		rec := fileRecord{
			Op:        op.Kind,
			User:      op.Key.User,
			Relation:  op.Key.Relation,
			Object:    op.Key.Object,
			Condition: op.Key.Condition,
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}
