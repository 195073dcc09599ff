// Package tuple defines the relationship-tuple operations that are written to
// or deleted from an authorization store, and the chunks they are split into
// for transmission.
package tuple

import (
	"fmt"
)

// Kind is the kind of mutation an Operation performs.
type Kind string

const (
	// KindWrite creates a relationship tuple.
	KindWrite Kind = "write"
	// KindDelete removes a relationship tuple.
	KindDelete Kind = "delete"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindWrite || k == KindDelete
}

// Condition is a named condition attached to a written tuple.
type Condition struct {
	Name    string         `json:"name"`
	Context map[string]any `json:"context,omitempty"`
}

// TupleKey identifies a relationship: user has relation on object.
type TupleKey struct {
	User      string     `json:"user"`
	Relation  string     `json:"relation"`
	Object    string     `json:"object"`
	Condition *Condition `json:"condition,omitempty"`
}

// String renders the key as object#relation@user.
func (k TupleKey) String() string {
	return fmt.Sprintf("%s#%s@%s", k.Object, k.Relation, k.User)
}

// Validate checks that all identifying fields are present.
func (k TupleKey) Validate() error {
	switch {
	case k.User == "":
		return fmt.Errorf("tuple key %q: user is required", k.String())
	case k.Relation == "":
		return fmt.Errorf("tuple key %q: relation is required", k.String())
	case k.Object == "":
		return fmt.Errorf("tuple key %q: object is required", k.String())
	}
	if k.Condition != nil && k.Condition.Name == "" {
		return fmt.Errorf("tuple key %q: condition name is required", k.String())
	}
	return nil
}

// Operation is a single write-or-delete instruction. Operations are values
// and are never modified once built.
type Operation struct {
	Kind Kind     `json:"op"`
	Key  TupleKey `json:"key"`
}

// Write builds a write operation for key.
func Write(key TupleKey) Operation {
	return Operation{Kind: KindWrite, Key: key}
}

// Delete builds a delete operation for key.
func Delete(key TupleKey) Operation {
	return Operation{Kind: KindDelete, Key: key}
}

// Validate checks the operation kind and its tuple key.
func (o Operation) Validate() error {
	if !o.Kind.Valid() {
		return fmt.Errorf("unknown operation kind %q", o.Kind)
	}
	return o.Key.Validate()
}

// OperationSet is the ordered list of operations forming one logical batch.
type OperationSet []Operation

// NewOperationSet builds a set holding all writes followed by all deletes.
func NewOperationSet(writes, deletes []TupleKey) OperationSet {
	ops := make(OperationSet, 0, len(writes)+len(deletes))
	for _, k := range writes {
		ops = append(ops, Write(k))
	}
	for _, k := range deletes {
		ops = append(ops, Delete(k))
	}
	return ops
}

// Len returns the number of operations.
func (s OperationSet) Len() int {
	return len(s)
}

// Writes returns the number of write operations.
func (s OperationSet) Writes() int {
	return countKind(s, KindWrite)
}

// Deletes returns the number of delete operations.
func (s OperationSet) Deletes() int {
	return countKind(s, KindDelete)
}

// Validate returns the first invalid operation, annotated with its position.
func (s OperationSet) Validate() error {
	for i, op := range s {
		if err := op.Validate(); err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
	}
	return nil
}

func countKind(ops []Operation, kind Kind) int {
	n := 0
	for _, op := range ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}
