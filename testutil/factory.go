package testutil

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/dan-strohschein/tuplebatch/tuple"
)

var (
	userSeq   atomic.Int64
	objectSeq atomic.Int64
)

// relations used by random keys
var relations = []string{"viewer", "editor", "owner", "member", "parent"}

// KeyOption modifies a tuple key built by BuildKey.
type KeyOption func(*tuple.TupleKey)

// WithUser sets the key's user.
func WithUser(user string) KeyOption {
	return func(k *tuple.TupleKey) { k.User = user }
}

// WithRelation sets the key's relation.
func WithRelation(relation string) KeyOption {
	return func(k *tuple.TupleKey) { k.Relation = relation }
}

// WithObject sets the key's object.
func WithObject(object string) KeyOption {
	return func(k *tuple.TupleKey) { k.Object = object }
}

// WithCondition attaches a named condition.
func WithCondition(name string, context map[string]any) KeyOption {
	return func(k *tuple.TupleKey) { k.Condition = &tuple.Condition{Name: name, Context: context} }
}

// sequenceUser returns a unique user identifier.
func sequenceUser() string {
	return fmt.Sprintf("user:%d", userSeq.Add(1))
}

// sequenceObject returns a unique document identifier.
func sequenceObject() string {
	return fmt.Sprintf("document:%d", objectSeq.Add(1))
}

// BuildKey creates a unique viewer key with optional overrides.
func BuildKey(options ...KeyOption) tuple.TupleKey {
	k := tuple.TupleKey{
		User:     sequenceUser(),
		Relation: "viewer",
		Object:   sequenceObject(),
	}
	for _, opt := range options {
		opt(&k)
	}
	return k
}

// BuildKeys creates count unique keys.
func BuildKeys(count int, options ...KeyOption) []tuple.TupleKey {
	keys := make([]tuple.TupleKey, count)
	for i := range keys {
		keys[i] = BuildKey(options...)
	}
	return keys
}

// BuildOperations creates writes followed by deletes, all with unique keys.
func BuildOperations(writes, deletes int) tuple.OperationSet {
	return tuple.NewOperationSet(BuildKeys(writes), BuildKeys(deletes))
}

// RandomOperations creates n operations with random kinds and relations.
func RandomOperations(n int) tuple.OperationSet {
	ops := make(tuple.OperationSet, n)
	for i := range ops {
		k := BuildKey(WithRelation(relations[rand.Intn(len(relations))]))
		if rand.Intn(2) == 0 {
			ops[i] = tuple.Write(k)
		} else {
			ops[i] = tuple.Delete(k)
		}
	}
	return ops
}
