package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan-strohschein/tuplebatch/testutil"
	"github.com/dan-strohschein/tuplebatch/tuple"
)

func TestBuildKey(t *testing.T) {
	k := testutil.BuildKey()
	require.NoError(t, k.Validate())
	assert.Equal(t, "viewer", k.Relation)

	other := testutil.BuildKey()
	assert.NotEqual(t, k.User, other.User)
	assert.NotEqual(t, k.Object, other.Object)
}

func TestBuildKeyWithOptions(t *testing.T) {
	k := testutil.BuildKey(
		testutil.WithUser("user:anne"),
		testutil.WithRelation("owner"),
		testutil.WithObject("folder:root"),
		testutil.WithCondition("in_region", map[string]any{"region": "eu"}),
	)
	assert.Equal(t, "folder:root#owner@user:anne", k.String())
	require.NotNil(t, k.Condition)
	assert.Equal(t, "in_region", k.Condition.Name)
}

func TestBuildOperations(t *testing.T) {
	ops := testutil.BuildOperations(3, 2)
	assert.Equal(t, 5, ops.Len())
	assert.Equal(t, 3, ops.Writes())
	assert.Equal(t, 2, ops.Deletes())
	assert.Equal(t, tuple.KindWrite, ops[2].Kind)
	assert.Equal(t, tuple.KindDelete, ops[3].Kind)
	require.NoError(t, ops.Validate())
}

func TestRandomOperations(t *testing.T) {
	ops := testutil.RandomOperations(50)
	assert.Len(t, ops, 50)
	require.NoError(t, ops.Validate())
}
