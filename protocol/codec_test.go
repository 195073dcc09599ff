package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan-strohschein/tuplebatch/tuple"
)

func key(user, relation, object string) tuple.TupleKey {
	return tuple.TupleKey{User: user, Relation: relation, Object: object}
}

func TestCodecEncodeWrite(t *testing.T) {
	codec := NewCodec()

	tests := []struct {
		name     string
		chunk    tuple.Chunk
		params   WriteParams
		expected string
	}{
		{
			name:     "writes only",
			chunk:    tuple.Chunk{Operations: []tuple.Operation{tuple.Write(key("user:anne", "viewer", "doc:1"))}},
			expected: `{"writes":{"tuple_keys":[{"user":"user:anne","relation":"viewer","object":"doc:1"}]}}`,
		},
		{
			name:     "deletes only with model",
			chunk:    tuple.Chunk{Operations: []tuple.Operation{tuple.Delete(key("user:bob", "editor", "doc:2"))}},
			params:   WriteParams{AuthorizationModelID: "01HM"},
			expected: `{"deletes":{"tuple_keys":[{"user":"user:bob","relation":"editor","object":"doc:2"}]},"authorization_model_id":"01HM"}`,
		},
		{
			name: "mixed with duplicate handling",
			chunk: tuple.Chunk{Operations: []tuple.Operation{
				tuple.Delete(key("user:bob", "editor", "doc:2")),
				tuple.Write(key("user:anne", "viewer", "doc:1")),
			}},
			params: WriteParams{OnDuplicateWrites: OnDuplicateIgnore, OnMissingDeletes: OnMissingIgnore},
			expected: `{"writes":{"tuple_keys":[{"user":"user:anne","relation":"viewer","object":"doc:1"}],"on_duplicate":"ignore"},` +
				`"deletes":{"tuple_keys":[{"user":"user:bob","relation":"editor","object":"doc:2"}],"on_missing":"ignore"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := codec.EncodeWrite(tt.chunk, tt.params)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(result))
		})
	}
}

func TestCodecEncodeWriteDropsDeleteConditions(t *testing.T) {
	codec := NewCodec()
	k := key("user:anne", "viewer", "doc:1")
	k.Condition = &tuple.Condition{Name: "in_office_hours"}

	body, err := codec.EncodeWrite(tuple.Chunk{Operations: []tuple.Operation{tuple.Write(k), tuple.Delete(k)}}, WriteParams{})
	require.NoError(t, err)

	var raw map[string]map[string][]map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Contains(t, raw["writes"]["tuple_keys"][0], "condition")
	assert.NotContains(t, raw["deletes"]["tuple_keys"][0], "condition")
}

func TestCodecEncodeWriteRejects(t *testing.T) {
	codec := NewCodec()

	_, err := codec.EncodeWrite(tuple.Chunk{Index: 3}, WriteParams{})
	assert.ErrorContains(t, err, "chunk 3 has no operations")

	chunk := tuple.Chunk{Operations: []tuple.Operation{tuple.Write(key("u", "r", "o"))}}
	_, err = codec.EncodeWrite(chunk, WriteParams{OnDuplicateWrites: "overwrite"})
	assert.ErrorContains(t, err, "on_duplicate")
	_, err = codec.EncodeWrite(chunk, WriteParams{OnMissingDeletes: "skip"})
	assert.ErrorContains(t, err, "on_missing")
}

func TestCodecDecodeWrite(t *testing.T) {
	codec := NewCodec()
	chunk := tuple.Chunk{Operations: []tuple.Operation{
		tuple.Write(key("user:anne", "viewer", "doc:1")),
		tuple.Delete(key("user:bob", "editor", "doc:2")),
	}}

	body, err := codec.EncodeWrite(chunk, WriteParams{AuthorizationModelID: "m1"})
	require.NoError(t, err)

	req, err := codec.DecodeWrite(body)
	require.NoError(t, err)
	assert.Equal(t, "m1", req.AuthorizationModelID)
	assert.Equal(t, chunk.Operations, req.Operations())

	_, err = codec.DecodeWrite(nil)
	assert.Error(t, err)
	_, err = codec.DecodeWrite([]byte("{"))
	assert.Error(t, err)
}

func TestCodecDecodeError(t *testing.T) {
	codec := NewCodec()

	tests := []struct {
		name     string
		input    []byte
		expected APIError
	}{
		{
			name:     "api error body",
			input:    []byte(`{"code":"validation_error","message":"invalid tuple"}`),
			expected: APIError{Code: "validation_error", Message: "invalid tuple"},
		},
		{
			name:     "plain text body",
			input:    []byte("upstream connect error\n"),
			expected: APIError{Message: "upstream connect error"},
		},
		{
			name:     "empty body",
			input:    nil,
			expected: APIError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, codec.DecodeError(tt.input))
		})
	}
}

func BenchmarkCodecEncodeWrite(b *testing.B) {
	codec := NewCodec()
	ops := make([]tuple.Operation, 100)
	for i := range ops {
		ops[i] = tuple.Write(key("user:anne", "viewer", "doc:1"))
	}
	chunk := tuple.Chunk{Operations: ops}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = codec.EncodeWrite(chunk, WriteParams{})
	}
}
