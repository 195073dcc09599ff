package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dan-strohschein/tuplebatch/tuple"
)

// Duplicate and missing tuple handling accepted by the write endpoint.
const (
	OnDuplicateError  = "error"
	OnDuplicateIgnore = "ignore"
	OnMissingError    = "error"
	OnMissingIgnore   = "ignore"
)

// Codec handles encoding and decoding of write requests
type Codec interface {
	// EncodeWrite encodes a chunk into a write request body
	EncodeWrite(chunk tuple.Chunk, params WriteParams) ([]byte, error)

	// DecodeWrite parses a write request body
	DecodeWrite(data []byte) (*WriteRequest, error)

	// DecodeError parses an error response body
	DecodeError(data []byte) APIError
}

// WriteParams carries the per-request fields that are not tuples.
type WriteParams struct {
	AuthorizationModelID string
	OnDuplicateWrites    string
	OnMissingDeletes     string
}

// Validate rejects unknown duplicate/missing handling modes.
func (p WriteParams) Validate() error {
	switch p.OnDuplicateWrites {
	case "", OnDuplicateError, OnDuplicateIgnore:
	default:
		return fmt.Errorf("invalid on_duplicate mode %q", p.OnDuplicateWrites)
	}
	switch p.OnMissingDeletes {
	case "", OnMissingError, OnMissingIgnore:
	default:
		return fmt.Errorf("invalid on_missing mode %q", p.OnMissingDeletes)
	}
	return nil
}

// WriteRequest is the body of a write call.
type WriteRequest struct {
	Writes               *WriteRequestWrites  `json:"writes,omitempty"`
	Deletes              *WriteRequestDeletes `json:"deletes,omitempty"`
	AuthorizationModelID string               `json:"authorization_model_id,omitempty"`
}

// WriteRequestWrites holds tuples to create.
type WriteRequestWrites struct {
	TupleKeys   []tuple.TupleKey `json:"tuple_keys"`
	OnDuplicate string           `json:"on_duplicate,omitempty"`
}

// WriteRequestDeletes holds tuples to remove. Conditions are never sent for
// deletes.
type WriteRequestDeletes struct {
	TupleKeys []DeleteKey `json:"tuple_keys"`
	OnMissing string      `json:"on_missing,omitempty"`
}

// DeleteKey is a tuple key without a condition.
type DeleteKey struct {
	User     string `json:"user"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

// Operations rebuilds the operation list of a decoded request, writes first.
func (r *WriteRequest) Operations() []tuple.Operation {
	var ops []tuple.Operation
	if r.Writes != nil {
		for _, k := range r.Writes.TupleKeys {
			ops = append(ops, tuple.Write(k))
		}
	}
	if r.Deletes != nil {
		for _, k := range r.Deletes.TupleKeys {
			ops = append(ops, tuple.Delete(tuple.TupleKey{User: k.User, Relation: k.Relation, Object: k.Object}))
		}
	}
	return ops
}

// APIError is the error body returned by the server.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSONCodec implements Codec using the JSON write API format
type JSONCodec struct {
	// Buffer pool for encoding operations
	bufferPool sync.Pool
}

// NewCodec creates a new JSON write codec
func NewCodec() Codec {
	return &JSONCodec{
		bufferPool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

// EncodeWrite encodes the chunk's writes and deletes into one request body
func (c *JSONCodec) EncodeWrite(chunk tuple.Chunk, params WriteParams) ([]byte, error) {
	if chunk.Len() == 0 {
		return nil, fmt.Errorf("chunk %d has no operations", chunk.Index)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	req := WriteRequest{AuthorizationModelID: params.AuthorizationModelID}
	if writes := chunk.Writes(); len(writes) > 0 {
		req.Writes = &WriteRequestWrites{TupleKeys: writes, OnDuplicate: params.OnDuplicateWrites}
	}
	if deletes := chunk.Deletes(); len(deletes) > 0 {
		keys := make([]DeleteKey, len(deletes))
		for i, k := range deletes {
			keys[i] = DeleteKey{User: k.User, Relation: k.Relation, Object: k.Object}
		}
		req.Deletes = &WriteRequestDeletes{TupleKeys: keys, OnMissing: params.OnMissingDeletes}
	}

	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(&req); err != nil {
		return nil, fmt.Errorf("encode chunk %d: %w", chunk.Index, err)
	}

	// Return a copy without the encoder's trailing newline since we're reusing the buffer
	out := bytes.TrimRight(buf.Bytes(), "\n")
	result := make([]byte, len(out))
	copy(result, out)
	return result, nil
}

// DecodeWrite parses a write request body
func (c *JSONCodec) DecodeWrite(data []byte) (*WriteRequest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty request data")
	}
	var req WriteRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode write request: %w", err)
	}
	return &req, nil
}

// DecodeError parses an error response body
func (c *JSONCodec) DecodeError(data []byte) APIError {
	return DecodeAPIError(data)
}

// DecodeAPIError parses an error body. A body that is not a JSON error object
// is returned as the message.
func DecodeAPIError(data []byte) APIError {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return APIError{}
	}
	var apiErr APIError
	if err := json.Unmarshal(data, &apiErr); err != nil {
		return APIError{Message: string(data)}
	}
	return apiErr
}
