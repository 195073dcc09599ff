// Package deadletter spools the chunks of a batch that failed or were never
// attempted to a local pebble database, so they can be listed and replayed.
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/dan-strohschein/tuplebatch/batch"
	"github.com/dan-strohschein/tuplebatch/protocol"
	"github.com/dan-strohschein/tuplebatch/tuple"
)

// Key format: dl/<batchID>/<chunk index, zero padded to 8 digits>
const (
	keyPrefix = "dl/"
	keyUpper  = "dl0" // '0' sorts directly after '/'
)

// ErrNotFound is returned when no entry exists for a batch and chunk.
var ErrNotFound = errors.New("dead-letter entry not found")

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("dead-letter store is closed")

// Reason tells why a chunk was spooled.
type Reason string

const (
	// ReasonFailed marks a chunk that was sent and failed.
	ReasonFailed Reason = "failed"
	// ReasonNotAttempted marks a chunk the batch halted before sending.
	ReasonNotAttempted Reason = "not_attempted"
)

// Entry is one spooled chunk.
type Entry struct {
	BatchID     string            `json:"batch_id"`
	ChunkIndex  int               `json:"chunk_index"`
	Fingerprint uint64            `json:"fingerprint"`
	Operations  []tuple.Operation `json:"operations"`
	Reason      Reason            `json:"reason"`
	Error       string            `json:"error,omitempty"`
	ErrorCode   string            `json:"error_code,omitempty"`
	Retryable   bool              `json:"retryable"`
	RecordedAt  time.Time         `json:"recorded_at"`
}

// Chunk rebuilds the spooled chunk.
func (e Entry) Chunk() tuple.Chunk {
	return tuple.Chunk{Index: e.ChunkIndex, Operations: e.Operations}
}

// Store is a pebble-backed dead-letter spool. It is safe for concurrent use;
// Close waits for operations in progress.
type Store struct {
	db     *pebble.DB
	path   string
	logger *zap.Logger

	mu     sync.RWMutex // held shared by every operation, exclusively by Close
	closed bool
}

// Open opens (or creates) the spool at path. A nil logger disables logging.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "deadletter"), zap.String("path", path))

	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, errors.Wrapf(err, "create dead-letter directory %q", path)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("failed to open dead-letter store", zap.Error(err))
		return nil, errors.Wrapf(err, "open dead-letter store %q", path)
	}

	logger.Info("dead-letter store opened")
	return &Store{db: db, path: path, logger: logger}, nil
}

// Path returns the directory the spool lives in.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database. Calling Close more than once is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "close dead-letter store")
	}
	s.logger.Info("dead-letter store closed")
	return nil
}

// acquire takes the shared lock unless the store is closed. Callers release
// it with s.mu.RUnlock.
func (s *Store) acquire() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	return nil
}

// Record spools every failed and never-attempted chunk of a batch in one
// synced write. It satisfies the client's failure sink contract.
func (s *Store) Record(ctx context.Context, batchID string, failed []batch.ChunkError, notAttempted []tuple.Chunk) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateBatchID(batchID); err != nil {
		return err
	}
	if len(failed) == 0 && len(notAttempted) == 0 {
		return nil
	}

	now := time.Now().UTC()
	b := s.db.NewBatch()
	defer b.Close()

	put := func(e Entry) error {
		value, err := json.Marshal(e)
		if err != nil {
			return errors.Wrapf(err, "encode entry %s/%d", e.BatchID, e.ChunkIndex)
		}
		return b.Set(entryKey(e.BatchID, e.ChunkIndex), value, nil)
	}

	for _, ce := range failed {
		e := Entry{
			BatchID:     batchID,
			ChunkIndex:  ce.ChunkIndex,
			Fingerprint: ce.Chunk.Fingerprint(),
			Operations:  ce.Chunk.Operations,
			Reason:      ReasonFailed,
			Retryable:   protocol.IsRetryable(ce.Err),
			RecordedAt:  now,
		}
		if ce.Err != nil {
			e.Error = ce.Err.Error()
			if code := protocol.CodeOf(ce.Err); code != 0 {
				e.ErrorCode = code.String()
			}
		}
		if err := put(e); err != nil {
			return err
		}
	}
	for _, ch := range notAttempted {
		e := Entry{
			BatchID:     batchID,
			ChunkIndex:  ch.Index,
			Fingerprint: ch.Fingerprint(),
			Operations:  ch.Operations,
			Reason:      ReasonNotAttempted,
			RecordedAt:  now,
		}
		if err := put(e); err != nil {
			return err
		}
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return errors.Wrapf(err, "commit dead-letter entries for batch %s", batchID)
	}

	s.logger.Info("recorded dead-letter entries",
		zap.String("batch_id", batchID),
		zap.Int("failed", len(failed)),
		zap.Int("not_attempted", len(notAttempted)))
	return nil
}

// List returns every entry ordered by batch ID, then chunk index.
func (s *Store) List() ([]Entry, error) {
	return s.scan([]byte(keyPrefix), []byte(keyUpper))
}

// ListBatch returns the entries of one batch ordered by chunk index.
func (s *Store) ListBatch(batchID string) ([]Entry, error) {
	if err := validateBatchID(batchID); err != nil {
		return nil, err
	}
	prefix := batchPrefix(batchID)
	upper := append([]byte(nil), prefix...)
	upper[len(upper)-1]++ // '/' -> '0'
	return s.scan(prefix, upper)
}

// Get returns the entry for batchID and chunkIndex, or ErrNotFound.
func (s *Store) Get(batchID string, chunkIndex int) (Entry, error) {
	if err := s.acquire(); err != nil {
		return Entry{}, err
	}
	defer s.mu.RUnlock()
	if err := validateBatchID(batchID); err != nil {
		return Entry{}, err
	}

	value, closer, err := s.db.Get(entryKey(batchID, chunkIndex))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, errors.Wrapf(ErrNotFound, "batch %s chunk %d", batchID, chunkIndex)
	}
	if err != nil {
		return Entry{}, errors.Wrapf(err, "read entry %s/%d", batchID, chunkIndex)
	}
	defer closer.Close()

	var e Entry
	if err := json.Unmarshal(value, &e); err != nil {
		return Entry{}, errors.Wrapf(err, "decode entry %s/%d", batchID, chunkIndex)
	}
	return e, nil
}

// Delete removes one entry. Deleting a missing entry is not an error.
func (s *Store) Delete(batchID string, chunkIndex int) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mu.RUnlock()
	if err := validateBatchID(batchID); err != nil {
		return err
	}
	if err := s.db.Delete(entryKey(batchID, chunkIndex), pebble.Sync); err != nil {
		return errors.Wrapf(err, "delete entry %s/%d", batchID, chunkIndex)
	}
	return nil
}

// Count returns the number of spooled entries.
func (s *Store) Count() (int, error) {
	if err := s.acquire(); err != nil {
		return 0, err
	}
	defer s.mu.RUnlock()
	return s.count()
}

func (s *Store) count() (int, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyUpper),
	})
	if err != nil {
		return 0, errors.Wrap(err, "open dead-letter iterator")
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, errors.Wrap(iter.Error(), "scan dead-letter entries")
}

// Purge removes every entry and returns how many were removed.
func (s *Store) Purge() (int, error) {
	if err := s.acquire(); err != nil {
		return 0, err
	}
	defer s.mu.RUnlock()

	n, err := s.count()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.db.DeleteRange([]byte(keyPrefix), []byte(keyUpper), pebble.Sync); err != nil {
		return 0, errors.Wrap(err, "purge dead-letter entries")
	}
	s.logger.Info("purged dead-letter entries", zap.Int("count", n))
	return n, nil
}

// BatchSummary counts the spooled entries of one batch.
type BatchSummary struct {
	BatchID string
	Entries int
}

// Batches summarizes the spool per batch, ordered by batch ID. It reads
// keys only.
func (s *Store) Batches() ([]BatchSummary, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyUpper),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open dead-letter iterator")
	}
	defer iter.Close()

	var out []BatchSummary
	for iter.First(); iter.Valid(); iter.Next() {
		batchID, _, err := parseKey(iter.Key())
		if err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].BatchID == batchID {
			out[n-1].Entries++
			continue
		}
		out = append(out, BatchSummary{BatchID: batchID, Entries: 1})
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "scan dead-letter entries")
	}
	return out, nil
}

func (s *Store) scan(lower, upper []byte) ([]Entry, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, errors.Wrap(err, "open dead-letter iterator")
	}
	defer iter.Close()

	var entries []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, errors.Wrapf(err, "decode entry %q", iter.Key())
		}
		entries = append(entries, e)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "scan dead-letter entries")
	}
	return entries, nil
}

func batchPrefix(batchID string) []byte {
	return []byte(keyPrefix + batchID + "/")
}

func entryKey(batchID string, chunkIndex int) []byte {
	return []byte(fmt.Sprintf("%s%s/%08d", keyPrefix, batchID, chunkIndex))
}

// parseKey splits a key built by entryKey.
func parseKey(key []byte) (string, int, error) {
	rest, ok := strings.CutPrefix(string(key), keyPrefix)
	if !ok {
		return "", 0, errors.Newf("not a dead-letter key: %q", key)
	}
	i := strings.LastIndexByte(rest, '/')
	if i <= 0 {
		return "", 0, errors.Newf("malformed dead-letter key: %q", key)
	}
	index, err := strconv.Atoi(rest[i+1:])
	if err != nil {
		return "", 0, errors.Wrapf(err, "malformed dead-letter key: %q", key)
	}
	return rest[:i], index, nil
}

func validateBatchID(batchID string) error {
	if batchID == "" {
		return errors.New("batch ID is required")
	}
	if strings.ContainsRune(batchID, '/') {
		return errors.Newf("batch ID %q must not contain '/'", batchID)
	}
	return nil
}
