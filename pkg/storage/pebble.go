package storage

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// PebbleStorage implements Storage using PebbleDB
type PebbleStorage struct {
	db     *pebble.DB
	config *Config
	logger *zap.Logger
	closed atomic.Bool
}

// NewPebbleStorage creates a new PebbleDB storage
func NewPebbleStorage(cfg *Config) (*PebbleStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cache := pebble.NewCache(int64(cfg.Cache) << 20) // Convert MB to bytes
	defer cache.Unref()

	opts := &pebble.Options{
		Cache:        cache,
		MaxOpenFiles: cfg.MaxOpenFiles,
		MemTableSize: uint64(cfg.WriteBuffer) << 20,
		ReadOnly:     cfg.ReadOnly,
	}

	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &PebbleStorage{
		db:     db,
		config: cfg,
		logger: zap.NewNop(),
	}, nil
}

// SetLogger sets the logger for the storage
func (s *PebbleStorage) SetLogger(logger *zap.Logger) {
	s.logger = logger
}

// ensureNotClosed checks if storage is closed
func (s *PebbleStorage) ensureNotClosed() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// ensureWritable checks that storage is open and not read-only
func (s *PebbleStorage) ensureWritable() error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	if s.config.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

// Close closes the storage and releases resources
func (s *PebbleStorage) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// get returns a copy of the value at key
func (s *PebbleStorage) get(key []byte) ([]byte, bool, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, false, err
	}

	value, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer closer.Close()

	// Copy the value as it's only valid until closer.Close()
	result := make([]byte, len(value))
	copy(result, value)
	return result, true, nil
}

func (s *PebbleStorage) set(key, value []byte) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return s.db.Set(key, value, pebble.NoSync)
}

// GetBlockHash returns the stored finalized hash at height
func (s *PebbleStorage) GetBlockHash(height uint64) (common.Hash, bool, error) {
	value, ok, err := s.get(BlockHashKey(height))
	if err != nil || !ok {
		return common.Hash{}, false, err
	}
	if len(value) != common.HashLength {
		return common.Hash{}, false, fmt.Errorf("%w: block hash at %d has %d bytes", ErrInvalidData, height, len(value))
	}
	return common.BytesToHash(value), true, nil
}

// PutBlockHash stores the finalized hash at height
func (s *PebbleStorage) PutBlockHash(height uint64, hash common.Hash) error {
	return s.set(BlockHashKey(height), hash.Bytes())
}

// GetSample returns the stored value of storageKey at a block
func (s *PebbleStorage) GetSample(hash common.Hash, storageKey []byte) ([]byte, bool, error) {
	return s.get(SampleKey(hash, storageKey))
}

// PutSample stores the value of storageKey at a block. A nil value records an absent entry.
func (s *PebbleStorage) PutSample(hash common.Hash, storageKey []byte, value []byte) error {
	return s.set(SampleKey(hash, storageKey), value)
}

// PutRecord stores a search record
func (s *PebbleStorage) PutRecord(id string, data []byte) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return s.db.Set(SearchRecordKey(id), data, pebble.Sync)
}

// GetRecord returns a search record by id
func (s *PebbleStorage) GetRecord(id string) ([]byte, bool, error) {
	return s.get(SearchRecordKey(id))
}

// DeleteRecord removes a search record
func (s *PebbleStorage) DeleteRecord(id string) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	return s.db.Delete(SearchRecordKey(id), pebble.Sync)
}

// ListRecords returns up to limit records, newest first
func (s *PebbleStorage) ListRecords(limit int) ([][]byte, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	prefix := []byte(prefixSearches)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: incrementPrefix(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	records := make([][]byte, 0)
	for iter.Last(); iter.Valid(); iter.Prev() {
		if limit > 0 && len(records) >= limit {
			break
		}
		value := make([]byte, len(iter.Value()))
		copy(value, iter.Value())
		records = append(records, value)
	}

	return records, iter.Error()
}

// PruneRecords deletes all but the newest keep records
func (s *PebbleStorage) PruneRecords(keep int) (int, error) {
	if err := s.ensureWritable(); err != nil {
		return 0, err
	}

	prefix := []byte(prefixSearches)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: incrementPrefix(prefix),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	batch := s.db.NewBatch()
	defer batch.Close()

	seen, deleted := 0, 0
	for iter.Last(); iter.Valid(); iter.Prev() {
		seen++
		if seen <= keep {
			continue
		}
		if err := batch.Delete(iter.Key(), nil); err != nil {
			return 0, fmt.Errorf("failed to delete record: %w", err)
		}
		deleted++
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}

	if batch.Count() > 0 {
		if err := batch.Commit(pebble.Sync); err != nil {
			return 0, fmt.Errorf("failed to commit batch: %w", err)
		}
		s.logger.Debug("pruned search records", zap.Int("deleted", deleted), zap.Int("kept", keep))
	}
	return deleted, nil
}

// CountByPrefix counts all keys with the given prefix
func (s *PebbleStorage) CountByPrefix(prefix []byte) (uint64, error) {
	if err := s.ensureNotClosed(); err != nil {
		return 0, err
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: incrementPrefix(prefix),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var count uint64
	for iter.First(); iter.Valid(); iter.Next() {
		count++
	}

	return count, iter.Error()
}

// Stats returns entry counts
func (s *PebbleStorage) Stats() (*Stats, error) {
	hashes, err := s.CountByPrefix([]byte(prefixHashes))
	if err != nil {
		return nil, err
	}
	samples, err := s.CountByPrefix([]byte(prefixSamples))
	if err != nil {
		return nil, err
	}
	records, err := s.CountByPrefix([]byte(prefixSearches))
	if err != nil {
		return nil, err
	}
	return &Stats{BlockHashes: hashes, Samples: samples, Records: records}, nil
}

var _ Storage = (*PebbleStorage)(nil)
