package storage

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryStorage is a Storage kept in process memory. Used by tests and --no-db runs.
type MemoryStorage struct {
	mu      sync.RWMutex
	hashes  map[uint64]common.Hash
	samples map[string][]byte
	records map[string][]byte
	closed  bool
}

// NewMemoryStorage creates an empty in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		hashes:  make(map[uint64]common.Hash),
		samples: make(map[string][]byte),
		records: make(map[string][]byte),
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// GetBlockHash returns the stored hash at height
func (m *MemoryStorage) GetBlockHash(height uint64) (common.Hash, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return common.Hash{}, false, ErrClosed
	}
	h, ok := m.hashes[height]
	return h, ok, nil
}

// PutBlockHash stores the hash at height
func (m *MemoryStorage) PutBlockHash(height uint64, hash common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.hashes[height] = hash
	return nil
}

// GetSample returns the stored value of storageKey at a block
func (m *MemoryStorage) GetSample(hash common.Hash, storageKey []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	v, ok := m.samples[string(SampleKey(hash, storageKey))]
	return cloneBytes(v), ok, nil
}

// PutSample stores the value of storageKey at a block
func (m *MemoryStorage) PutSample(hash common.Hash, storageKey []byte, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.samples[string(SampleKey(hash, storageKey))] = cloneBytes(value)
	return nil
}

// PutRecord stores a search record
func (m *MemoryStorage) PutRecord(id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.records[id] = cloneBytes(data)
	return nil
}

// GetRecord returns a search record by id
func (m *MemoryStorage) GetRecord(id string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	v, ok := m.records[id]
	return cloneBytes(v), ok, nil
}

// DeleteRecord removes a search record
func (m *MemoryStorage) DeleteRecord(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.records, id)
	return nil
}

// sortedIDs returns record ids newest first (must be called with lock held)
func (m *MemoryStorage) sortedIDs() []string {
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids
}

// ListRecords returns up to limit records, newest first
func (m *MemoryStorage) ListRecords(limit int) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	ids := m.sortedIDs()
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([][]byte, len(ids))
	for i, id := range ids {
		out[i] = cloneBytes(m.records[id])
	}
	return out, nil
}

// PruneRecords deletes all but the newest keep records
func (m *MemoryStorage) PruneRecords(keep int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}

	ids := m.sortedIDs()
	if keep < 0 {
		keep = 0
	}
	deleted := 0
	for _, id := range ids[min(keep, len(ids)):] {
		delete(m.records, id)
		deleted++
	}
	return deleted, nil
}

// Stats returns entry counts
func (m *MemoryStorage) Stats() (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Stats{
		BlockHashes: uint64(len(m.hashes)),
		Samples:     uint64(len(m.samples)),
		Records:     uint64(len(m.records)),
	}, nil
}

// Close marks the storage closed
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Storage = (*MemoryStorage)(nil)
