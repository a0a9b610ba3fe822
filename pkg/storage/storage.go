// Package storage persists immutable chain reads and finished search records.
package storage

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// Common errors
var (
	// ErrNotFound is returned when a key is not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidData is returned when stored data cannot be decoded
	ErrInvalidData = errors.New("invalid data")

	// ErrClosed is returned when operating on a closed storage
	ErrClosed = errors.New("storage closed")

	// ErrReadOnly is returned when attempting to write to a read-only storage
	ErrReadOnly = errors.New("storage is read-only")
)

// SampleStore holds finalized block hashes and storage samples keyed by block hash.
// Both never change once written.
type SampleStore interface {
	GetBlockHash(height uint64) (common.Hash, bool, error)
	PutBlockHash(height uint64, hash common.Hash) error
	GetSample(hash common.Hash, key []byte) ([]byte, bool, error)
	PutSample(hash common.Hash, key []byte, value []byte) error
}

// RecordStore holds serialized search records. Ids sort in creation order.
type RecordStore interface {
	PutRecord(id string, data []byte) error
	GetRecord(id string) ([]byte, bool, error)
	// ListRecords returns up to limit records, newest first (limit <= 0 = all)
	ListRecords(limit int) ([][]byte, error)
	DeleteRecord(id string) error
	// PruneRecords deletes all but the newest keep records and returns how many were removed
	PruneRecords(keep int) (int, error)
}

// Storage is the full persistence layer
type Storage interface {
	SampleStore
	RecordStore

	// Stats returns entry counts
	Stats() (*Stats, error)

	// Close releases resources
	Close() error
}

// Stats holds storage statistics
type Stats struct {
	BlockHashes uint64 `json:"block_hashes"`
	Samples     uint64 `json:"samples"`
	Records     uint64 `json:"records"`
}

// Config holds storage configuration
type Config struct {
	// Path to the database directory
	Path string

	// Cache size in MB (default: 64)
	Cache int

	// MaxOpenFiles is the maximum number of open files (default: 500)
	MaxOpenFiles int

	// WriteBuffer size in MB (default: 16)
	WriteBuffer int

	// ReadOnly opens the database in read-only mode
	ReadOnly bool
}

// DefaultConfig returns a default configuration
func DefaultConfig(path string) *Config {
	return &Config{
		Path:         path,
		Cache:        64, // 64 MB
		MaxOpenFiles: 500,
		WriteBuffer:  16, // 16 MB
		ReadOnly:     false,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("path cannot be empty")
	}
	if c.Cache < 0 {
		return errors.New("cache size cannot be negative")
	}
	if c.MaxOpenFiles < 0 {
		return errors.New("max open files cannot be negative")
	}
	if c.WriteBuffer < 0 {
		return errors.New("write buffer size cannot be negative")
	}
	return nil
}
