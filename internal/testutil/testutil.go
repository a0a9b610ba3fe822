// Package testutil provides an in-memory chain and small helpers for tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/binary"
	"math/big"
	"sort"
	"sync"
	"testing"

	"github.com/0xmhha/chainprobe/pkg/substrate"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// NewTestLogger creates a logger that writes through t.Log
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
}

// HashOf returns a deterministic block hash for a height
func HashOf(height uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(height + 1))
}

// LE64 encodes v as an 8-byte little-endian value, the SCALE encoding of a u64
func LE64(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}

// ValueFunc returns the raw storage value at a height; nil means the entry is missing
type ValueFunc func(height uint64) []byte

// Counter returns a u64 that is incremented at each of the given heights
func Counter(at ...uint64) ValueFunc {
	sorted := append([]uint64(nil), at...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return func(height uint64) []byte {
		n := sort.Search(len(sorted), func(i int) bool { return sorted[i] > height })
		return LE64(uint64(n))
	}
}

// Timestamps returns Timestamp.Now values: missing at genesis, then genesisMs + h*blockMs
func Timestamps(genesisMs, blockMs uint64) ValueFunc {
	return func(height uint64) []byte {
		if height == 0 {
			return nil
		}
		return LE64(genesisMs + height*blockMs)
	}
}

// Chain is an in-memory chain. It implements the reader and node interfaces used by the
// search service, counts reads and can inject failures.
type Chain struct {
	mu        sync.Mutex
	head      uint64
	finalized uint64
	name      string
	runtime   substrate.RuntimeVersion
	values    map[string]ValueFunc
	failures  map[uint64]error
	onRead    func(height uint64)
	reads     int
	batches   int
}

// NewChain creates a chain with the given head; every height is final
func NewChain(head uint64) *Chain {
	return &Chain{
		head:      head,
		finalized: head,
		name:      "Synthetic",
		runtime:   substrate.RuntimeVersion{SpecName: "synthetic", SpecVersion: 1},
		values:    make(map[string]ValueFunc),
		failures:  make(map[uint64]error),
	}
}

// SetValue defines the storage value under key at every height
func (c *Chain) SetValue(key substrate.StorageKey, fn ValueFunc) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[string(key)] = fn
	return c
}

// SetHead moves the chain head
func (c *Chain) SetHead(head uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = head
	if c.finalized > head {
		c.finalized = head
	}
}

// FailAt makes every read at height return err
func (c *Chain) FailAt(height uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[height] = err
}

// OnRead registers a hook called before every storage read
func (c *Chain) OnRead(fn func(height uint64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRead = fn
}

// Reads returns the number of storage reads served
func (c *Chain) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// GetHeight returns the head
func (c *Chain) GetHeight(ctx context.Context) (uint64, error) {
	return c.LatestHeight(ctx)
}

// LatestHeight returns the head
func (c *Chain) LatestHeight(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

// FinalizedHeight returns the finalized height
func (c *Chain) FinalizedHeight(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalized, nil
}

// ChainName returns the chain name
func (c *Chain) ChainName(ctx context.Context) (string, error) {
	return c.name, ctx.Err()
}

// RuntimeVersion returns a fixed runtime version
func (c *Chain) RuntimeVersion(ctx context.Context, _ *common.Hash) (*substrate.RuntimeVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rv := c.runtime
	return &rv, nil
}

// BlockHashAt returns HashOf(height) for heights up to the head
func (c *Chain) BlockHashAt(ctx context.Context, height uint64) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if height > c.head {
		return common.Hash{}, substrate.ErrBlockNotFound
	}
	return HashOf(height), nil
}

// BlockHashesAt returns the hashes of several heights as one batch
func (c *Chain) BlockHashesAt(ctx context.Context, heights []uint64) ([]common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches++
	hashes := make([]common.Hash, len(heights))
	for i, height := range heights {
		if height > c.head {
			return nil, substrate.ErrBlockNotFound
		}
		hashes[i] = HashOf(height)
	}
	return hashes, nil
}

// HashBatches returns the number of BlockHashesAt calls
func (c *Chain) HashBatches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches
}

// ReadAt returns the value of key at height
func (c *Chain) ReadAt(ctx context.Context, height uint64, key substrate.StorageKey) ([]byte, error) {
	c.mu.Lock()
	hook := c.onRead
	c.mu.Unlock()
	if hook != nil {
		hook(height)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if err := c.failures[height]; err != nil {
		return nil, err
	}
	if height > c.head {
		return nil, substrate.ErrBlockNotFound
	}
	fn, ok := c.values[string(key)]
	if !ok {
		return nil, nil
	}
	return fn(height), nil
}

// AllStorageKeys returns the defined keys under prefix in key order
func (c *Chain) AllStorageKeys(ctx context.Context, prefix substrate.StorageKey, _ int, _ *common.Hash) ([]substrate.StorageKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]substrate.StorageKey, 0)
	for k := range c.values {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, substrate.StorageKey(k))
		}
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	return keys, nil
}
