package substrate

import (
	"context"
	"sync/atomic"

	"github.com/0xmhha/chainprobe/internal/logger"
	"github.com/0xmhha/chainprobe/pkg/cache"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Chain is the subset of Client the storage reader needs
type Chain interface {
	LatestHeight(ctx context.Context) (uint64, error)
	FinalizedHeight(ctx context.Context) (uint64, error)
	BlockHash(ctx context.Context, height uint64) (common.Hash, error)
	Storage(ctx context.Context, key StorageKey, at common.Hash) ([]byte, bool, error)
}

// BatchChain is implemented by chains that resolve many block hashes in one request
type BatchChain interface {
	BlockHashes(ctx context.Context, heights []uint64) ([]common.Hash, error)
}

// SampleStore persists immutable chain data between runs
type SampleStore interface {
	GetBlockHash(height uint64) (common.Hash, bool, error)
	PutBlockHash(height uint64, hash common.Hash) error
	GetSample(hash common.Hash, key []byte) ([]byte, bool, error)
	PutSample(hash common.Hash, key []byte, value []byte) error
}

// ReaderConfig holds the optional collaborators of a StorageReader
type ReaderConfig struct {
	// Cache holds block hashes and samples in memory
	Cache *cache.Cache[[]byte]
	// Keys builds cache keys; defaults to a builder without prefix
	Keys *cache.KeyBuilder
	// Store persists finalized hashes and samples
	Store   SampleStore
	Metrics *Metrics
	Logger  *zap.Logger
}

// StorageReader reads raw storage values at historical heights.
// It satisfies locator.Reader[StorageKey, []byte].
type StorageReader struct {
	chain   Chain
	cache   *cache.Cache[[]byte]
	keys    *cache.KeyBuilder
	store   SampleStore
	metrics *Metrics
	logger  *zap.Logger

	// finalized is the highest height known to be final; hashes at or below it never change
	finalized atomic.Uint64
}

// NewStorageReader creates a reader over chain
func NewStorageReader(chain Chain, cfg *ReaderConfig) *StorageReader {
	if cfg == nil {
		cfg = &ReaderConfig{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	keys := cfg.Keys
	if keys == nil {
		keys = cache.NewKeyBuilder("")
	}

	return &StorageReader{
		chain:   chain,
		cache:   cfg.Cache,
		keys:    keys,
		store:   cfg.Store,
		metrics: cfg.Metrics,
		logger:  logger.WithComponent(log, "storage_reader"),
	}
}

// GetHeight returns the best block number and refreshes the finalized watermark
func (r *StorageReader) GetHeight(ctx context.Context) (uint64, error) {
	height, err := r.chain.LatestHeight(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := r.RefreshFinalized(ctx); err != nil {
		r.logger.Warn("failed to refresh finalized height", zap.Error(err))
	}
	return height, nil
}

// RefreshFinalized fetches the finalized height and raises the watermark
func (r *StorageReader) RefreshFinalized(ctx context.Context) (uint64, error) {
	height, err := r.chain.FinalizedHeight(ctx)
	if err != nil {
		return 0, err
	}
	for {
		cur := r.finalized.Load()
		if height <= cur || r.finalized.CompareAndSwap(cur, height) {
			break
		}
	}
	return height, nil
}

// Finalized returns the current finalized watermark
func (r *StorageReader) Finalized() uint64 {
	return r.finalized.Load()
}

// ReadAt returns the storage value of key at height. An absent entry reads as nil.
func (r *StorageReader) ReadAt(ctx context.Context, height uint64, key StorageKey) ([]byte, error) {
	hash, err := r.BlockHashAt(ctx, height)
	if err != nil {
		return nil, err
	}
	return r.StorageAt(ctx, hash, key)
}

// BlockHashAt resolves a height to its canonical hash. Finalized hashes are cached and persisted;
// hashes above the finalized height only live in the cache for its default TTL.
func (r *StorageReader) BlockHashAt(ctx context.Context, height uint64) (common.Hash, error) {
	final := height <= r.finalized.Load()
	if hash, ok := r.knownHash(height, final); ok {
		return hash, nil
	}

	hash, err := r.chain.BlockHash(ctx, height)
	if err != nil {
		return common.Hash{}, err
	}
	r.rememberHash(height, hash, final)
	return hash, nil
}

// BlockHashesAt resolves several heights. Known hashes come from the cache and store; the
// rest are fetched in one batch request when the chain supports batching.
func (r *StorageReader) BlockHashesAt(ctx context.Context, heights []uint64) ([]common.Hash, error) {
	finalized := r.finalized.Load()
	hashes := make([]common.Hash, len(heights))
	var missing []uint64
	var slots []int
	for i, height := range heights {
		if hash, ok := r.knownHash(height, height <= finalized); ok {
			hashes[i] = hash
			continue
		}
		missing = append(missing, height)
		slots = append(slots, i)
	}
	if len(missing) == 0 {
		return hashes, nil
	}

	batcher, ok := r.chain.(BatchChain)
	if !ok {
		for n, height := range missing {
			hash, err := r.chain.BlockHash(ctx, height)
			if err != nil {
				return nil, err
			}
			r.rememberHash(height, hash, height <= finalized)
			hashes[slots[n]] = hash
		}
		return hashes, nil
	}

	fetched, err := batcher.BlockHashes(ctx, missing)
	if err != nil {
		return nil, err
	}
	for n, hash := range fetched {
		r.rememberHash(missing[n], hash, missing[n] <= finalized)
		hashes[slots[n]] = hash
	}
	return hashes, nil
}

func (r *StorageReader) knownHash(height uint64, final bool) (common.Hash, bool) {
	cacheKey := r.keys.BlockHash(height)
	if r.cache != nil {
		if b, ok := r.cache.Get(cacheKey); ok {
			return common.BytesToHash(b), true
		}
	}
	if !final || r.store == nil {
		return common.Hash{}, false
	}
	hash, ok, err := r.store.GetBlockHash(height)
	if err != nil {
		r.logger.Warn("store lookup failed", zap.Uint64("height", height), zap.Error(err))
		return common.Hash{}, false
	}
	if ok {
		r.cacheSet(cacheKey, hash.Bytes(), true)
	}
	return hash, ok
}

func (r *StorageReader) rememberHash(height uint64, hash common.Hash, final bool) {
	r.cacheSet(r.keys.BlockHash(height), hash.Bytes(), final)
	if final && r.store != nil {
		if err := r.store.PutBlockHash(height, hash); err != nil {
			r.logger.Warn("failed to persist block hash", zap.Uint64("height", height), zap.Error(err))
		}
	}
}

// StorageAt reads key at a block hash. Values at a hash never change, so every result is cached.
func (r *StorageReader) StorageAt(ctx context.Context, hash common.Hash, key StorageKey) ([]byte, error) {
	cacheKey := r.keys.Sample(hash.Hex(), key.Hex())

	if r.cache != nil {
		if v, ok := r.cache.Get(cacheKey); ok {
			r.metrics.sampleRead("cache")
			return v, nil
		}
	}
	if r.store != nil {
		v, ok, err := r.store.GetSample(hash, key)
		if err != nil {
			r.logger.Warn("store lookup failed", zap.String("block", hash.Hex()), zap.Error(err))
		} else if ok {
			r.metrics.sampleRead("store")
			r.cacheSet(cacheKey, v, true)
			return v, nil
		}
	}

	value, _, err := r.chain.Storage(ctx, key, hash)
	if err != nil {
		return nil, err
	}
	r.metrics.sampleRead("rpc")

	r.cacheSet(cacheKey, value, true)
	if r.store != nil {
		if err := r.store.PutSample(hash, key, value); err != nil {
			r.logger.Warn("failed to persist sample", zap.String("block", hash.Hex()), zap.Error(err))
		}
	}
	return value, nil
}

func (r *StorageReader) cacheSet(key string, value []byte, immutable bool) {
	if r.cache == nil {
		return
	}
	if immutable {
		r.cache.SetImmutable(key, value)
	} else {
		r.cache.SetWithDefaultTTL(key, value)
	}
}
