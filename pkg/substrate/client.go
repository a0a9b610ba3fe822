// Package substrate talks to a Substrate node over JSON-RPC and reads storage at
// historical blocks.
package substrate

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client wraps a Substrate JSON-RPC connection
type Client struct {
	rpcClient *rpc.Client
	endpoint  string
	limiter   *rate.Limiter
	metrics   *Metrics
	logger    *zap.Logger
}

// Config holds client configuration
type Config struct {
	Endpoint string
	Timeout  time.Duration

	// RateLimit caps outgoing calls per second (0 = unlimited)
	RateLimit float64
	// RateBurst is the limiter burst size (default 1)
	RateBurst int

	Metrics *Metrics
	Logger  *zap.Logger
}

// NewClient dials the endpoint and verifies the connection
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	ctx := context.Background()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	rpcClient, err := rpc.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	client := NewClientWithRPC(rpcClient, cfg)

	if err := client.Ping(ctx); err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to ping RPC endpoint: %w", err)
	}

	client.logger.Info("connected to Substrate RPC",
		zap.String("endpoint", cfg.Endpoint))

	return client, nil
}

// NewClientWithRPC wraps an already dialled rpc.Client. cfg.Endpoint is informational.
func NewClientWithRPC(rpcClient *rpc.Client, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		rpcClient: rpcClient,
		endpoint:  cfg.Endpoint,
		limiter:   limiter,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// Ping verifies the connection to the RPC endpoint
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ChainName(ctx)
	return err
}

// Close closes the client connection
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// Endpoint returns the endpoint the client was created for
func (c *Client) Endpoint() string {
	return c.endpoint
}

// call performs a single throttled JSON-RPC call
func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if err := c.wait(ctx, 1); err != nil {
		return err
	}

	start := time.Now()
	err := c.rpcClient.CallContext(ctx, result, method, args...)
	c.metrics.observe(method, start, err)
	return err
}

func (c *Client) wait(ctx context.Context, n int) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.WaitN(ctx, n); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// ChainName returns the chain name reported by system_chain
func (c *Client) ChainName(ctx context.Context) (string, error) {
	var name string
	if err := c.call(ctx, &name, "system_chain"); err != nil {
		return "", fmt.Errorf("failed to get chain name: %w", err)
	}
	return name, nil
}

// Header returns the header of the given block, or of the best block when hash is nil
func (c *Client) Header(ctx context.Context, hash *common.Hash) (*Header, error) {
	var header *Header
	args := []interface{}{}
	if hash != nil {
		args = append(args, *hash)
	}
	if err := c.call(ctx, &header, "chain_getHeader", args...); err != nil {
		return nil, fmt.Errorf("failed to get header: %w", err)
	}
	if header == nil {
		return nil, ErrBlockNotFound
	}
	return header, nil
}

// LatestHeight returns the number of the best block
func (c *Client) LatestHeight(ctx context.Context) (uint64, error) {
	header, err := c.Header(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest height: %w", err)
	}
	return header.Number.Uint64(), nil
}

// FinalizedHead returns the hash of the last finalized block
func (c *Client) FinalizedHead(ctx context.Context) (common.Hash, error) {
	var hash common.Hash
	if err := c.call(ctx, &hash, "chain_getFinalizedHead"); err != nil {
		return common.Hash{}, fmt.Errorf("failed to get finalized head: %w", err)
	}
	return hash, nil
}

// FinalizedHeight returns the number of the last finalized block
func (c *Client) FinalizedHeight(ctx context.Context) (uint64, error) {
	hash, err := c.FinalizedHead(ctx)
	if err != nil {
		return 0, err
	}
	header, err := c.Header(ctx, &hash)
	if err != nil {
		return 0, fmt.Errorf("failed to get finalized header %s: %w", hash.Hex(), err)
	}
	return header.Number.Uint64(), nil
}

// BlockHash returns the canonical hash at height
func (c *Client) BlockHash(ctx context.Context, height uint64) (common.Hash, error) {
	var hash *common.Hash
	if err := c.call(ctx, &hash, "chain_getBlockHash", height); err != nil {
		return common.Hash{}, fmt.Errorf("failed to get block hash at %d: %w", height, err)
	}
	if hash == nil {
		return common.Hash{}, fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
	}
	return *hash, nil
}

// BlockHashes fetches the canonical hashes of several heights in one batch request
func (c *Client) BlockHashes(ctx context.Context, heights []uint64) ([]common.Hash, error) {
	if len(heights) == 0 {
		return []common.Hash{}, nil
	}

	results := make([]*common.Hash, len(heights))
	batch := make([]rpc.BatchElem, len(heights))
	for i, h := range heights {
		batch[i] = rpc.BatchElem{
			Method: "chain_getBlockHash",
			Args:   []interface{}{h},
			Result: &results[i],
		}
	}

	if err := c.wait(ctx, len(batch)); err != nil {
		return nil, err
	}
	start := time.Now()
	err := c.rpcClient.BatchCallContext(ctx, batch)
	c.metrics.observe("chain_getBlockHash_batch", start, err)
	if err != nil {
		return nil, fmt.Errorf("batch call failed: %w", err)
	}

	hashes := make([]common.Hash, len(heights))
	for i, elem := range batch {
		if elem.Error != nil {
			c.logger.Error("failed to fetch block hash in batch",
				zap.Uint64("block_number", heights[i]),
				zap.Error(elem.Error))
			return nil, fmt.Errorf("failed to fetch block hash %d: %w", heights[i], elem.Error)
		}
		if results[i] == nil {
			return nil, fmt.Errorf("%w: height %d", ErrBlockNotFound, heights[i])
		}
		hashes[i] = *results[i]
	}

	return hashes, nil
}

// Storage reads a storage value at a block. found is false when the entry does not exist.
func (c *Client) Storage(ctx context.Context, key StorageKey, at common.Hash) (value []byte, found bool, err error) {
	var raw *hexutil.Bytes
	if err := c.call(ctx, &raw, "state_getStorage", key.Hex(), at); err != nil {
		return nil, false, fmt.Errorf("failed to get storage %s at %s: %w", key.Hex(), at.Hex(), err)
	}
	if raw == nil {
		return nil, false, nil
	}
	return []byte(*raw), true, nil
}

// StorageKeysPaged lists up to count keys under prefix, starting after startKey (may be nil)
func (c *Client) StorageKeysPaged(ctx context.Context, prefix StorageKey, count int, startKey StorageKey, at *common.Hash) ([]StorageKey, error) {
	args := []interface{}{prefix.Hex(), count}
	if startKey != nil || at != nil {
		var start interface{}
		if startKey != nil {
			start = startKey.Hex()
		}
		args = append(args, start)
	}
	if at != nil {
		args = append(args, *at)
	}

	var keys []hexutil.Bytes
	if err := c.call(ctx, &keys, "state_getKeysPaged", args...); err != nil {
		return nil, fmt.Errorf("failed to list keys under %s: %w", prefix.Hex(), err)
	}

	out := make([]StorageKey, len(keys))
	for i, k := range keys {
		out[i] = StorageKey(k)
	}
	return out, nil
}

// AllStorageKeys pages through every key under prefix at a block
func (c *Client) AllStorageKeys(ctx context.Context, prefix StorageKey, pageSize int, at *common.Hash) ([]StorageKey, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}

	var all []StorageKey
	var start StorageKey
	for {
		page, err := c.StorageKeysPaged(ctx, prefix, pageSize, start, at)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
		start = page[len(page)-1]
	}
}

// RuntimeVersion returns the runtime version at a block, or at the best block when hash is nil
func (c *Client) RuntimeVersion(ctx context.Context, hash *common.Hash) (*RuntimeVersion, error) {
	var version RuntimeVersion
	args := []interface{}{}
	if hash != nil {
		args = append(args, *hash)
	}
	if err := c.call(ctx, &version, "state_getRuntimeVersion", args...); err != nil {
		return nil, fmt.Errorf("failed to get runtime version: %w", err)
	}
	return &version, nil
}
