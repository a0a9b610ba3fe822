package constants

import "time"

// API Server Constants
const (
	// DefaultAPIHost is the default API server host
	DefaultAPIHost = "localhost"

	// DefaultAPIPort is the default API server port
	DefaultAPIPort = 8080

	// MinPort is the minimum valid port number
	MinPort = 1

	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout
	DefaultWriteTimeout = 15 * time.Second

	// DefaultIdleTimeout is the default HTTP idle timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMaxHeaderBytes is the default maximum request header size (1 MB)
	DefaultMaxHeaderBytes = 1 << 20 // 1 MB

	// DefaultRateLimitPerSecond is the default per-IP rate limit (requests per second)
	DefaultRateLimitPerSecond = 50

	// DefaultRateLimitBurst is the default rate limit burst size
	DefaultRateLimitBurst = 100
)

// API Paths
const (
	// DefaultGraphQLPath is the default GraphQL endpoint path
	DefaultGraphQLPath = "/graphql"

	// DefaultGraphQLPlaygroundPath is the default GraphQL playground path
	DefaultGraphQLPlaygroundPath = "/playground"

	// DefaultJSONRPCPath is the default JSON-RPC endpoint path
	DefaultJSONRPCPath = "/rpc"

	// DefaultWebSocketPath is the default WebSocket endpoint path
	DefaultWebSocketPath = "/ws"

	// DefaultRESTPrefix is the prefix of the REST API
	DefaultRESTPrefix = "/api/v1"
)

// RPC Client Constants
const (
	// DefaultRPCEndpoint is a public Polkadot relay chain endpoint
	DefaultRPCEndpoint = "wss://rpc.polkadot.io"

	// DefaultRPCTimeout bounds dialling and each individual RPC call
	DefaultRPCTimeout = 30 * time.Second

	// DefaultRPCRateLimit is the default outgoing calls per second (0 = unlimited)
	DefaultRPCRateLimit = 0

	// DefaultRPCRateBurst is the default burst size for the RPC limiter
	DefaultRPCRateBurst = 10

	// DefaultKeysPageSize is the page size used with state_getKeysPaged
	DefaultKeysPageSize = 1000
)

// Cache Constants
const (
	// DefaultCacheSize is the maximum number of cached hashes and samples
	DefaultCacheSize = 200_000

	// DefaultCacheTTL applies to data above the finalized height
	DefaultCacheTTL = 6 * time.Second

	// DefaultCacheCleanupInterval is how often expired entries are swept
	DefaultCacheCleanupInterval = time.Minute
)

// Database Constants
const (
	// DefaultDatabasePath is the default pebble directory
	DefaultDatabasePath = "./data/chainprobe"

	// DefaultDatabaseCacheMB is the default pebble block cache size
	DefaultDatabaseCacheMB = 64
)

// Search Constants
const (
	// DefaultMaxConcurrentSearches bounds background searches
	DefaultMaxConcurrentSearches = 4

	// DefaultSearchHistory is how many finished searches are kept
	DefaultSearchHistory = 200

	// DefaultBridgeBlockWindow is the default block range scanned for bridge nonce changes
	DefaultBridgeBlockWindow = 10_000

	// DefaultBridgeNonceWindow is the default number of nonces below the current one to locate
	DefaultBridgeNonceWindow = 5

	// BridgeNonceBytes is the width of the u64 nonce at the start of a nonce value
	BridgeNonceBytes = 8

	// DriftReportThreshold is the smallest block/target gap worth reporting
	DriftReportThreshold = time.Minute

	// SecondsThreshold separates unix seconds from unix milliseconds in numeric timestamps
	SecondsThreshold = 100_000_000_000
)

// WebSocket Constants
const (
	// DefaultWriteWait is the time allowed to write a message to the peer
	DefaultWriteWait = 10 * time.Second

	// DefaultPongWait is the time allowed to read the next pong message from the peer
	DefaultPongWait = 60 * time.Second

	// DefaultPingPeriod sends pings to peer with this period (must be less than pong wait)
	DefaultPingPeriod = (DefaultPongWait * 9) / 10

	// DefaultMaxMessageSize is the maximum message size allowed from peer
	DefaultMaxMessageSize = 512 * 1024

	// DefaultClientBufferSize is the per-client send buffer
	DefaultClientBufferSize = 256
)
