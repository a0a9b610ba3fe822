// Package search exposes the chain history searches as operations over a storage
// reader: block by timestamp, last change of a storage value, height at which a
// numeric value reaches a target, and bridge nonce changes. Every operation runs
// synchronously; the job registry in jobs.go runs them in the background.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/0xmhha/chainprobe/internal/constants"
	"github.com/0xmhha/chainprobe/internal/logger"
	"github.com/0xmhha/chainprobe/pkg/locator"
	"github.com/0xmhha/chainprobe/pkg/storage"
	"github.com/0xmhha/chainprobe/pkg/substrate"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Errors returned by the service
var (
	ErrInvalidRequest = errors.New("invalid search request")
	ErrInvalidKey     = substrate.ErrInvalidKey
	ErrJobNotFound    = errors.New("search not found")
	ErrJobFinished    = errors.New("search already finished")
	ErrBusy           = errors.New("too many searches running")
	ErrClosed         = errors.New("search service closed")
	ErrNoNode         = errors.New("node client not configured")
)

// Reader reads raw storage values at historical heights
type Reader interface {
	locator.Reader[substrate.StorageKey, []byte]
	BlockHashAt(ctx context.Context, height uint64) (common.Hash, error)
}

// Node is the part of the chain client used for chain metadata and key listing
type Node interface {
	ChainName(ctx context.Context) (string, error)
	RuntimeVersion(ctx context.Context, hash *common.Hash) (*substrate.RuntimeVersion, error)
	LatestHeight(ctx context.Context) (uint64, error)
	FinalizedHeight(ctx context.Context) (uint64, error)
	AllStorageKeys(ctx context.Context, prefix substrate.StorageKey, pageSize int, at *common.Hash) ([]substrate.StorageKey, error)
}

// ResultStore persists search records as JSON documents
type ResultStore interface {
	PutRecord(id string, data []byte) error
	GetRecord(id string) ([]byte, bool, error)
	ListRecords(limit int) ([][]byte, error)
	PruneRecords(keep int) (int, error)
}

// Publisher receives job progress and completion events
type Publisher interface {
	PublishProgress(p Progress)
	PublishDone(rec *Record)
}

// Config holds the collaborators and limits of a Service
type Config struct {
	// Reader is required
	Reader Reader

	// Node serves ChainInfo and ListBridgeChannels. Optional.
	Node Node

	// Registry decodes storage keys. Default: substrate.DefaultKeyRegistry()
	Registry *substrate.KeyRegistry

	// Store keeps finished searches. Default: in-memory store
	Store ResultStore

	// Publisher receives job events. Optional.
	Publisher Publisher

	Metrics *locator.Metrics
	Logger  *zap.Logger

	MaxConcurrent     int
	HistoryLimit      int
	BridgeBlockWindow uint64
	BridgeNonceWindow uint64
}

// Service runs searches against one chain
type Service struct {
	reader    Reader
	node      Node
	registry  *substrate.KeyRegistry
	store     ResultStore
	publisher Publisher
	metrics   *locator.Metrics
	logger    *zap.Logger

	historyLimit      int
	bridgeBlockWindow uint64
	bridgeNonceWindow uint64

	// job registry
	mu     sync.RWMutex
	jobs   map[string]*job
	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewService creates a search service
func NewService(cfg *Config) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Reader == nil {
		return nil, fmt.Errorf("reader cannot be nil")
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = substrate.DefaultKeyRegistry()
	}
	store := cfg.Store
	if store == nil {
		store = storage.NewMemoryStorage()
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = constants.DefaultMaxConcurrentSearches
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = constants.DefaultSearchHistory
	}
	blockWindow := cfg.BridgeBlockWindow
	if blockWindow == 0 {
		blockWindow = constants.DefaultBridgeBlockWindow
	}
	nonceWindow := cfg.BridgeNonceWindow
	if nonceWindow == 0 {
		nonceWindow = constants.DefaultBridgeNonceWindow
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		reader:            cfg.Reader,
		node:              cfg.Node,
		registry:          registry,
		store:             store,
		publisher:         cfg.Publisher,
		metrics:           cfg.Metrics,
		logger:            logger.WithComponent(log, "search"),
		historyLimit:      historyLimit,
		bridgeBlockWindow: blockWindow,
		bridgeNonceWindow: nonceWindow,
		jobs:              make(map[string]*job),
		sem:               make(chan struct{}, maxConcurrent),
		ctx:               ctx,
		cancel:            cancel,
	}

	if err := s.markInterrupted(); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

// Registry returns the key registry used to decode storage keys
func (s *Service) Registry() *substrate.KeyRegistry {
	return s.registry
}

// DecodeKey identifies the storage item a key belongs to
func (s *Service) DecodeKey(key string) (*substrate.DecodedKey, error) {
	k, err := substrate.ParseStorageKey(key)
	if err != nil {
		return nil, err
	}
	return s.registry.Decode(k)
}

// options builds the locator options of one search
func (s *Service) options(kind Kind, progress locator.ProgressFunc) *locator.Options {
	return &locator.Options{
		OnProgress: progress,
		Kind:       string(kind),
		Logger:     s.logger,
		Metrics:    s.metrics,
	}
}

// head returns the frontier height fixed for the duration of one search
func (s *Service) head(ctx context.Context) (uint64, error) {
	head, err := s.reader.GetHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get chain head: %w", err)
	}
	return head, nil
}

// blockHash looks up the hash of a result block. Failures are logged, not returned:
// the search result does not depend on it.
func (s *Service) blockHash(ctx context.Context, height uint64) common.Hash {
	hash, err := s.reader.BlockHashAt(ctx, height)
	if err != nil {
		s.logger.Warn("failed to get block hash for result",
			zap.Uint64("height", height),
			zap.Error(err))
		return common.Hash{}
	}
	return hash
}

// hashBatcher is implemented by readers that resolve many block hashes in one request
type hashBatcher interface {
	BlockHashesAt(ctx context.Context, heights []uint64) ([]common.Hash, error)
}

// blockHashes looks up the hashes of several result blocks, in one batch when the reader
// supports it. Like blockHash, failures leave zero hashes.
func (s *Service) blockHashes(ctx context.Context, heights []uint64) []common.Hash {
	if b, ok := s.reader.(hashBatcher); ok {
		hashes, err := b.BlockHashesAt(ctx, heights)
		if err == nil {
			return hashes
		}
		s.logger.Warn("failed to batch block hashes for results",
			zap.Int("blocks", len(heights)),
			zap.Error(err))
	}
	hashes := make([]common.Hash, len(heights))
	for i, height := range heights {
		hashes[i] = s.blockHash(ctx, height)
	}
	return hashes
}

func (s *Service) decodeKeyQuietly(key substrate.StorageKey) *substrate.DecodedKey {
	decoded, err := s.registry.Decode(key)
	if err != nil {
		return nil
	}
	return decoded
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
