package main

import (
	"fmt"

	"github.com/0xmhha/chainprobe/internal/config"
	"github.com/0xmhha/chainprobe/pkg/cache"
	"github.com/0xmhha/chainprobe/pkg/locator"
	"github.com/0xmhha/chainprobe/pkg/search"
	"github.com/0xmhha/chainprobe/pkg/storage"
	"github.com/0xmhha/chainprobe/pkg/substrate"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const metricsNamespace = "chainprobe"

// app is the wired set of components every command runs on
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	client  *substrate.Client
	samples *cache.Cache[[]byte]
	store   storage.Storage
	reader  *substrate.StorageReader
	service *search.Service
}

// newKeyRegistry returns the default registry extended with the configured storage entries
func newKeyRegistry(cfg *config.Config) (*substrate.KeyRegistry, error) {
	registry := substrate.DefaultKeyRegistry()
	entries, err := cfg.StorageRegistryEntries()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := registry.Register(e); err != nil {
			return nil, fmt.Errorf("failed to register storage entry %s: %w", e.Name(), err)
		}
	}
	return registry, nil
}

func openStore(cfg *config.Config, log *zap.Logger) (storage.Storage, error) {
	if !cfg.Database.Enabled {
		return storage.NewMemoryStorage(), nil
	}

	storageConfig := storage.DefaultConfig(cfg.Database.Path)
	storageConfig.Cache = cfg.Database.CacheMB
	storageConfig.ReadOnly = cfg.Database.ReadOnly
	store, err := storage.NewPebbleStorage(storageConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store.SetLogger(log)

	log.Info("storage initialized", zap.String("path", cfg.Database.Path))
	return store, nil
}

// newApp connects to the node and builds the search service. reg receives the
// metrics; publisher may be nil.
func newApp(cfg *config.Config, log *zap.Logger, reg prometheus.Registerer, publisher search.Publisher) (*app, error) {
	registry, err := newKeyRegistry(cfg)
	if err != nil {
		return nil, err
	}

	rpcMetrics := substrate.NewMetrics(reg, metricsNamespace)
	client, err := substrate.NewClient(&substrate.Config{
		Endpoint:  cfg.RPC.Endpoint,
		Timeout:   cfg.RPC.Timeout,
		RateLimit: cfg.RPC.RateLimit,
		RateBurst: cfg.RPC.RateBurst,
		Metrics:   rpcMetrics,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: log, client: client}

	a.store, err = openStore(cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.samples = cache.New[[]byte](&cache.Config{
		MaxSize:         cfg.Cache.MaxSize,
		DefaultTTL:      cfg.Cache.DefaultTTL,
		CleanupInterval: cfg.Cache.CleanupInterval,
	})
	cache.RegisterMetrics(reg, metricsNamespace, "samples", a.samples)

	a.reader = substrate.NewStorageReader(client, &substrate.ReaderConfig{
		Cache:   a.samples,
		Store:   a.store,
		Metrics: rpcMetrics,
		Logger:  log,
	})

	a.service, err = search.NewService(&search.Config{
		Reader:            a.reader,
		Node:              client,
		Registry:          registry,
		Store:             a.store,
		Publisher:         publisher,
		Metrics:           locator.NewMetrics(reg, metricsNamespace),
		Logger:            log,
		MaxConcurrent:     cfg.Search.MaxConcurrent,
		HistoryLimit:      cfg.Search.HistoryLimit,
		BridgeBlockWindow: cfg.Search.BridgeBlockWindow,
		BridgeNonceWindow: cfg.Search.BridgeNonceWindow,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the components in reverse order of creation
func (a *app) Close() {
	if a.service != nil {
		a.service.Close()
	}
	if a.samples != nil {
		a.samples.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close storage", zap.Error(err))
		}
	}
	if a.client != nil {
		a.client.Close()
	}
}
