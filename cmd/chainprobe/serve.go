package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/0xmhha/chainprobe/internal/config"
	"github.com/0xmhha/chainprobe/pkg/api"
	"github.com/0xmhha/chainprobe/pkg/api/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type serveOptions struct {
	host      string
	port      int
	rateLimit bool
}

func newServeCmd(opts *globalOptions) *cobra.Command {
	so := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (REST, JSON-RPC, GraphQL, WebSocket)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, so)
		},
	}
	cmd.Flags().StringVar(&so.host, "host", "", "API listen host")
	cmd.Flags().IntVar(&so.port, "port", 0, "API listen port")
	cmd.Flags().BoolVar(&so.rateLimit, "rate-limit", false, "enable per-IP rate limiting")
	return cmd
}

// apiConfig translates the config file section into the server configuration
func apiConfig(cfg *config.Config, so *serveOptions) *api.Config {
	c := api.DefaultConfig()
	c.Host = cfg.API.Host
	c.Port = cfg.API.Port
	c.EnableCORS = cfg.API.EnableCORS
	c.AllowedOrigins = cfg.API.AllowedOrigins
	c.EnableGraphQL = cfg.API.EnableGraphQL
	c.EnableJSONRPC = cfg.API.EnableJSONRPC
	c.EnableWebSocket = cfg.API.EnableWebSocket
	c.EnableRateLimit = cfg.API.RateLimitPerSecond > 0
	if cfg.API.RateLimitPerSecond > 0 {
		c.RateLimitPerSecond = cfg.API.RateLimitPerSecond
	}
	if cfg.API.RateLimitBurst > 0 {
		c.RateLimitBurst = cfg.API.RateLimitBurst
	}

	if so.host != "" {
		c.Host = so.host
	}
	if so.port > 0 {
		c.Port = so.port
	}
	if so.rateLimit {
		c.EnableRateLimit = true
	}
	return c
}

func runServe(parent context.Context, opts *globalOptions, so *serveOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting chainprobe",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_time", buildTime),
		zap.String("rpc_endpoint", cfg.RPC.Endpoint),
		zap.Bool("database", cfg.Database.Enabled),
	)

	hub := websocket.NewHub(log)
	go hub.Run()
	defer hub.Stop()

	a, err := newApp(cfg, log, prometheus.DefaultRegisterer, hub)
	if err != nil {
		return err
	}
	defer a.Close()

	server, err := api.NewServer(apiConfig(cfg, so), log, api.Options{
		Service: a.service,
		Hub:     hub,
		Version: version,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errChan:
		if err != nil {
			log.Error("API server stopped with error", zap.Error(err))
			return err
		}
	}

	log.Info("shutting down gracefully")
	if err := server.Stop(context.Background()); err != nil {
		log.Error("failed to stop API server gracefully", zap.Error(err))
		return err
	}

	log.Info("chainprobe stopped")
	return nil
}
