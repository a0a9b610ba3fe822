package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/0xmhha/chainprobe/internal/config"
	"github.com/0xmhha/chainprobe/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// globalOptions holds the persistent flags shared by every command
type globalOptions struct {
	configFile string
	rpc        string
	logLevel   string
	logFormat  string
	dbPath     string
	noDB       bool
	jsonOutput bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "chainprobe",
		Short: "Locate when Substrate chain state changed by bisecting historical storage",
		Long: `chainprobe answers "when did this happen" questions against a Substrate node:
the block produced at a given time, the block in which a storage value last changed,
the block at which a counter reached a value, and recent bridge nonce changes.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "path to configuration file (YAML)")
	flags.StringVar(&opts.rpc, "rpc", "", "Substrate node RPC endpoint (ws:// or http://)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format (json, console)")
	flags.StringVar(&opts.dbPath, "db", "", "persist samples and searches in this pebble directory")
	flags.BoolVar(&opts.noDB, "no-db", false, "keep everything in memory even if the config enables the database")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print results as JSON")

	root.AddCommand(
		newServeCmd(opts),
		newFindBlockCmd(opts),
		newFindChangeCmd(opts),
		newFindNumberCmd(opts),
		newBridgeChangesCmd(opts),
		newBridgeChannelsCmd(opts),
		newBlockDateCmd(opts),
		newChainInfoCmd(opts),
		newDecodeKeyCmd(opts),
		newVersionCmd(opts),
	)
	return root
}

// loadConfig loads .env, the config file and the environment, then applies the flags
func loadConfig(opts *globalOptions) (*config.Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}

	applyFlags(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads environment variables from a .env file if it exists
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// applyFlags applies command-line flags to configuration
func applyFlags(cfg *config.Config, opts *globalOptions) {
	if opts.rpc != "" {
		cfg.RPC.Endpoint = opts.rpc
	}
	if opts.dbPath != "" {
		cfg.Database.Enabled = true
		cfg.Database.Path = opts.dbPath
	}
	if opts.noDB {
		cfg.Database.Enabled = false
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
}

// initLogger builds the process logger; output goes to stderr so stdout only carries results
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log.With(zap.String("service", "chainprobe")), nil
}

func newVersionCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{
				"version":   version,
				"commit":    commit,
				"buildTime": buildTime,
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), info)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "chainprobe version %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", buildTime)
			return nil
		},
	}
}
