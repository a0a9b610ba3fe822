package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/0xmhha/chainprobe/pkg/locator"
	"github.com/0xmhha/chainprobe/pkg/search"
	"github.com/0xmhha/chainprobe/pkg/substrate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// progressPrinter writes the narrowed window of a running search to w
func progressPrinter(w io.Writer) locator.ProgressFunc {
	var last locator.Window
	return func(win locator.Window) {
		if win == last {
			return
		}
		last = win
		fmt.Fprintf(w, "searching blocks #%d – #%d\n", win.Low, win.High)
	}
}

// runOnChain wires the components, runs fn until it returns or the process is
// interrupted, and prints the result
func runOnChain(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, svc *search.Service, progress locator.ProgressFunc) (interface{}, error)) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	a, err := newApp(cfg, log, prometheus.NewRegistry(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := fn(ctx, a.service, progressPrinter(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), result, opts.jsonOutput)
}

func newFindBlockCmd(opts *globalOptions) *cobra.Command {
	var policy string
	cmd := &cobra.Command{
		Use:   "find-block <timestamp>",
		Short: "Find the block produced at a point in time",
		Long: `Find the block produced at a point in time. The timestamp is unix seconds,
unix milliseconds or a date such as 2024-03-01 or 2024-03-01T12:00:00Z.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := search.TimestampRequest{Timestamp: args[0], Policy: policy}
			if err := req.Validate(); err != nil {
				return err
			}
			return runOnChain(cmd, opts, func(ctx context.Context, svc *search.Service, p locator.ProgressFunc) (interface{}, error) {
				return svc.FindBlockByTimestamp(ctx, req, p)
			})
		},
	}
	cmd.Flags().StringVar(&policy, "policy", "", "first_at_or_above (default) or nearest")
	return cmd
}

func newFindChangeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "find-change <key>",
		Short: "Find the block in which a storage value last changed",
		Long: `Find the block in which a storage value took its current value. The key is a
0x-prefixed storage key or a well-known name such as Timestamp.Now or Session.CurrentIndex.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := search.StorageChangeRequest{Key: args[0]}
			if err := req.Validate(); err != nil {
				return err
			}
			return runOnChain(cmd, opts, func(ctx context.Context, svc *search.Service, p locator.ProgressFunc) (interface{}, error) {
				return svc.FindStorageChange(ctx, req, p)
			})
		},
	}
}

func newFindNumberCmd(opts *globalOptions) *cobra.Command {
	var (
		policy string
		width  int
	)
	cmd := &cobra.Command{
		Use:   "find-number <key> <target>",
		Short: "Find the block at which a numeric storage value reached a target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := search.StorageNumberRequest{Key: args[0], Target: args[1], Policy: policy, Width: width}
			if err := req.Validate(); err != nil {
				return err
			}
			return runOnChain(cmd, opts, func(ctx context.Context, svc *search.Service, p locator.ProgressFunc) (interface{}, error) {
				return svc.FindStorageNumber(ctx, req, p)
			})
		},
	}
	cmd.Flags().StringVar(&policy, "policy", "", "nearest (default) or first_at_or_above")
	cmd.Flags().IntVar(&width, "width", 0, "decode only the first N bytes of the value")
	return cmd
}

func newBridgeChangesCmd(opts *globalOptions) *cobra.Command {
	var (
		mode        string
		blockWindow uint64
		nonceWindow uint64
	)
	cmd := &cobra.Command{
		Use:   "bridge-changes <channel>",
		Short: "List recent inbound nonce changes of a bridge channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := search.BridgeNonceRequest{
				Channel:     args[0],
				Mode:        mode,
				BlockWindow: blockWindow,
				NonceWindow: nonceWindow,
			}
			if err := req.Validate(); err != nil {
				return err
			}
			return runOnChain(cmd, opts, func(ctx context.Context, svc *search.Service, p locator.ProgressFunc) (interface{}, error) {
				return svc.FindBridgeNonceChanges(ctx, req, p)
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", search.BridgeModeBlocks, "blocks: scan the last --blocks blocks; nonces: locate the last --nonces nonces")
	cmd.Flags().Uint64Var(&blockWindow, "blocks", 0, "block window (default from config)")
	cmd.Flags().Uint64Var(&nonceWindow, "nonces", 0, "nonce window (default from config)")
	return cmd
}

func newBridgeChannelsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bridge-channels",
		Short: "List bridge channels and their current inbound nonce",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnChain(cmd, opts, func(ctx context.Context, svc *search.Service, _ locator.ProgressFunc) (interface{}, error) {
				return svc.ListBridgeChannels(ctx)
			})
		},
	}
}

func newBlockDateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "block-date <height>",
		Short: "Print the timestamp of a block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			height, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid block height %q", args[0])
			}
			return runOnChain(cmd, opts, func(ctx context.Context, svc *search.Service, _ locator.ProgressFunc) (interface{}, error) {
				return svc.BlockDate(ctx, height)
			})
		},
	}
}

func newChainInfoCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chain-info",
		Short: "Print chain name, runtime and heights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnChain(cmd, opts, func(ctx context.Context, svc *search.Service, _ locator.ProgressFunc) (interface{}, error) {
				return svc.ChainInfo(ctx)
			})
		},
	}
}

func newDecodeKeyCmd(opts *globalOptions) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "decode-key <key>",
		Short: "Identify the storage item a key belongs to",
		Long: "Identify the storage item a key belongs to. No node connection is needed.\n" +
			"The key is hex or one of: " + strings.Join(substrate.WellKnownKeyNames(), ", "),
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			registry, err := newKeyRegistry(cfg)
			if err != nil {
				return err
			}
			if list {
				return printEntries(cmd.OutOrStdout(), registry.Entries(), opts.jsonOutput)
			}
			key, err := substrate.ResolveKey(args[0])
			if err != nil {
				return err
			}
			decoded, err := registry.Decode(key)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), decoded, opts.jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list the storage items the registry can decode")
	return cmd
}

func printEntries(w io.Writer, entries []substrate.Entry, jsonOutput bool) error {
	if jsonOutput {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		return printResult(w, names, true)
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%-32s %s\n", e.Name(), e.Prefix().Hex()); err != nil {
			return err
		}
	}
	return nil
}
