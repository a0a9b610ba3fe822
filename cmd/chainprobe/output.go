package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/0xmhha/chainprobe/pkg/search"
	"github.com/0xmhha/chainprobe/pkg/substrate"
	"github.com/dustin/go-humanize"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	return fmt.Sprintf("%s (%s)", t.UTC().Format(time.RFC3339), humanize.Time(t))
}

func entryName(e *substrate.DecodedKey) string {
	if e == nil {
		return "unknown entry"
	}
	return e.Pallet + "." + e.Item
}

// printResult writes v as a human readable table, or as JSON when asJSON is set
func printResult(w io.Writer, v interface{}, asJSON bool) error {
	if asJSON {
		return printJSON(w, v)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(label, format string, args ...interface{}) {
		fmt.Fprintf(tw, "%s\t%s\n", label, fmt.Sprintf(format, args...))
	}

	switch r := v.(type) {
	case *search.BlockByTimestampResult:
		row("block", "#%d %s", r.Height, r.BlockHash.Hex())
		row("block time", "%s", formatTime(r.Time))
		row("target", "%s", r.TargetTime.Format(time.RFC3339Nano))
		if r.Drift != "" {
			row("drift", "%s", r.Drift)
		}
		row("policy", "%s", r.Policy)
		row("reads", "%d", r.Reads)

	case *search.StorageChangeResult:
		row("entry", "%s", entryName(r.Entry))
		if !r.Changed {
			row("result", "unchanged since genesis (head #%d)", r.Head)
			row("value", "%s", r.Current)
		} else {
			row("changed at", "#%d %s", r.Height, r.BlockHash.Hex())
			row("previous", "%s", r.Previous)
			row("current", "%s", r.Current)
		}
		row("reads", "%d", r.Reads)

	case *search.StorageNumberResult:
		row("entry", "%s", entryName(r.Entry))
		row("block", "#%d %s", r.Height, r.BlockHash.Hex())
		row("value", "%s (target %s, distance %s)", r.Value, r.Target, r.Distance)
		row("policy", "%s", r.Policy)
		row("reads", "%d", r.Reads)

	case *search.BridgeNonceResult:
		row("channel", "%s", r.Channel.Hex())
		row("blocks", "#%d – #%d", r.From, r.To)
		row("current nonce", "%d", r.CurrentNonce)
		if len(r.Changes) == 0 {
			row("changes", "none")
			break
		}
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "HEIGHT\tNONCE\tPREVIOUS\tBLOCK HASH")
		for _, c := range r.Changes {
			fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", c.Height, c.Nonce, c.PreviousNonce, c.BlockHash.Hex())
		}

	case []search.BridgeChannel:
		if len(r) == 0 {
			fmt.Fprintln(tw, "no bridge channels")
			break
		}
		fmt.Fprintln(tw, "CHANNEL\tNONCE")
		for _, c := range r {
			fmt.Fprintf(tw, "%s\t%d\n", c.Channel.Hex(), c.Nonce)
		}

	case *search.BlockDateResult:
		row("block", "#%d %s", r.Height, r.BlockHash.Hex())
		row("time", "%s", formatTime(r.Time))
		row("unix ms", "%d", r.Timestamp)

	case *search.ChainInfo:
		row("chain", "%s", r.Name)
		row("runtime", "%s v%d", r.SpecName, r.SpecVersion)
		row("latest", "#%d", r.LatestHeight)
		row("finalized", "#%d", r.FinalizedHeight)

	case *substrate.DecodedKey:
		row("entry", "%s", entryName(r))
		for _, arg := range r.Args {
			if len(arg.Value) > 0 {
				row(arg.Name, "%s (%s)", arg.Value, arg.Hasher)
			} else {
				row(arg.Name, "hash %s (%s)", arg.Hash, arg.Hasher)
			}
		}

	default:
		return printJSON(w, v)
	}

	return tw.Flush()
}
