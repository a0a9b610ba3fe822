package graphql

import (
	"strconv"
	"time"

	"github.com/0xmhha/chainprobe/pkg/locator"
	"github.com/0xmhha/chainprobe/pkg/search"
	"github.com/0xmhha/chainprobe/pkg/substrate"
)

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func windowToMap(w locator.Window) map[string]interface{} {
	return map[string]interface{}{
		"low":  u64(w.Low),
		"high": u64(w.High),
	}
}

func errorInfoToMap(e *search.ErrorInfo) map[string]interface{} {
	if e == nil {
		return nil
	}
	m := map[string]interface{}{
		"kind":    e.Kind,
		"message": e.Message,
	}
	if e.Height != nil {
		m["height"] = u64(*e.Height)
	}
	if e.Window != nil {
		m["window"] = windowToMap(*e.Window)
	}
	return m
}

func recordToMap(r *search.Record) map[string]interface{} {
	m := map[string]interface{}{
		"id":        r.ID,
		"kind":      string(r.Kind),
		"status":    string(r.Status),
		"request":   string(r.Request),
		"createdAt": formatTime(r.CreatedAt),
	}
	if len(r.Result) > 0 {
		m["result"] = string(r.Result)
	}
	if r.Error != nil {
		m["error"] = errorInfoToMap(r.Error)
	}
	if r.Window != nil {
		m["window"] = windowToMap(*r.Window)
	}
	if r.FinishedAt != nil {
		m["finishedAt"] = formatTime(*r.FinishedAt)
	}
	return m
}

func recordsToList(records []*search.Record) []interface{} {
	out := make([]interface{}, len(records))
	for i, r := range records {
		out[i] = recordToMap(r)
	}
	return out
}

func chainInfoToMap(info *search.ChainInfo) map[string]interface{} {
	return map[string]interface{}{
		"name":            info.Name,
		"specName":        info.SpecName,
		"specVersion":     int(info.SpecVersion),
		"latestHeight":    u64(info.LatestHeight),
		"finalizedHeight": u64(info.FinalizedHeight),
	}
}

func blockDateToMap(r *search.BlockDateResult) map[string]interface{} {
	return map[string]interface{}{
		"height":    u64(r.Height),
		"blockHash": r.BlockHash.Hex(),
		"timestamp": u64(r.Timestamp),
		"time":      formatTime(r.Time),
	}
}

func decodedKeyToMap(k *substrate.DecodedKey) map[string]interface{} {
	if k == nil {
		return nil
	}
	args := make([]interface{}, len(k.Args))
	for i, a := range k.Args {
		arg := map[string]interface{}{
			"name":   a.Name,
			"hasher": a.Hasher,
		}
		if len(a.Hash) > 0 {
			arg["hash"] = a.Hash.String()
		}
		if len(a.Value) > 0 {
			arg["value"] = a.Value.String()
		}
		args[i] = arg
	}
	return map[string]interface{}{
		"pallet": k.Pallet,
		"item":   k.Item,
		"args":   args,
	}
}

func blockByTimestampToMap(r *search.BlockByTimestampResult) map[string]interface{} {
	return map[string]interface{}{
		"height":     u64(r.Height),
		"blockHash":  r.BlockHash.Hex(),
		"timestamp":  u64(r.Timestamp),
		"time":       formatTime(r.Time),
		"target":     u64(r.Target),
		"targetTime": formatTime(r.TargetTime),
		"driftMs":    strconv.FormatInt(r.DriftMs, 10),
		"drift":      r.Drift,
		"policy":     r.Policy,
		"window":     windowToMap(r.Window),
		"reads":      r.Reads,
	}
}

func storageChangeToMap(r *search.StorageChangeResult) map[string]interface{} {
	m := map[string]interface{}{
		"key":       r.Key.Hex(),
		"head":      u64(r.Head),
		"changed":   r.Changed,
		"height":    u64(r.Height),
		"blockHash": r.BlockHash.Hex(),
		"previous":  r.Previous.String(),
		"current":   r.Current.String(),
		"window":    windowToMap(r.Window),
		"reads":     r.Reads,
	}
	if r.Entry != nil {
		m["entry"] = decodedKeyToMap(r.Entry)
	}
	return m
}

func storageNumberToMap(r *search.StorageNumberResult) map[string]interface{} {
	m := map[string]interface{}{
		"key":       r.Key.Hex(),
		"head":      u64(r.Head),
		"target":    r.Target,
		"height":    u64(r.Height),
		"blockHash": r.BlockHash.Hex(),
		"value":     r.Value,
		"distance":  r.Distance,
		"raw":       r.Raw.String(),
		"policy":    r.Policy,
		"window":    windowToMap(r.Window),
		"reads":     r.Reads,
	}
	if r.Entry != nil {
		m["entry"] = decodedKeyToMap(r.Entry)
	}
	return m
}

func bridgeNonceResultToMap(r *search.BridgeNonceResult) map[string]interface{} {
	changes := make([]interface{}, len(r.Changes))
	for i, c := range r.Changes {
		changes[i] = map[string]interface{}{
			"height":        u64(c.Height),
			"blockHash":     c.BlockHash.Hex(),
			"nonce":         u64(c.Nonce),
			"previousNonce": u64(c.PreviousNonce),
			"value":         c.Value.String(),
		}
	}
	return map[string]interface{}{
		"channel":      r.Channel.Hex(),
		"mode":         r.Mode,
		"head":         u64(r.Head),
		"from":         u64(r.From),
		"to":           u64(r.To),
		"currentNonce": u64(r.CurrentNonce),
		"nonceFloor":   u64(r.NonceFloor),
		"changes":      changes,
	}
}

func bridgeChannelsToList(channels []search.BridgeChannel) []interface{} {
	out := make([]interface{}, len(channels))
	for i, c := range channels {
		out[i] = map[string]interface{}{
			"channel": c.Channel.Hex(),
			"nonce":   u64(c.Nonce),
		}
	}
	return out
}
