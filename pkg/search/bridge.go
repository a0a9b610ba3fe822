package search

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/0xmhha/chainprobe/internal/constants"
	"github.com/0xmhha/chainprobe/pkg/locator"
	"github.com/0xmhha/chainprobe/pkg/substrate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// Bridge scan modes
const (
	// BridgeModeBlocks scans the last BlockWindow blocks
	BridgeModeBlocks = "blocks"
	// BridgeModeNonces scans all history for the last NonceWindow nonces
	BridgeModeNonces = "nonces"
)

// BridgeNonceRequest asks for the recent nonce changes of a bridge channel
type BridgeNonceRequest struct {
	// Channel is the 32-byte channel id, 0x-prefixed
	Channel string `json:"channel"`
	// Mode is "blocks" (default) or "nonces"
	Mode string `json:"mode,omitempty"`
	// BlockWindow overrides the configured block window in blocks mode
	BlockWindow uint64 `json:"blockWindow,omitempty"`
	// NonceWindow overrides the configured nonce window in nonces mode
	NonceWindow uint64 `json:"nonceWindow,omitempty"`
}

// NonceChange is one block in which the channel nonce moved
type NonceChange struct {
	Height        uint64        `json:"height"`
	BlockHash     common.Hash   `json:"blockHash"`
	Nonce         uint64        `json:"nonce"`
	PreviousNonce uint64        `json:"previousNonce"`
	Value         hexutil.Bytes `json:"value"`
}

// BridgeNonceResult lists nonce changes newest first
type BridgeNonceResult struct {
	Channel      common.Hash   `json:"channel"`
	Mode         string        `json:"mode"`
	Head         uint64        `json:"head"`
	From         uint64        `json:"from"`
	To           uint64        `json:"to"`
	CurrentNonce uint64        `json:"currentNonce"`
	NonceFloor   uint64        `json:"nonceFloor,omitempty"` // exclusive, nonces mode only
	Changes      []NonceChange `json:"changes"`
}

// BridgeChannel is a channel with its nonce at the chain head
type BridgeChannel struct {
	Channel common.Hash `json:"channel"`
	Nonce   uint64      `json:"nonce"`
}

func parseChannel(s string) (common.Hash, error) {
	s = strings.TrimSpace(s)
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, invalid("channel must be a 0x-prefixed 32-byte hex id, got %q", s)
	}
	return common.BytesToHash(b), nil
}

// Validate checks the request without touching the chain
func (r BridgeNonceRequest) Validate() error {
	if _, err := parseChannel(r.Channel); err != nil {
		return err
	}
	switch r.Mode {
	case "", BridgeModeBlocks, BridgeModeNonces:
		return nil
	default:
		return invalid("unknown bridge scan mode %q", r.Mode)
	}
}

// decodeNonce reads the u64 nonce at the start of a nonce value; a missing entry is nonce 0
func decodeNonce(sample []byte) (uint64, error) {
	v, err := substrate.DecodeUintLEPrefix(sample, constants.BridgeNonceBytes)
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// FindBridgeNonceChanges lists the blocks in which a bridge channel's inbound nonce changed.
//
// In blocks mode the window is (head-BlockWindow, head]. In nonces mode all history is
// scanned, but segments whose upper nonce is at or below current-NonceWindow are skipped,
// so only changes to the most recent nonces are visited.
func (s *Service) FindBridgeNonceChanges(ctx context.Context, req BridgeNonceRequest, progress locator.ProgressFunc) (*BridgeNonceResult, error) {
	channel, err := parseChannel(req.Channel)
	if err != nil {
		return nil, err
	}
	mode := req.Mode
	if mode == "" {
		mode = BridgeModeBlocks
	}
	if mode != BridgeModeBlocks && mode != BridgeModeNonces {
		return nil, invalid("unknown bridge scan mode %q", mode)
	}

	head, err := s.head(ctx)
	if err != nil {
		return nil, err
	}
	key := substrate.BridgeNonceKey(channel)

	current, err := s.reader.ReadAt(ctx, head, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce at head %d: %w", head, err)
	}
	currentNonce, err := decodeNonce(current)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce at head %d: %w", head, err)
	}

	result := &BridgeNonceResult{
		Channel:      channel,
		Mode:         mode,
		Head:         head,
		To:           head,
		CurrentNonce: currentNonce,
	}

	scanOpts := &locator.ScanOptions[[]byte]{Options: *s.options(KindBridgeNonceChanges, progress)}
	var floor uint64
	switch mode {
	case BridgeModeBlocks:
		window := req.BlockWindow
		if window == 0 {
			window = s.bridgeBlockWindow
		}
		result.From = head - min(window, head)
	case BridgeModeNonces:
		window := req.NonceWindow
		if window == 0 {
			window = s.bridgeNonceWindow
		}
		floor = currentNonce - min(window, currentNonce)
		result.NonceFloor = floor
		scanOpts.Prune = func(_, high []byte) bool {
			n, err := decodeNonce(high)
			return err == nil && n <= floor
		}
	}

	changes, err := locator.LocateAllTransitions[substrate.StorageKey, []byte](ctx, s.reader, key, result.From, result.To, bytes.Equal, scanOpts)
	if err != nil {
		return nil, err
	}

	result.Changes = make([]NonceChange, 0, len(changes))
	for _, c := range changes {
		after, err := decodeNonce(c.After)
		if err != nil {
			return nil, fmt.Errorf("failed to decode nonce at %d: %w", c.Height, err)
		}
		if mode == BridgeModeNonces && after <= floor {
			continue
		}
		before, err := decodeNonce(c.Before)
		if err != nil {
			return nil, fmt.Errorf("failed to decode nonce at %d: %w", c.Height-1, err)
		}
		result.Changes = append(result.Changes, NonceChange{
			Height:        c.Height,
			Nonce:         after,
			PreviousNonce: before,
			Value:         c.After,
		})
	}

	if len(result.Changes) > 0 {
		changed := make([]uint64, len(result.Changes))
		for i, c := range result.Changes {
			changed[i] = c.Height
		}
		for i, hash := range s.blockHashes(ctx, changed) {
			result.Changes[i].BlockHash = hash
		}
	}

	s.logger.Debug("bridge nonce scan finished",
		zap.String("channel", channel.Hex()),
		zap.String("mode", mode),
		zap.Uint64("from", result.From),
		zap.Uint64("to", result.To),
		zap.Int("changes", len(result.Changes)))
	return result, nil
}

// ListBridgeChannels returns every channel with an inbound nonce entry, with its nonce at the head
func (s *Service) ListBridgeChannels(ctx context.Context) ([]BridgeChannel, error) {
	if s.node == nil {
		return nil, ErrNoNode
	}

	keys, err := s.node.AllStorageKeys(ctx, substrate.BridgeNoncePrefix(), constants.DefaultKeysPageSize, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list bridge nonce keys: %w", err)
	}
	if len(keys) == 0 {
		return []BridgeChannel{}, nil
	}

	head, err := s.head(ctx)
	if err != nil {
		return nil, err
	}

	channels := make([]BridgeChannel, 0, len(keys))
	for _, key := range keys {
		channel, err := substrate.BridgeChannelFromKey(key)
		if err != nil {
			s.logger.Warn("skipping malformed bridge nonce key", zap.Stringer("key", key), zap.Error(err))
			continue
		}
		value, err := s.reader.ReadAt(ctx, head, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read nonce of channel %s: %w", channel.Hex(), err)
		}
		nonce, err := decodeNonce(value)
		if err != nil {
			return nil, fmt.Errorf("failed to decode nonce of channel %s: %w", channel.Hex(), err)
		}
		channels = append(channels, BridgeChannel{Channel: channel, Nonce: nonce})
	}
	return channels, nil
}
