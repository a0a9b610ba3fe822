package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/0xmhha/chainprobe/internal/constants"
	"github.com/0xmhha/chainprobe/pkg/locator"
	"github.com/0xmhha/chainprobe/pkg/substrate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TimestampRequest asks for the block produced at a point in time
type TimestampRequest struct {
	// Timestamp is unix seconds, unix milliseconds, or an RFC3339 / YYYY-MM-DD date
	Timestamp string `json:"timestamp"`
	// Policy is "first_at_or_above" (default) or "nearest"
	Policy string `json:"policy,omitempty"`
}

// BlockByTimestampResult is the answer to a TimestampRequest
type BlockByTimestampResult struct {
	Height     uint64         `json:"height"`
	BlockHash  common.Hash    `json:"blockHash"`
	Timestamp  uint64         `json:"timestamp"`
	Time       time.Time      `json:"time"`
	Target     uint64         `json:"target"`
	TargetTime time.Time      `json:"targetTime"`
	DriftMs    int64          `json:"driftMs"`
	Drift      string         `json:"drift,omitempty"`
	Policy     string         `json:"policy"`
	Window     locator.Window `json:"window"`
	Reads      int            `json:"reads"`
}

// BlockDateResult is the timestamp of one block
type BlockDateResult struct {
	Height    uint64      `json:"height"`
	BlockHash common.Hash `json:"blockHash"`
	Timestamp uint64      `json:"timestamp"`
	Time      time.Time   `json:"time"`
}

// Validate checks the request without touching the chain
func (r TimestampRequest) Validate() error {
	if _, err := ParseTimestamp(r.Timestamp); err != nil {
		return err
	}
	if r.Policy != "" {
		if _, err := locator.ParsePolicy(r.Policy); err != nil {
			return invalid("%v", err)
		}
	}
	return nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp converts user input to unix milliseconds.
// Numbers below 1e11 are read as seconds, larger ones as milliseconds.
// Dates without a zone are UTC.
func ParseTimestamp(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, invalid("timestamp is required")
	}

	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		if n < constants.SecondsThreshold {
			return n * 1000, nil
		}
		return n, nil
	}

	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		ms := t.UnixMilli()
		if ms < 0 {
			return 0, invalid("timestamp %q is before 1970", s)
		}
		return uint64(ms), nil
	}
	return 0, invalid("cannot parse timestamp %q", s)
}

// FormatDrift describes how far a block timestamp is from the target, e.g.
// "1d 2h 3m after target". Differences up to one minute return "".
func FormatDrift(foundMs, targetMs uint64) string {
	direction := "after"
	diff := foundMs - targetMs
	if foundMs < targetMs {
		direction = "before"
		diff = targetMs - foundMs
	}
	if diff <= uint64(constants.DriftReportThreshold.Milliseconds()) {
		return ""
	}

	const (
		minuteMs = uint64(time.Minute / time.Millisecond)
		hourMs   = 60 * minuteMs
		dayMs    = 24 * hourMs
	)
	days := diff / dayMs
	hours := (diff % dayMs) / hourMs
	minutes := (diff % hourMs) / minuteMs

	parts := make([]string, 0, 3)
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	return strings.Join(parts, " ") + " " + direction + " target"
}

func decodeTimestamp(sample []byte) (*uint256.Int, error) {
	return substrate.DecodeUintLE(sample)
}

// FindBlockByTimestamp finds the block whose Timestamp.Now reaches the requested time
func (s *Service) FindBlockByTimestamp(ctx context.Context, req TimestampRequest, progress locator.ProgressFunc) (*BlockByTimestampResult, error) {
	target, err := ParseTimestamp(req.Timestamp)
	if err != nil {
		return nil, err
	}
	policy := locator.PolicyFirstAtOrAbove
	if req.Policy != "" {
		if policy, err = locator.ParsePolicy(req.Policy); err != nil {
			return nil, invalid("%v", err)
		}
	}

	head, err := s.head(ctx)
	if err != nil {
		return nil, err
	}

	opts := s.options(KindBlockByTimestamp, progress)
	opts.Policy = policy
	match, err := locator.LocateNumericTarget[substrate.StorageKey, []byte](ctx, s.reader, substrate.TimestampNowKey(), head,
		uint256.NewInt(target), decodeTimestamp, opts)
	if err != nil {
		return nil, err
	}

	found := match.Value.Uint64()
	return &BlockByTimestampResult{
		Height:     match.Height,
		BlockHash:  s.blockHash(ctx, match.Height),
		Timestamp:  found,
		Time:       time.UnixMilli(int64(found)).UTC(),
		Target:     target,
		TargetTime: time.UnixMilli(int64(target)).UTC(),
		DriftMs:    int64(found) - int64(target),
		Drift:      FormatDrift(found, target),
		Policy:     policy.String(),
		Window:     match.Window,
		Reads:      match.Reads,
	}, nil
}

// BlockDate reads Timestamp.Now at a block
func (s *Service) BlockDate(ctx context.Context, height uint64) (*BlockDateResult, error) {
	hash, err := s.reader.BlockHashAt(ctx, height)
	if err != nil {
		return nil, fmt.Errorf("failed to get block hash at %d: %w", height, err)
	}
	sample, err := s.reader.ReadAt(ctx, height, substrate.TimestampNowKey())
	if err != nil {
		return nil, fmt.Errorf("failed to read timestamp at %d: %w", height, err)
	}
	ts, err := decodeTimestamp(sample)
	if err != nil {
		return nil, fmt.Errorf("failed to decode timestamp at %d: %w", height, err)
	}

	ms := ts.Uint64()
	return &BlockDateResult{
		Height:    height,
		BlockHash: hash,
		Timestamp: ms,
		Time:      time.UnixMilli(int64(ms)).UTC(),
	}, nil
}
