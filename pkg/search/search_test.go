package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/0xmhha/chainprobe/internal/testutil"
	"github.com/0xmhha/chainprobe/pkg/locator"
	"github.com/0xmhha/chainprobe/pkg/substrate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const genesisMs = 1_600_000_000_000

type testChain interface {
	Reader
	Node
}

func newService(t *testing.T, chain testChain, mutate func(*Config)) *Service {
	t.Helper()
	cfg := &Config{
		Reader: chain,
		Node:   chain,
		Logger: testutil.NewTestLogger(t),
	}
	if mutate != nil {
		mutate(cfg)
	}
	svc, err := NewService(cfg)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(nil)
	assert.Error(t, err)

	_, err = NewService(&Config{})
	assert.Error(t, err)
}

func TestParseTimestamp(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).UnixMilli()
	exact := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli()
	zoned := time.Date(2024, 1, 2, 1, 4, 5, 0, time.UTC).UnixMilli()

	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{in: "1700000000", want: 1_700_000_000_000},
		{in: "1700000000000", want: 1_700_000_000_000},
		{in: " 99999999999 ", want: 99_999_999_999_000},
		{in: "100000000000", want: 100_000_000_000},
		{in: "2024-01-02", want: uint64(day)},
		{in: "2024-01-02T03:04:05Z", want: uint64(exact)},
		{in: "2024-01-02T03:04:05", want: uint64(exact)},
		{in: "2024-01-02T03:04:05+02:00", want: uint64(zoned)},
		{in: "", wantErr: true},
		{in: "yesterday", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "1969-12-31", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatDrift(t *testing.T) {
	const (
		minute = uint64(60_000)
		hour   = 60 * minute
		day    = 24 * hour
	)
	base := uint64(genesisMs)

	assert.Equal(t, "", FormatDrift(base, base))
	assert.Equal(t, "", FormatDrift(base+minute, base))
	assert.Equal(t, "", FormatDrift(base, base+minute))
	assert.Equal(t, "1m after target", FormatDrift(base+minute+1, base))
	assert.Equal(t, "2h after target", FormatDrift(base+2*hour, base))
	assert.Equal(t, "1d 2h 3m before target", FormatDrift(base, base+day+2*hour+3*minute+59_000))
	assert.Equal(t, "3d 5m after target", FormatDrift(base+3*day+5*minute, base))
}

func TestFindBlockByTimestamp(t *testing.T) {
	ctx := context.Background()
	chain := testutil.NewChain(1000).SetValue(substrate.TimestampNowKey(), testutil.Timestamps(genesisMs, 6000))
	svc := newService(t, chain, nil)

	t.Run("exact", func(t *testing.T) {
		var windows []locator.Window
		res, err := svc.FindBlockByTimestamp(ctx, TimestampRequest{Timestamp: "1600003000000"}, func(w locator.Window) {
			windows = append(windows, w)
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(500), res.Height)
		assert.Equal(t, testutil.HashOf(500), res.BlockHash)
		assert.Equal(t, uint64(genesisMs+500*6000), res.Timestamp)
		assert.Equal(t, int64(0), res.DriftMs)
		assert.Empty(t, res.Drift)
		assert.Equal(t, "first_at_or_above", res.Policy)
		assert.Equal(t, time.UTC, res.Time.Location())
		assert.NotEmpty(t, windows)
	})

	t.Run("between blocks", func(t *testing.T) {
		res, err := svc.FindBlockByTimestamp(ctx, TimestampRequest{Timestamp: "1600003000001"}, nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(501), res.Height)
		assert.Equal(t, int64(5999), res.DriftMs)
		assert.Empty(t, res.Drift)

		res, err = svc.FindBlockByTimestamp(ctx, TimestampRequest{Timestamp: "1600003000001", Policy: "nearest"}, nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(500), res.Height)
		assert.Equal(t, "nearest", res.Policy)
	})

	t.Run("after head", func(t *testing.T) {
		target := uint64(genesisMs+1000*6000) + 2*3_600_000
		res, err := svc.FindBlockByTimestamp(ctx, TimestampRequest{Timestamp: formatUint(target)}, nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), res.Height)
		assert.Equal(t, "2h before target", res.Drift)
	})

	t.Run("before first block", func(t *testing.T) {
		res, err := svc.FindBlockByTimestamp(ctx, TimestampRequest{Timestamp: "5"}, nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), res.Height)
		assert.Equal(t, uint64(5000), res.Target)
		assert.Contains(t, res.Drift, "after target")
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := svc.FindBlockByTimestamp(ctx, TimestampRequest{Timestamp: "soon"}, nil)
		assert.ErrorIs(t, err, ErrInvalidRequest)

		_, err = svc.FindBlockByTimestamp(ctx, TimestampRequest{Timestamp: "5", Policy: "closest"}, nil)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestBlockDate(t *testing.T) {
	ctx := context.Background()
	chain := testutil.NewChain(1000).SetValue(substrate.TimestampNowKey(), testutil.Timestamps(genesisMs, 6000))
	svc := newService(t, chain, nil)

	res, err := svc.BlockDate(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(genesisMs+3_000_000), res.Timestamp)
	assert.Equal(t, time.UnixMilli(genesisMs+3_000_000).UTC(), res.Time)
	assert.Equal(t, testutil.HashOf(500), res.BlockHash)

	_, err = svc.BlockDate(ctx, 2000)
	assert.ErrorIs(t, err, substrate.ErrBlockNotFound)
}

func TestChainInfo(t *testing.T) {
	chain := testutil.NewChain(42)
	svc := newService(t, chain, nil)

	info, err := svc.ChainInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Synthetic", info.Name)
	assert.Equal(t, "synthetic", info.SpecName)
	assert.Equal(t, uint32(1), info.SpecVersion)
	assert.Equal(t, uint64(42), info.LatestHeight)
	assert.Equal(t, uint64(42), info.FinalizedHeight)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.ChainInfo(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	noNode := newService(t, chain, func(c *Config) { c.Node = nil })
	_, err = noNode.ChainInfo(context.Background())
	assert.ErrorIs(t, err, ErrNoNode)
}

func TestDecodeKey(t *testing.T) {
	svc := newService(t, testutil.NewChain(1), nil)

	decoded, err := svc.DecodeKey(substrate.TimestampNowKey().Hex())
	require.NoError(t, err)
	assert.Equal(t, "Timestamp", decoded.Pallet)
	assert.Equal(t, "Now", decoded.Item)

	_, err = svc.DecodeKey("0xabc")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = svc.DecodeKey("0x" + common.Bytes2Hex(make([]byte, 32)))
	assert.ErrorIs(t, err, substrate.ErrUnknownKey)
}

func TestNewErrorInfo(t *testing.T) {
	assert.Nil(t, NewErrorInfo(nil))

	se := &locator.SearchError{Kind: locator.KindReadFailure, Height: 7, Window: locator.Window{Low: 0, High: 14}, Err: errors.New("boom")}
	info := NewErrorInfo(se)
	assert.Equal(t, "read_failure", info.Kind)
	require.NotNil(t, info.Height)
	assert.Equal(t, uint64(7), *info.Height)
	assert.Equal(t, locator.Window{Low: 0, High: 14}, *info.Window)

	assert.Equal(t, "invalid_request", NewErrorInfo(invalid("bad")).Kind)
	assert.Equal(t, "invalid_request", NewErrorInfo(substrate.ErrInvalidKey).Kind)
	assert.Equal(t, "cancelled", NewErrorInfo(context.Canceled).Kind)
	assert.Equal(t, "error", NewErrorInfo(errors.New("other")).Kind)
}
