package search

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/0xmhha/chainprobe/internal/testutil"
	"github.com/0xmhha/chainprobe/pkg/locator"
	"github.com/0xmhha/chainprobe/pkg/substrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func TestFindStorageChange(t *testing.T) {
	ctx := context.Background()
	sessionKey := substrate.SessionCurrentIndexKey()
	chain := testutil.NewChain(1000).
		SetValue(sessionKey, testutil.Counter(100, 700)).
		SetValue(substrate.SystemNumberKey(), testutil.Counter())
	svc := newService(t, chain, nil)

	t.Run("by name", func(t *testing.T) {
		res, err := svc.FindStorageChange(ctx, StorageChangeRequest{Key: "Session.CurrentIndex"}, nil)
		require.NoError(t, err)
		assert.True(t, res.Changed)
		assert.Equal(t, uint64(700), res.Height)
		assert.Equal(t, locator.Window{Low: 699, High: 700}, res.Window)
		assert.Equal(t, testutil.LE64(1), []byte(res.Previous))
		assert.Equal(t, testutil.LE64(2), []byte(res.Current))
		assert.Equal(t, testutil.HashOf(700), res.BlockHash)
		assert.Equal(t, uint64(1000), res.Head)
		require.NotNil(t, res.Entry)
		assert.Equal(t, "Session", res.Entry.Pallet)
	})

	t.Run("by hex key", func(t *testing.T) {
		res, err := svc.FindStorageChange(ctx, StorageChangeRequest{Key: sessionKey.Hex()}, nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(700), res.Height)
	})

	t.Run("never changed", func(t *testing.T) {
		res, err := svc.FindStorageChange(ctx, StorageChangeRequest{Key: substrate.SystemNumberKey().Hex()}, nil)
		require.NoError(t, err)
		assert.False(t, res.Changed)
		assert.Equal(t, uint64(0), res.Height)
		assert.Equal(t, 2, res.Reads)
	})

	t.Run("invalid key", func(t *testing.T) {
		_, err := svc.FindStorageChange(ctx, StorageChangeRequest{Key: "0xzz"}, nil)
		assert.ErrorIs(t, err, ErrInvalidKey)

		_, err = svc.FindStorageChange(ctx, StorageChangeRequest{}, nil)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestFindStorageChangeReadFailure(t *testing.T) {
	key := substrate.SessionCurrentIndexKey()
	chain := testutil.NewChain(1000).SetValue(key, testutil.Counter(700))
	boom := errors.New("node went away")
	chain.FailAt(500, boom)
	svc := newService(t, chain, nil)

	_, err := svc.FindStorageChange(context.Background(), StorageChangeRequest{Key: key.Hex()}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, locator.ErrReadFailure)
	assert.ErrorIs(t, err, boom)

	se, ok := locator.AsSearchError(err)
	require.True(t, ok)
	assert.Equal(t, uint64(500), se.Height)
	assert.Equal(t, locator.Window{Low: 0, High: 1000}, se.Window)
}

func TestFindStorageNumber(t *testing.T) {
	ctx := context.Background()
	key := substrate.SessionCurrentIndexKey()
	chain := testutil.NewChain(1000).SetValue(key, testutil.Counter(10, 20, 30, 40, 50, 60, 70, 80, 90))
	svc := newService(t, chain, nil)

	t.Run("nearest", func(t *testing.T) {
		res, err := svc.FindStorageNumber(ctx, StorageNumberRequest{Key: key.Hex(), Target: "2"}, nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(29), res.Height)
		assert.Equal(t, "2", res.Value)
		assert.Equal(t, "0", res.Distance)
		assert.Equal(t, "nearest", res.Policy)
		assert.Equal(t, testutil.LE64(2), []byte(res.Raw))
	})

	t.Run("first at or above", func(t *testing.T) {
		res, err := svc.FindStorageNumber(ctx, StorageNumberRequest{Key: key.Hex(), Target: "0x2", Policy: "first_at_or_above"}, nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(20), res.Height)
		assert.Equal(t, "2", res.Target)
	})

	t.Run("prefix width", func(t *testing.T) {
		res, err := svc.FindStorageNumber(ctx, StorageNumberRequest{Key: key.Hex(), Target: "5", Policy: "first", Width: 4}, nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(50), res.Height)
	})

	t.Run("beyond frontier", func(t *testing.T) {
		res, err := svc.FindStorageNumber(ctx, StorageNumberRequest{Key: key.Hex(), Target: "1000000"}, nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), res.Height)
		assert.Equal(t, "999991", res.Distance)
	})

	t.Run("invalid", func(t *testing.T) {
		bad := []StorageNumberRequest{
			{Key: key.Hex(), Target: "abc"},
			{Key: key.Hex(), Target: ""},
			{Key: key.Hex(), Target: "1", Policy: "median"},
			{Key: key.Hex(), Target: "1", Width: 33},
			{Key: "", Target: "1"},
		}
		for _, req := range bad {
			_, err := svc.FindStorageNumber(ctx, req, nil)
			assert.ErrorIs(t, err, ErrInvalidRequest, "request %+v", req)
			assert.Error(t, req.Validate())
		}
	})
}

func TestFindStorageNumberContractViolation(t *testing.T) {
	key := substrate.SessionCurrentIndexKey()
	chain := testutil.NewChain(100).SetValue(key, func(h uint64) []byte {
		return testutil.LE64(100 - h)
	})
	svc := newService(t, chain, nil)

	_, err := svc.FindStorageNumber(context.Background(), StorageNumberRequest{Key: key.Hex(), Target: "50"}, nil)
	assert.ErrorIs(t, err, locator.ErrContractViolation)
}

func TestParseTarget(t *testing.T) {
	v, err := ParseTarget("340282366920938463463374607431768211455")
	require.NoError(t, err)
	assert.Equal(t, "340282366920938463463374607431768211455", v.Dec())

	v, err = ParseTarget("0x00ff")
	require.NoError(t, err)
	assert.Equal(t, uint64(255), v.Uint64())

	v, err = ParseTarget("0x0")
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	_, err = ParseTarget("-1")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
