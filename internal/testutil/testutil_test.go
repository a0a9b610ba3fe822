package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/0xmhha/chainprobe/pkg/substrate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	fn := Counter(30, 10, 20)
	assert.Equal(t, LE64(0), fn(0))
	assert.Equal(t, LE64(0), fn(9))
	assert.Equal(t, LE64(1), fn(10))
	assert.Equal(t, LE64(2), fn(25))
	assert.Equal(t, LE64(3), fn(1000))
}

func TestTimestamps(t *testing.T) {
	fn := Timestamps(1_000_000, 6000)
	assert.Nil(t, fn(0))
	assert.Equal(t, LE64(1_006_000), fn(1))
	assert.Equal(t, LE64(1_600_000), fn(100))
}

func TestChainReads(t *testing.T) {
	ctx := context.Background()
	key := substrate.SystemNumberKey()
	c := NewChain(100).SetValue(key, Counter(50))

	head, err := c.GetHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), head)

	v, err := c.ReadAt(ctx, 60, key)
	require.NoError(t, err)
	assert.Equal(t, LE64(1), v)

	missing, err := c.ReadAt(ctx, 60, substrate.TimestampNowKey())
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = c.ReadAt(ctx, 101, key)
	assert.ErrorIs(t, err, substrate.ErrBlockNotFound)

	boom := errors.New("boom")
	c.FailAt(7, boom)
	_, err = c.ReadAt(ctx, 7, key)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 4, c.Reads())

	hash, err := c.BlockHashAt(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, HashOf(3), hash)
	assert.NotEqual(t, common.Hash{}, HashOf(0))
}

func TestChainKeysAndHook(t *testing.T) {
	ctx := context.Background()
	a := substrate.BridgeNonceKey(common.HexToHash("0x02"))
	b := substrate.BridgeNonceKey(common.HexToHash("0x01"))
	c := NewChain(10).
		SetValue(a, Counter()).
		SetValue(b, Counter()).
		SetValue(substrate.TimestampNowKey(), Timestamps(0, 1))

	keys, err := c.AllStorageKeys(ctx, substrate.BridgeNoncePrefix(), 100, nil)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	for _, k := range keys {
		assert.True(t, k.HasPrefix(substrate.BridgeNoncePrefix()))
	}

	var seen []uint64
	c.OnRead(func(h uint64) { seen = append(seen, h) })
	_, _ = c.ReadAt(ctx, 5, a)
	assert.Equal(t, []uint64{5}, seen)

	c.SetHead(4)
	fin, err := c.FinalizedHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), fin)
}
