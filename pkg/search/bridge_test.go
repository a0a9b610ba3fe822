package search

import (
	"context"
	"testing"

	"github.com/0xmhha/chainprobe/internal/testutil"
	"github.com/0xmhha/chainprobe/pkg/substrate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	channelA = common.HexToHash("0xc173fac324158e77fb5840738a1a541f633cbec8884c6a601c567d2b376a0539")
	channelB = common.HexToHash("0x0000000000000000000000000000000000000000000000000000000000000001")
)

func heights(changes []NonceChange) []uint64 {
	out := make([]uint64, len(changes))
	for i, c := range changes {
		out[i] = c.Height
	}
	return out
}

func TestFindBridgeNonceChangesBlocks(t *testing.T) {
	ctx := context.Background()
	chain := testutil.NewChain(1000).SetValue(substrate.BridgeNonceKey(channelA), testutil.Counter(900, 950, 990))
	svc := newService(t, chain, nil)

	res, err := svc.FindBridgeNonceChanges(ctx, BridgeNonceRequest{Channel: channelA.Hex()}, nil)
	require.NoError(t, err)
	assert.Equal(t, BridgeModeBlocks, res.Mode)
	assert.Equal(t, uint64(0), res.From)
	assert.Equal(t, uint64(1000), res.To)
	assert.Equal(t, uint64(3), res.CurrentNonce)
	require.Equal(t, []uint64{990, 950, 900}, heights(res.Changes))

	for i, want := range []uint64{3, 2, 1} {
		assert.Equal(t, want, res.Changes[i].Nonce)
		assert.Equal(t, want-1, res.Changes[i].PreviousNonce)
		assert.Equal(t, testutil.HashOf(res.Changes[i].Height), res.Changes[i].BlockHash)
	}
	// hashes of all changes are resolved together
	assert.Equal(t, 1, chain.HashBatches())

	res, err = svc.FindBridgeNonceChanges(ctx, BridgeNonceRequest{Channel: channelA.Hex(), BlockWindow: 60}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(940), res.From)
	assert.Equal(t, []uint64{990, 950}, heights(res.Changes))
}

func TestFindBridgeNonceChangesNonces(t *testing.T) {
	chain := testutil.NewChain(1000).
		SetValue(substrate.BridgeNonceKey(channelA), testutil.Counter(100, 200, 300, 400, 500, 600, 700, 800, 900))
	svc := newService(t, chain, nil)

	res, err := svc.FindBridgeNonceChanges(context.Background(), BridgeNonceRequest{Channel: channelA.Hex(), Mode: BridgeModeNonces}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), res.CurrentNonce)
	assert.Equal(t, uint64(4), res.NonceFloor)
	assert.Equal(t, uint64(0), res.From)
	assert.Equal(t, []uint64{900, 800, 700, 600, 500}, heights(res.Changes))

	readsWithPrune := chain.Reads()

	res, err = svc.FindBridgeNonceChanges(context.Background(), BridgeNonceRequest{Channel: channelA.Hex(), Mode: BridgeModeNonces, NonceWindow: 100}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.NonceFloor)
	assert.Len(t, res.Changes, 9)
	assert.Less(t, readsWithPrune, chain.Reads()-readsWithPrune)
}

func TestFindBridgeNonceChangesEmptyChannel(t *testing.T) {
	svc := newService(t, testutil.NewChain(1000), nil)

	res, err := svc.FindBridgeNonceChanges(context.Background(), BridgeNonceRequest{Channel: channelB.Hex()}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.CurrentNonce)
	assert.Empty(t, res.Changes)
}

func TestFindBridgeNonceChangesInvalid(t *testing.T) {
	svc := newService(t, testutil.NewChain(10), nil)

	bad := []BridgeNonceRequest{
		{Channel: ""},
		{Channel: "0x1234"},
		{Channel: channelA.Hex(), Mode: "weeks"},
	}
	for _, req := range bad {
		assert.ErrorIs(t, req.Validate(), ErrInvalidRequest)
		_, err := svc.FindBridgeNonceChanges(context.Background(), req, nil)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
}

func TestListBridgeChannels(t *testing.T) {
	chain := testutil.NewChain(100).
		SetValue(substrate.BridgeNonceKey(channelA), testutil.Counter(10, 20)).
		SetValue(substrate.BridgeNonceKey(channelB), testutil.Counter(50)).
		SetValue(substrate.TimestampNowKey(), testutil.Timestamps(genesisMs, 6000))
	svc := newService(t, chain, nil)

	channels, err := svc.ListBridgeChannels(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []BridgeChannel{
		{Channel: channelA, Nonce: 2},
		{Channel: channelB, Nonce: 1},
	}, channels)

	empty := newService(t, testutil.NewChain(100), nil)
	channels, err = empty.ListBridgeChannels(context.Background())
	require.NoError(t, err)
	assert.Empty(t, channels)

	noNode := newService(t, chain, func(c *Config) { c.Node = nil })
	_, err = noNode.ListBridgeChannels(context.Background())
	assert.ErrorIs(t, err, ErrNoNode)
}
