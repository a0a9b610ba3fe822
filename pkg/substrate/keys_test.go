package substrate

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========== Hashers ==========

func TestHashers_KnownVectors(t *testing.T) {
	assert.Equal(t, "0x26aa394eea5630e07c48ae0c9558cef7", hexutil.Encode(Twox128.Hash([]byte("System"))))
	assert.Equal(t, "0x99e9d85137db46ef", hexutil.Encode(Twox64Concat.Hash(nil)))
	assert.Equal(t,
		"0x990977adf52cbc440889329981caa9bef7da5770b2b8a05303b75d95360dd62b",
		hexutil.Encode(Twox256.Hash([]byte("abc"))))
	assert.Equal(t,
		"0xbddd813c634239723171ef3fee98579b94964e3bb1cb3e427262c8c068d52319",
		hexutil.Encode(Blake2_256.Hash([]byte("abc"))))
}

func TestHashers_ConcatAppendsInput(t *testing.T) {
	data := []byte{1, 2, 3, 4}

	out := Twox64Concat.Hash(data)
	assert.Len(t, out, 8+len(data))
	assert.Equal(t, data, out[8:])

	out = Blake2_128Concat.Hash(data)
	assert.Len(t, out, 16+len(data))
	assert.Equal(t, data, out[16:])
	assert.Equal(t, Blake2_128.Hash(data), out[:16])

	assert.Equal(t, data, Identity.Hash(data))
}

func TestHasher_LengthsAndNames(t *testing.T) {
	for h, name := range hasherNames {
		parsed, err := ParseHasher(name)
		require.NoError(t, err)
		assert.Equal(t, h, parsed)
		assert.Equal(t, name, h.String())
		assert.Equal(t, h.HashLen(), len(h.Hash(nil)), name)
	}

	parsed, err := ParseHasher("twox64concat")
	require.NoError(t, err)
	assert.Equal(t, Twox64Concat, parsed)

	_, err = ParseHasher("sha256")
	assert.Error(t, err)
}

// ========== Storage keys ==========

func TestWellKnownKeys(t *testing.T) {
	assert.Equal(t, "0x26aa394eea5630e07c48ae0c9558cef702a5c1b19ab7a04f536c519aca4983ac", SystemNumberKey().Hex())
	assert.Equal(t, "0xf0c365c3cf59d671eb72da0e7a4113c49f1f0515f462cdcf84e0f1d6045dfcbb", TimestampNowKey().Hex())
	assert.Equal(t, "0xcec5070d609dd3497f72bde07fc96ba072763800a36a99fdfc7c10f6415f6ee6", SessionCurrentIndexKey().Hex())
	assert.Equal(t, "0x26aa394eea5630e07c48ae0c9558cef7b99d880ec681799c0cf30e8886371da9", PalletPrefix("System", "Account").Hex())
}

func TestBridgeNonceKey_RoundTrip(t *testing.T) {
	channel := common.HexToHash("0xc173fac324158e77fb5840738a1a541f633cbec8884c6a601c567d2b376a0539")

	key := BridgeNonceKey(channel)
	assert.Equal(t,
		"0x7d7c8b03a2a182824cfe569187a28faa718368a0ace36e2b1b8b6dbd7f8093c0594aa8a9c557daba"+channel.Hex()[2:],
		key.Hex())

	got, err := BridgeChannelFromKey(key)
	require.NoError(t, err)
	assert.Equal(t, channel, got)

	_, err = BridgeChannelFromKey(SystemNumberKey())
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestParseStorageKey(t *testing.T) {
	key, err := ParseStorageKey(" 0xF0C365c3 ")
	require.NoError(t, err)
	assert.Equal(t, "0xf0c365c3", key.Hex())

	for _, bad := range []string{"", "0x", "f0c3", "0xzz", "0xabc"} {
		_, err := ParseStorageKey(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}

func TestResolveKey(t *testing.T) {
	key, err := ResolveKey("Timestamp.Now")
	require.NoError(t, err)
	assert.Equal(t, TimestampNowKey(), key)

	key, err = ResolveKey(SystemNumberKey().Hex())
	require.NoError(t, err)
	assert.Equal(t, SystemNumberKey(), key)

	_, err = ResolveKey("Balances.Nope")
	assert.ErrorIs(t, err, ErrInvalidKey)

	assert.Equal(t, []string{"session.currentindex", "system.number", "timestamp.now"}, WellKnownKeyNames())
}

func TestStorageKey_JSON(t *testing.T) {
	var k StorageKey
	require.NoError(t, k.UnmarshalJSON([]byte(`"0x0102"`)))
	assert.Equal(t, StorageKey{1, 2}, k)

	b, err := k.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"0x0102"`, string(b))

	assert.Error(t, k.UnmarshalJSON([]byte(`"nope"`)))
}

// ========== Key registry ==========

func TestKeyRegistry_DecodePlainValue(t *testing.T) {
	r := DefaultKeyRegistry()

	d, err := r.Decode(TimestampNowKey())

	require.NoError(t, err)
	assert.Equal(t, "Timestamp", d.Pallet)
	assert.Equal(t, "Now", d.Item)
	assert.Empty(t, d.Args)
}

func TestKeyRegistry_DecodeMapKey(t *testing.T) {
	r := DefaultKeyRegistry()
	channel := common.HexToHash("0xc173fac324158e77fb5840738a1a541f633cbec8884c6a601c567d2b376a0539")

	d, err := r.Decode(BridgeNonceKey(channel))

	require.NoError(t, err)
	assert.Equal(t, "EthereumInboundQueue", d.Pallet)
	require.Len(t, d.Args, 1)
	assert.Equal(t, "channel_id", d.Args[0].Name)
	assert.Equal(t, "Twox64Concat", d.Args[0].Hasher)
	assert.Equal(t, channel.Bytes(), []byte(d.Args[0].Value))
}

func TestKeyRegistry_DecodeDoubleMap(t *testing.T) {
	r := DefaultKeyRegistry()
	era := []byte{0x10, 0x05, 0, 0}
	validator := make([]byte, 32)
	validator[0] = 0xaa

	key := MapKey("Staking", "ErasStakersOverview",
		KeyArg{Hasher: Twox64Concat, Data: era},
		KeyArg{Hasher: Twox64Concat, Data: validator})

	d, err := r.Decode(key)

	require.NoError(t, err)
	require.Len(t, d.Args, 2)
	assert.Equal(t, era, []byte(d.Args[0].Value))
	assert.Equal(t, validator, []byte(d.Args[1].Value))
}

func TestKeyRegistry_Errors(t *testing.T) {
	r := DefaultKeyRegistry()

	_, err := r.Decode(StorageKey{1, 2, 3})
	assert.ErrorIs(t, err, ErrUnknownKey)

	_, err = r.Decode(PalletPrefix("Nope", "Nothing"))
	assert.ErrorIs(t, err, ErrUnknownKey)

	truncated := BridgeNonceKey(common.Hash{})
	_, err = r.Decode(truncated[:len(truncated)-1])
	assert.ErrorIs(t, err, ErrInvalidKey)

	trailing := append(TimestampNowKey(), 0x01)
	_, err = r.Decode(trailing)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeyRegistry_RegisterCustom(t *testing.T) {
	r := NewKeyRegistry()

	require.NoError(t, r.Register(Entry{
		Pallet: "Assets",
		Item:   "Account",
		Args: []ArgSpec{
			{Name: "asset", Hasher: Blake2_128Concat, Length: 4},
			{Name: "who", Hasher: Blake2_128Concat},
		},
	}))
	assert.Error(t, r.Register(Entry{Pallet: "Assets"}))
	assert.Error(t, r.Register(Entry{Pallet: "A", Item: "B", Args: []ArgSpec{
		{Name: "open", Hasher: Twox64Concat},
		{Name: "second", Hasher: Twox64Concat, Length: 4},
	}}))

	who := make([]byte, 32)
	key := MapKey("Assets", "Account",
		KeyArg{Hasher: Blake2_128Concat, Data: []byte{1, 0, 0, 0}},
		KeyArg{Hasher: Blake2_128Concat, Data: who})

	d, err := r.Decode(key)
	require.NoError(t, err)
	assert.Equal(t, who, []byte(d.Args[1].Value))

	entries := r.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "Assets.Account", entries[0].Name())
}
