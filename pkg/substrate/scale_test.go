package substrate

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeUintLE(t *testing.T) {
	v, err := DecodeUintLE([]byte{0x39, 0x30, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), v.Uint64())

	v, err = DecodeUintLE(nil)
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	// u128 max
	b := make([]byte, 16)
	for i := range b {
		b[i] = 0xff
	}
	v, err = DecodeUintLE(b)
	require.NoError(t, err)
	want := new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
	assert.Equal(t, want, v)

	_, err = DecodeUintLE(make([]byte, 33))
	assert.ErrorIs(t, err, ErrMalformedValue)
}

func TestDecodeUintLEPrefix(t *testing.T) {
	// u64 nonce followed by other fields
	value := []byte{7, 0, 0, 0, 0, 0, 0, 0, 0xde, 0xad}

	v, err := DecodeUintLEPrefix(value, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), v.Uint64())

	v, err = DecodeUintLEPrefix(nil, 8)
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	_, err = DecodeUintLEPrefix([]byte{1, 2}, 8)
	assert.ErrorIs(t, err, ErrMalformedValue)
}
