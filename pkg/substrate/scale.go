package substrate

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrMalformedValue is returned when a storage value cannot be decoded
var ErrMalformedValue = errors.New("malformed storage value")

// DecodeUintLE decodes a little-endian unsigned integer of up to 32 bytes.
// An empty value decodes as zero, matching an absent storage entry.
func DecodeUintLE(b []byte) (*uint256.Int, error) {
	if len(b) > 32 {
		return nil, fmt.Errorf("%w: %d bytes exceed a 256-bit integer", ErrMalformedValue, len(b))
	}
	be := make([]byte, len(b))
	for i, v := range b {
		be[len(b)-1-i] = v
	}
	return new(uint256.Int).SetBytes(be), nil
}

// DecodeUintLEPrefix decodes the first n bytes of b as a little-endian integer.
// Used for values whose leading field is the number of interest (e.g. a u64 nonce).
func DecodeUintLEPrefix(b []byte, n int) (*uint256.Int, error) {
	if len(b) == 0 {
		return new(uint256.Int), nil
	}
	if len(b) < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrMalformedValue, n, len(b))
	}
	return DecodeUintLE(b[:n])
}
