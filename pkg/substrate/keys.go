package substrate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var storageKeyPattern = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)

// StorageKey is a raw storage key
type StorageKey []byte

// Hex returns the 0x-prefixed hex form of the key
func (k StorageKey) Hex() string {
	return hexutil.Encode(k)
}

// String implements fmt.Stringer
func (k StorageKey) String() string {
	return k.Hex()
}

// HasPrefix reports whether the key starts with prefix
func (k StorageKey) HasPrefix(prefix StorageKey) bool {
	return bytes.HasPrefix(k, prefix)
}

// MarshalJSON encodes the key as hex
func (k StorageKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Hex())
}

// UnmarshalJSON decodes a hex key
func (k *StorageKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseStorageKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseStorageKey parses a 0x-prefixed hex storage key
func ParseStorageKey(s string) (StorageKey, error) {
	s = strings.TrimSpace(s)
	if !storageKeyPattern.MatchString(s) {
		return nil, fmt.Errorf("%w: %q is not 0x-prefixed hex", ErrInvalidKey, s)
	}
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: %q has an odd number of hex digits", ErrInvalidKey, s)
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return StorageKey(b), nil
}

// KeyArg is one map key argument together with its hasher
type KeyArg struct {
	Hasher Hasher
	Data   []byte
}

// PalletPrefix returns twox128(pallet) ++ twox128(item), the key of a plain storage value
// and the prefix of every entry of a storage map.
func PalletPrefix(pallet, item string) StorageKey {
	key := make([]byte, 0, 32)
	key = append(key, Twox128.Hash([]byte(pallet))...)
	key = append(key, Twox128.Hash([]byte(item))...)
	return key
}

// MapKey returns the key of a storage map entry
func MapKey(pallet, item string, args ...KeyArg) StorageKey {
	key := PalletPrefix(pallet, item)
	for _, arg := range args {
		key = append(key, arg.Hasher.Hash(arg.Data)...)
	}
	return key
}

// SystemNumberKey is System.Number, the current block number
func SystemNumberKey() StorageKey {
	return PalletPrefix("System", "Number")
}

// TimestampNowKey is Timestamp.Now, the block timestamp in unix milliseconds
func TimestampNowKey() StorageKey {
	return PalletPrefix("Timestamp", "Now")
}

// SessionCurrentIndexKey is Session.CurrentIndex
func SessionCurrentIndexKey() StorageKey {
	return PalletPrefix("Session", "CurrentIndex")
}

// BridgeNoncePrefix is the prefix of every EthereumInboundQueue.Nonce entry
func BridgeNoncePrefix() StorageKey {
	return PalletPrefix("EthereumInboundQueue", "Nonce")
}

// BridgeNonceKey is EthereumInboundQueue.Nonce(channel), the inbound message nonce of a bridge channel
func BridgeNonceKey(channel common.Hash) StorageKey {
	return MapKey("EthereumInboundQueue", "Nonce", KeyArg{Hasher: Twox64Concat, Data: channel.Bytes()})
}

// BridgeChannelFromKey extracts the channel id from an EthereumInboundQueue.Nonce key
func BridgeChannelFromKey(key StorageKey) (common.Hash, error) {
	prefix := BridgeNoncePrefix()
	want := len(prefix) + Twox64Concat.HashLen() + common.HashLength
	if !key.HasPrefix(prefix) || len(key) != want {
		return common.Hash{}, fmt.Errorf("%w: %s is not a bridge nonce key", ErrInvalidKey, key.Hex())
	}
	return common.BytesToHash(key[len(prefix)+Twox64Concat.HashLen():]), nil
}

var wellKnownKeys = map[string]func() StorageKey{
	"system.number":        SystemNumberKey,
	"timestamp.now":        TimestampNowKey,
	"session.currentindex": SessionCurrentIndexKey,
}

// WellKnownKeyNames lists the names accepted by ResolveKey
func WellKnownKeyNames() []string {
	names := make([]string, 0, len(wellKnownKeys))
	for name := range wellKnownKeys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveKey accepts either a well-known key name such as "Timestamp.Now" or a hex key
func ResolveKey(s string) (StorageKey, error) {
	if fn, ok := wellKnownKeys[strings.ToLower(strings.TrimSpace(s))]; ok {
		return fn(), nil
	}
	return ParseStorageKey(s)
}
