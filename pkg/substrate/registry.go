package substrate

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrUnknownKey is returned when no registered storage entry matches a key
var ErrUnknownKey = errors.New("unknown storage key")

// ArgSpec describes one map key argument
type ArgSpec struct {
	Name   string `json:"name" yaml:"name"`
	Hasher Hasher `json:"-" yaml:"-"`
	// Length is the SCALE-encoded length of the argument. Zero means "the rest of the key"
	// and is only valid for the last argument.
	Length int `json:"length" yaml:"length"`
}

// Entry is a storage item the registry can recognise
type Entry struct {
	Pallet string
	Item   string
	Args   []ArgSpec
}

// Name returns Pallet.Item
func (e Entry) Name() string {
	return e.Pallet + "." + e.Item
}

// Prefix returns the 32-byte key prefix of the entry
func (e Entry) Prefix() StorageKey {
	return PalletPrefix(e.Pallet, e.Item)
}

// DecodedArg is one argument recovered from a key
type DecodedArg struct {
	Name   string        `json:"name"`
	Hasher string        `json:"hasher"`
	Hash   hexutil.Bytes `json:"hash,omitempty"`
	// Value is the original argument; empty for opaque hashers
	Value hexutil.Bytes `json:"value,omitempty"`
}

// DecodedKey is the result of KeyRegistry.Decode
type DecodedKey struct {
	Pallet string       `json:"pallet"`
	Item   string       `json:"item"`
	Args   []DecodedArg `json:"args"`
}

// KeyRegistry maps 32-byte storage prefixes to known entries. It decodes keys without
// runtime metadata, so only registered entries are recognised.
type KeyRegistry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewKeyRegistry creates an empty registry
func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{entries: make(map[string]Entry)}
}

// DefaultKeyRegistry returns a registry preloaded with common FRAME storage items
func DefaultKeyRegistry() *KeyRegistry {
	r := NewKeyRegistry()
	for _, e := range defaultEntries {
		// default entries are valid by construction
		_ = r.Register(e)
	}
	return r
}

var defaultEntries = []Entry{
	{Pallet: "System", Item: "Number"},
	{Pallet: "System", Item: "ParentHash"},
	{Pallet: "System", Item: "Events"},
	{Pallet: "System", Item: "EventCount"},
	{Pallet: "System", Item: "Account", Args: []ArgSpec{{Name: "account", Hasher: Blake2_128Concat, Length: 32}}},
	{Pallet: "System", Item: "BlockHash", Args: []ArgSpec{{Name: "block_number", Hasher: Twox64Concat, Length: 4}}},
	{Pallet: "Timestamp", Item: "Now"},
	{Pallet: "Balances", Item: "TotalIssuance"},
	{Pallet: "Session", Item: "CurrentIndex"},
	{Pallet: "Session", Item: "Validators"},
	{Pallet: "Staking", Item: "ActiveEra"},
	{Pallet: "Staking", Item: "CurrentEra"},
	{Pallet: "Staking", Item: "ErasStakersOverview", Args: []ArgSpec{
		{Name: "era", Hasher: Twox64Concat, Length: 4},
		{Name: "validator", Hasher: Twox64Concat, Length: 32},
	}},
	{Pallet: "EthereumInboundQueue", Item: "Nonce", Args: []ArgSpec{{Name: "channel_id", Hasher: Twox64Concat, Length: 32}}},
	{Pallet: "EthereumOutboundQueue", Item: "Nonce", Args: []ArgSpec{{Name: "channel_id", Hasher: Twox64Concat, Length: 32}}},
}

// Register adds an entry, replacing any entry with the same prefix
func (r *KeyRegistry) Register(e Entry) error {
	if e.Pallet == "" || e.Item == "" {
		return errors.New("entry needs both pallet and item")
	}
	for i, arg := range e.Args {
		if arg.Length < 0 {
			return fmt.Errorf("%s arg %d: negative length", e.Name(), i)
		}
		if arg.Length == 0 && arg.Hasher.Transparent() && i != len(e.Args)-1 {
			return fmt.Errorf("%s arg %d: open length is only allowed on the last argument", e.Name(), i)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[string(e.Prefix())] = e
	return nil
}

// Entries returns the registered entries sorted by name
func (r *KeyRegistry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Decode identifies the storage item of key and splits its hashed arguments
func (r *KeyRegistry) Decode(key StorageKey) (*DecodedKey, error) {
	if len(key) < 32 {
		return nil, fmt.Errorf("%w: %s is shorter than a pallet prefix", ErrUnknownKey, key.Hex())
	}

	r.mu.RLock()
	e, ok := r.entries[string(key[:32])]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key.Hex())
	}

	decoded := &DecodedKey{Pallet: e.Pallet, Item: e.Item, Args: make([]DecodedArg, 0, len(e.Args))}
	rest := key[32:]
	for i, spec := range e.Args {
		hashLen := spec.Hasher.HashLen()
		if len(rest) < hashLen {
			return nil, fmt.Errorf("%w: %s arg %q truncated", ErrInvalidKey, e.Name(), spec.Name)
		}
		arg := DecodedArg{Name: spec.Name, Hasher: spec.Hasher.String()}
		if hashLen > 0 {
			arg.Hash = hexutil.Bytes(rest[:hashLen])
		}
		rest = rest[hashLen:]

		if spec.Hasher.Transparent() {
			n := spec.Length
			if n == 0 {
				n = len(rest)
			}
			if len(rest) < n {
				return nil, fmt.Errorf("%w: %s arg %q truncated", ErrInvalidKey, e.Name(), spec.Name)
			}
			arg.Value = hexutil.Bytes(rest[:n])
			rest = rest[n:]
		}
		decoded.Args = append(decoded.Args, arg)

		if i == len(e.Args)-1 && len(rest) > 0 {
			return nil, fmt.Errorf("%w: %d trailing bytes after %s", ErrInvalidKey, len(rest), e.Name())
		}
	}
	if len(e.Args) == 0 && len(rest) > 0 {
		return nil, fmt.Errorf("%w: %s is a plain value but the key has %d extra bytes", ErrInvalidKey, e.Name(), len(rest))
	}

	return decoded, nil
}
