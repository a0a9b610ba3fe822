package cache

import (
	"strconv"
	"strings"
)

// KeyBuilder builds consistent cache keys for chain data
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder creates a key builder; prefix usually names the chain endpoint
func NewKeyBuilder(prefix string) *KeyBuilder {
	return &KeyBuilder{prefix: prefix}
}

// BlockHash builds the key for the block hash at a height
func (b *KeyBuilder) BlockHash(height uint64) string {
	return b.prefix + ":hash:" + strconv.FormatUint(height, 10)
}

// Sample builds the key for a storage value at a block hash.
// Both arguments are 0x-prefixed hex; they are lower-cased so equal keys collide.
func (b *KeyBuilder) Sample(blockHash, storageKey string) string {
	return b.prefix + ":sample:" + strings.ToLower(blockHash) + ":" + strings.ToLower(storageKey)
}

// Header builds the key for a decoded header by hash
func (b *KeyBuilder) Header(blockHash string) string {
	return b.prefix + ":header:" + strings.ToLower(blockHash)
}
