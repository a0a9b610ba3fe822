package storage

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// Key prefixes for different data types
const (
	prefixHashes   = "/data/hashes/"
	prefixSamples  = "/data/samples/"
	prefixSearches = "/data/searches/"
)

// BlockHashKey returns the key for the finalized hash at height
// Format: /data/hashes/{height as 8-byte big-endian}
func BlockHashKey(height uint64) []byte {
	return append([]byte(prefixHashes), encodeUint64(height)...)
}

// SampleKey returns the key for a storage value at a block
// Format: /data/samples/{32-byte block hash}{storage key}
func SampleKey(hash common.Hash, storageKey []byte) []byte {
	key := make([]byte, 0, len(prefixSamples)+common.HashLength+len(storageKey))
	key = append(key, prefixSamples...)
	key = append(key, hash.Bytes()...)
	return append(key, storageKey...)
}

// SearchRecordKey returns the key for a search record
// Format: /data/searches/{id}
func SearchRecordKey(id string) []byte {
	return []byte(prefixSearches + id)
}

// encodeUint64 encodes uint64 to bytes in big-endian format
func encodeUint64(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

// incrementPrefix returns a prefix that is one greater than the input
// Used for creating upper bounds in range scans
func incrementPrefix(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	result := make([]byte, len(prefix))
	copy(result, prefix)
	for i := len(result) - 1; i >= 0; i-- {
		if result[i] < 0xff {
			result[i]++
			return result[:i+1]
		}
	}
	// All bytes were 0xff: no upper bound
	return nil
}
