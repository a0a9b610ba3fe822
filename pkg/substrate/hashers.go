package substrate

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
)

// Hasher is a FRAME storage hasher
type Hasher int

const (
	Identity Hasher = iota
	Twox64Concat
	Twox128
	Twox256
	Blake2_128
	Blake2_128Concat
	Blake2_256
)

var hasherNames = map[Hasher]string{
	Identity:         "Identity",
	Twox64Concat:     "Twox64Concat",
	Twox128:          "Twox128",
	Twox256:          "Twox256",
	Blake2_128:       "Blake2_128",
	Blake2_128Concat: "Blake2_128Concat",
	Blake2_256:       "Blake2_256",
}

// String returns the FRAME name of the hasher
func (h Hasher) String() string {
	if name, ok := hasherNames[h]; ok {
		return name
	}
	return fmt.Sprintf("Hasher(%d)", int(h))
}

// ParseHasher parses a FRAME hasher name, case-insensitively
func ParseHasher(name string) (Hasher, error) {
	for h, n := range hasherNames {
		if strings.EqualFold(n, name) {
			return h, nil
		}
	}
	return 0, fmt.Errorf("unknown hasher %q", name)
}

// HashLen is the number of hash bytes the hasher writes before any concatenated input
func (h Hasher) HashLen() int {
	switch h {
	case Twox64Concat:
		return 8
	case Twox128, Blake2_128, Blake2_128Concat:
		return 16
	case Twox256, Blake2_256:
		return 32
	default:
		return 0
	}
}

// Transparent reports whether the original input follows the hash in the key
func (h Hasher) Transparent() bool {
	return h == Identity || h == Twox64Concat || h == Blake2_128Concat
}

// Hash applies the hasher to data
func (h Hasher) Hash(data []byte) []byte {
	switch h {
	case Twox64Concat:
		return append(twox(data, 1), data...)
	case Twox128:
		return twox(data, 2)
	case Twox256:
		return twox(data, 4)
	case Blake2_128:
		return blake2b128(data)
	case Blake2_128Concat:
		return append(blake2b128(data), data...)
	case Blake2_256:
		sum := blake2b.Sum256(data)
		return sum[:]
	default:
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}
}

// twox concatenates little-endian xxh64 digests seeded 0..rounds-1
func twox(data []byte, rounds int) []byte {
	out := make([]byte, 0, 8*rounds)
	for seed := 0; seed < rounds; seed++ {
		d := xxhash.NewWithSeed(uint64(seed))
		_, _ = d.Write(data)
		out = binary.LittleEndian.AppendUint64(out, d.Sum64())
	}
	return out
}

func blake2b128(data []byte) []byte {
	d, err := blake2b.New(16, nil)
	if err != nil {
		// only fails for invalid sizes or oversized keys
		panic(err)
	}
	d.Write(data)
	return d.Sum(nil)
}
