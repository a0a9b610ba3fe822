package substrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Sentinel errors
var (
	// ErrBlockNotFound is returned when the node has no block at the requested height
	ErrBlockNotFound = errors.New("block not found")

	// ErrInvalidKey is returned for malformed storage keys
	ErrInvalidKey = errors.New("invalid storage key")
)

// BlockNumber is a block height as encoded by Substrate nodes: a 0x-prefixed hex string
// that may carry leading zeros, or occasionally a plain JSON number.
type BlockNumber uint64

// UnmarshalJSON implements json.Unmarshaler
func (n *BlockNumber) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] != '"' {
		v, err := strconv.ParseUint(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid block number %s: %w", data, err)
		}
		*n = BlockNumber(v)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return fmt.Errorf("invalid block number %q: %w", s, err)
	}
	*n = BlockNumber(v)
	return nil
}

// MarshalJSON encodes the number as 0x-prefixed hex
func (n BlockNumber) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("0x%x", uint64(n)))
}

// Uint64 returns the height
func (n BlockNumber) Uint64() uint64 {
	return uint64(n)
}

// Header is the subset of a Substrate block header the prober uses
type Header struct {
	ParentHash     common.Hash `json:"parentHash"`
	Number         BlockNumber `json:"number"`
	StateRoot      common.Hash `json:"stateRoot"`
	ExtrinsicsRoot common.Hash `json:"extrinsicsRoot"`
}

// RuntimeVersion is the result of state_getRuntimeVersion
type RuntimeVersion struct {
	SpecName           string `json:"specName"`
	ImplName           string `json:"implName"`
	SpecVersion        uint32 `json:"specVersion"`
	ImplVersion        uint32 `json:"implVersion"`
	TransactionVersion uint32 `json:"transactionVersion"`
}
