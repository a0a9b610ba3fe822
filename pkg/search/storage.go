package search

import (
	"bytes"
	"context"
	"strings"

	"github.com/0xmhha/chainprobe/pkg/locator"
	"github.com/0xmhha/chainprobe/pkg/substrate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// StorageChangeRequest asks when a storage value last changed
type StorageChangeRequest struct {
	// Key is a 0x-prefixed storage key or a well-known name such as "Timestamp.Now"
	Key string `json:"key"`
}

// StorageChangeResult is the answer to a StorageChangeRequest
type StorageChangeResult struct {
	Key   substrate.StorageKey  `json:"key"`
	Entry *substrate.DecodedKey `json:"entry,omitempty"`
	Head  uint64                `json:"head"`
	// Changed is false when the value has been the same since genesis
	Changed   bool           `json:"changed"`
	Height    uint64         `json:"height"`
	BlockHash common.Hash    `json:"blockHash"`
	Previous  hexutil.Bytes  `json:"previous"`
	Current   hexutil.Bytes  `json:"current"`
	Window    locator.Window `json:"window"`
	Reads     int            `json:"reads"`
}

// StorageNumberRequest asks at which height a numeric storage value reached a target
type StorageNumberRequest struct {
	Key string `json:"key"`
	// Target is a decimal or 0x-prefixed hex integer
	Target string `json:"target"`
	// Policy is "nearest" (default) or "first_at_or_above"
	Policy string `json:"policy,omitempty"`
	// Width decodes only the first Width bytes of the value (0 = the whole value)
	Width int `json:"width,omitempty"`
}

// StorageNumberResult is the answer to a StorageNumberRequest
type StorageNumberResult struct {
	Key       substrate.StorageKey  `json:"key"`
	Entry     *substrate.DecodedKey `json:"entry,omitempty"`
	Head      uint64                `json:"head"`
	Target    string                `json:"target"`
	Height    uint64                `json:"height"`
	BlockHash common.Hash           `json:"blockHash"`
	Value     string                `json:"value"`
	Distance  string                `json:"distance"`
	Raw       hexutil.Bytes         `json:"raw"`
	Policy    string                `json:"policy"`
	Window    locator.Window        `json:"window"`
	Reads     int                   `json:"reads"`
}

func resolveKey(key string) (substrate.StorageKey, error) {
	if strings.TrimSpace(key) == "" {
		return nil, invalid("storage key is required")
	}
	return substrate.ResolveKey(key)
}

// ParseTarget parses a decimal or 0x-prefixed hex unsigned integer of up to 256 bits
func ParseTarget(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, invalid("target is required")
	}
	var (
		v   *uint256.Int
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := strings.TrimLeft(s[2:], "0")
		if digits == "" {
			digits = "0"
		}
		v, err = uint256.FromHex("0x" + digits)
	} else {
		v, err = uint256.FromDecimal(s)
	}
	if err != nil {
		return nil, invalid("invalid target %q: %v", s, err)
	}
	return v, nil
}

// Validate checks the request without touching the chain
func (r StorageChangeRequest) Validate() error {
	_, err := resolveKey(r.Key)
	return err
}

// Validate checks the request without touching the chain
func (r StorageNumberRequest) Validate() error {
	if _, err := resolveKey(r.Key); err != nil {
		return err
	}
	if _, err := ParseTarget(r.Target); err != nil {
		return err
	}
	if _, err := locator.ParsePolicy(r.Policy); err != nil {
		return invalid("%v", err)
	}
	if r.Width < 0 || r.Width > 32 {
		return invalid("width must be between 0 and 32, got %d", r.Width)
	}
	return nil
}

// FindStorageChange finds the first height at which a storage value became its current value
func (s *Service) FindStorageChange(ctx context.Context, req StorageChangeRequest, progress locator.ProgressFunc) (*StorageChangeResult, error) {
	key, err := resolveKey(req.Key)
	if err != nil {
		return nil, err
	}

	head, err := s.head(ctx)
	if err != nil {
		return nil, err
	}

	t, err := locator.LocateTransition[substrate.StorageKey, []byte](ctx, s.reader, key, head, bytes.Equal, s.options(KindStorageChange, progress))
	if err != nil {
		return nil, err
	}

	return &StorageChangeResult{
		Key:       key,
		Entry:     s.decodeKeyQuietly(key),
		Head:      head,
		Changed:   t.Changed,
		Height:    t.Boundary,
		BlockHash: s.blockHash(ctx, t.Boundary),
		Previous:  t.LowSample,
		Current:   t.HighSample,
		Window:    t.Window,
		Reads:     t.Reads,
	}, nil
}

// FindStorageNumber finds the height whose little-endian integer value matches a target
func (s *Service) FindStorageNumber(ctx context.Context, req StorageNumberRequest, progress locator.ProgressFunc) (*StorageNumberResult, error) {
	key, err := resolveKey(req.Key)
	if err != nil {
		return nil, err
	}
	target, err := ParseTarget(req.Target)
	if err != nil {
		return nil, err
	}
	policy, err := locator.ParsePolicy(req.Policy)
	if err != nil {
		return nil, invalid("%v", err)
	}
	if req.Width < 0 || req.Width > 32 {
		return nil, invalid("width must be between 0 and 32, got %d", req.Width)
	}

	decode := substrate.DecodeUintLE
	if req.Width > 0 {
		width := req.Width
		decode = func(b []byte) (*uint256.Int, error) {
			return substrate.DecodeUintLEPrefix(b, width)
		}
	}

	head, err := s.head(ctx)
	if err != nil {
		return nil, err
	}

	opts := s.options(KindStorageNumber, progress)
	opts.Policy = policy
	match, err := locator.LocateNumericTarget[substrate.StorageKey, []byte](ctx, s.reader, key, head, target, locator.DecodeFunc[[]byte](decode), opts)
	if err != nil {
		return nil, err
	}

	return &StorageNumberResult{
		Key:       key,
		Entry:     s.decodeKeyQuietly(key),
		Head:      head,
		Target:    target.Dec(),
		Height:    match.Height,
		BlockHash: s.blockHash(ctx, match.Height),
		Value:     match.Value.Dec(),
		Distance:  match.Distance.Dec(),
		Raw:       match.Sample,
		Policy:    policy.String(),
		Window:    match.Window,
		Reads:     match.Reads,
	}, nil
}
