package locator

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// numericPoint is a sample together with its decoded value.
type numericPoint[S any] struct {
	height uint64
	sample S
	value  *uint256.Int
}

// LocateNumericTarget finds the height whose decoded value matches target under the
// policy in opts (PolicyNearest when opts is nil).
//
// Values must be non-decreasing in height. A target at or beyond value(head) returns
// head and a target at or below value(0) returns 0, both without any narrowing step.
// Otherwise the search keeps
//
//	PolicyNearest:        value(low) <= target <  value(high)
//	PolicyFirstAtOrAbove: value(low) <  target <= value(high)
//
// and PolicyNearest reports whichever end is closer, ties going to low. On a plateau the
// nearest policy returns some height carrying the boundary value, not necessarily the first.
//
// value(0) > value(head), or a midpoint value outside [value(low), value(high)], is
// reported as ErrContractViolation. A sample that fails to decode is a read failure.
func LocateNumericTarget[P any, S any](ctx context.Context, r SampleReader[P, S], probe P, head uint64, target *uint256.Int, decode DecodeFunc[S], opts *Options) (*NumericMatch[S], error) {
	if r == nil {
		return nil, errors.New("reader cannot be nil")
	}
	if decode == nil {
		return nil, errors.New("decode func cannot be nil")
	}
	if target == nil {
		return nil, errors.New("target cannot be nil")
	}

	s := newSession(ctx, r, probe, Window{Low: 0, High: head}, opts, "numeric_target")
	result, err := locateNumeric(s, head, target, decode, opts.policy())
	return result, s.finish(err)
}

func locateNumeric[P any, S any](s *session[P, S], head uint64, target *uint256.Int, decode DecodeFunc[S], policy Policy) (*NumericMatch[S], error) {
	readValue := func(height uint64) (*numericPoint[S], error) {
		sample, err := s.read(height)
		if err != nil {
			return nil, err
		}
		value, err := decode(sample)
		if err != nil {
			return nil, readFailure(height, s.window, fmt.Errorf("decode sample: %w", err))
		}
		return &numericPoint[S]{height: height, sample: sample, value: value}, nil
	}

	low, err := readValue(0)
	if err != nil {
		return nil, err
	}
	if head == 0 {
		return s.match(low, target, Window{}), nil
	}

	high, err := readValue(head)
	if err != nil {
		return nil, err
	}

	if low.value.Gt(high.value) {
		return nil, contractViolation(head, s.window,
			"value at genesis (%s) exceeds value at head (%s)", low.value.Dec(), high.value.Dec())
	}
	if !target.Lt(high.value) {
		return s.match(high, target, Window{Low: head, High: head}), nil
	}
	if !target.Gt(low.value) {
		return s.match(low, target, Window{}), nil
	}

	// belowOrAt reports whether a midpoint value belongs to the low side of the boundary.
	belowOrAt := func(v *uint256.Int) bool {
		if policy == PolicyFirstAtOrAbove {
			return v.Lt(target)
		}
		return !v.Gt(target)
	}

	for high.height-low.height > 1 {
		midHeight := low.height + (high.height-low.height)/2
		mid, err := readValue(midHeight)
		if err != nil {
			return nil, err
		}

		if mid.value.Lt(low.value) || mid.value.Gt(high.value) {
			return nil, contractViolation(midHeight, s.window,
				"value %s at height %d outside [%s, %s]", mid.value.Dec(), midHeight, low.value.Dec(), high.value.Dec())
		}

		if belowOrAt(mid.value) {
			low = mid
		} else {
			high = mid
		}
		s.narrow(Window{Low: low.height, High: high.height})
	}

	w := Window{Low: low.height, High: high.height}
	if policy == PolicyFirstAtOrAbove {
		return s.match(high, target, w), nil
	}

	distLow := new(uint256.Int).Sub(target, low.value)
	distHigh := new(uint256.Int).Sub(high.value, target)
	if !distLow.Gt(distHigh) {
		return s.match(low, target, w), nil
	}
	return s.match(high, target, w), nil
}

func (s *session[P, S]) match(p *numericPoint[S], target *uint256.Int, w Window) *NumericMatch[S] {
	return &NumericMatch[S]{
		Height:   p.height,
		Value:    p.value,
		Distance: absDiff(p.value, target),
		Sample:   p.sample,
		Window:   w,
		Reads:    s.reads,
	}
}

func absDiff(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Sub(b, a)
	}
	return new(uint256.Int).Sub(a, b)
}
