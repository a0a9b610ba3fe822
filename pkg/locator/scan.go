package locator

import (
	"context"
	"errors"
	"fmt"
)

// ScanOptions configures LocateAllTransitions. A nil *ScanOptions is valid.
type ScanOptions[S any] struct {
	Options

	// Prune, when set, skips a segment whose end samples cannot contain a change of interest
	Prune func(low, high S) bool

	// MaxChanges stops the scan after this many changes (0 = no limit).
	// Changes are found newest first, so the limit keeps the most recent ones.
	MaxChanges int
}

type segment[S any] struct {
	low, high             uint64
	lowSample, highSample S
}

// LocateAllTransitions returns every height h in (from, to] where sample(h) != sample(h-1),
// newest first.
//
// A segment whose two end samples are equal is assumed to contain no change, so a value
// that leaves and returns to the same state inside one segment is missed. Monotonic
// values (nonces, counters) never do that. Cost is O(c * log(to-from)) reads for c changes.
func LocateAllTransitions[P any, S any](ctx context.Context, r SampleReader[P, S], probe P, from, to uint64, equal EqualFunc[S], opts *ScanOptions[S]) ([]Change[S], error) {
	if r == nil {
		return nil, errors.New("reader cannot be nil")
	}
	if equal == nil {
		return nil, errors.New("equal func cannot be nil")
	}
	if from > to {
		return nil, fmt.Errorf("invalid scan range: from %d > to %d", from, to)
	}

	var base *Options
	if opts != nil {
		base = &opts.Options
	}

	s := newSession(ctx, r, probe, Window{Low: from, High: to}, base, "transition_scan")
	changes, err := scanTransitions(s, from, to, equal, opts)
	return changes, s.finish(err)
}

func scanTransitions[P any, S any](s *session[P, S], from, to uint64, equal EqualFunc[S], opts *ScanOptions[S]) ([]Change[S], error) {
	changes := make([]Change[S], 0)
	if from == to {
		return changes, nil
	}

	fromSample, err := s.read(from)
	if err != nil {
		return nil, err
	}
	toSample, err := s.read(to)
	if err != nil {
		return nil, err
	}

	var prune func(low, high S) bool
	maxChanges := 0
	if opts != nil {
		prune = opts.Prune
		maxChanges = opts.MaxChanges
	}

	// Depth-first with the upper half on top of the stack, so changes come out newest first.
	stack := []segment[S]{{low: from, high: to, lowSample: fromSample, highSample: toSample}}
	for len(stack) > 0 {
		seg := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if equal(seg.lowSample, seg.highSample) {
			continue
		}
		if prune != nil && prune(seg.lowSample, seg.highSample) {
			continue
		}

		if seg.high-seg.low == 1 {
			changes = append(changes, Change[S]{Height: seg.high, Before: seg.lowSample, After: seg.highSample})
			if maxChanges > 0 && len(changes) >= maxChanges {
				break
			}
			continue
		}

		s.window = Window{Low: seg.low, High: seg.high}
		mid := seg.low + (seg.high-seg.low)/2
		midSample, err := s.read(mid)
		if err != nil {
			return nil, err
		}

		stack = append(stack,
			segment[S]{low: seg.low, high: mid, lowSample: seg.lowSample, highSample: midSample},
			segment[S]{low: mid, high: seg.high, lowSample: midSample, highSample: seg.highSample},
		)
		s.narrow(Window{Low: seg.low, High: seg.high})
	}

	return changes, nil
}
