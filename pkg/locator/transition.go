// Package locator binary-searches chain history for the height at which a sampled
// value changes.
//
// Every search is a plain function over an injected SampleReader. A search owns
// nothing but its window: no timers, no retries, no network clients. Reads inside
// one search are strictly sequential because each step depends on the previous one.
// Independent searches may share a reader concurrently.
package locator

import (
	"context"
	"errors"
)

// LocateTransition finds the smallest height h in [0, head] with sample(h) == sample(head).
//
// The value must change at most once in the "final value" sense: the heights whose
// sample equals sample(head) form a contiguous suffix [h, head]. Storage values that
// only move forward (counters, indices) satisfy this; values that return to an earlier
// state do not, and the result is then some boundary, not necessarily the last one.
//
// head is fixed by the caller; blocks produced during the search are ignored.
// Any read failure aborts the search with a *SearchError.
func LocateTransition[P any, S any](ctx context.Context, r SampleReader[P, S], probe P, head uint64, equal EqualFunc[S], opts *Options) (*Transition[S], error) {
	if r == nil {
		return nil, errors.New("reader cannot be nil")
	}
	if equal == nil {
		return nil, errors.New("equal func cannot be nil")
	}

	s := newSession(ctx, r, probe, Window{Low: 0, High: head}, opts, "transition")
	result, err := locateTransition(s, head, equal)
	return result, s.finish(err)
}

func locateTransition[P any, S any](s *session[P, S], head uint64, equal EqualFunc[S]) (*Transition[S], error) {
	if head == 0 {
		genesis, err := s.read(0)
		if err != nil {
			return nil, err
		}
		return &Transition[S]{
			Window:     Window{},
			LowSample:  genesis,
			HighSample: genesis,
			Reads:      s.reads,
		}, nil
	}

	lowSample, err := s.read(0)
	if err != nil {
		return nil, err
	}
	highSample, err := s.read(head)
	if err != nil {
		return nil, err
	}

	// The value was always what it is now.
	if equal(lowSample, highSample) {
		return &Transition[S]{
			Window:     Window{},
			LowSample:  lowSample,
			HighSample: highSample,
			Reads:      s.reads,
		}, nil
	}

	low, high := uint64(0), head
	for high-low > 1 {
		mid := low + (high-low)/2
		midSample, err := s.read(mid)
		if err != nil {
			return nil, err
		}

		if equal(midSample, highSample) {
			high, highSample = mid, midSample
		} else {
			low, lowSample = mid, midSample
		}
		s.narrow(Window{Low: low, High: high})
	}

	return &Transition[S]{
		Boundary:   high,
		Window:     Window{Low: low, High: high},
		LowSample:  lowSample,
		HighSample: highSample,
		Changed:    true,
		Reads:      s.reads,
	}, nil
}
