package locator

import (
	"errors"
	"fmt"
)

// Kind classifies how a search ended when it did not produce a height.
type Kind int

const (
	// KindReadFailure means a probe read failed or returned an undecodable sample.
	KindReadFailure Kind = iota + 1

	// KindContractViolation means the sampled values contradict the search precondition
	// (for example a numeric value that decreases with height).
	KindContractViolation

	// KindCancelled means the caller cancelled the search. It is a terminal state, not a failure.
	KindCancelled
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindReadFailure:
		return "read_failure"
	case KindContractViolation:
		return "contract_violation"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Sentinel errors matched by errors.Is against a *SearchError.
var (
	ErrReadFailure       = errors.New("probe read failed")
	ErrContractViolation = errors.New("search precondition violated")
	ErrCancelled         = errors.New("search cancelled")
)

// SearchError is returned by every locator when a search stops without a result.
// It carries the height being probed and the last window so the caller can report
// "search failed near height X" or resume manually.
type SearchError struct {
	Kind   Kind
	Height uint64
	Window Window
	Err    error
}

// Error implements the error interface
func (e *SearchError) Error() string {
	switch e.Kind {
	case KindCancelled:
		return fmt.Sprintf("search cancelled in window %s", e.Window)
	case KindContractViolation:
		if e.Err != nil {
			return fmt.Sprintf("search precondition violated at height %d (window %s): %v", e.Height, e.Window, e.Err)
		}
		return fmt.Sprintf("search precondition violated at height %d (window %s)", e.Height, e.Window)
	default:
		if e.Err != nil {
			return fmt.Sprintf("read failed at height %d (window %s): %v", e.Height, e.Window, e.Err)
		}
		return fmt.Sprintf("read failed at height %d (window %s)", e.Height, e.Window)
	}
}

// Unwrap returns the underlying cause
func (e *SearchError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel that corresponds to the error kind
func (e *SearchError) Is(target error) bool {
	switch target {
	case ErrReadFailure:
		return e.Kind == KindReadFailure
	case ErrContractViolation:
		return e.Kind == KindContractViolation
	case ErrCancelled:
		return e.Kind == KindCancelled
	}
	return false
}

// AsSearchError extracts a *SearchError from err, if there is one
func AsSearchError(err error) (*SearchError, bool) {
	var se *SearchError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func readFailure(height uint64, w Window, err error) *SearchError {
	return &SearchError{Kind: KindReadFailure, Height: height, Window: w, Err: err}
}

func contractViolation(height uint64, w Window, format string, args ...interface{}) *SearchError {
	return &SearchError{Kind: KindContractViolation, Height: height, Window: w, Err: fmt.Errorf(format, args...)}
}

func cancelled(height uint64, w Window, cause error) *SearchError {
	return &SearchError{Kind: KindCancelled, Height: height, Window: w, Err: cause}
}
