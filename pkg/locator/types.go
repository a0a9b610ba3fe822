package locator

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Window is the [Low, High] height range a search has narrowed to. Low <= High always holds.
type Window struct {
	Low  uint64 `json:"low"`
	High uint64 `json:"high"`
}

// Width returns High - Low
func (w Window) Width() uint64 {
	return w.High - w.Low
}

// Contains reports whether height lies inside the window
func (w Window) Contains(height uint64) bool {
	return height >= w.Low && height <= w.High
}

// String formats the window the way progress is shown to operators
func (w Window) String() string {
	return fmt.Sprintf("#%d-#%d", w.Low, w.High)
}

// ProgressFunc receives the narrowed window after every search step.
type ProgressFunc func(Window)

// HeightSource reports the current chain frontier.
type HeightSource interface {
	GetHeight(ctx context.Context) (uint64, error)
}

// SampleReader reads the value described by probe at a given height.
// Implementations must tolerate concurrent calls from independent searches.
type SampleReader[P any, S any] interface {
	ReadAt(ctx context.Context, height uint64, probe P) (S, error)
}

// Reader is the full chain view consumed by the search service.
type Reader[P any, S any] interface {
	HeightSource
	SampleReader[P, S]
}

// ReadFunc adapts a plain function to SampleReader.
type ReadFunc[P any, S any] func(ctx context.Context, height uint64, probe P) (S, error)

// ReadAt calls f
func (f ReadFunc[P, S]) ReadAt(ctx context.Context, height uint64, probe P) (S, error) {
	return f(ctx, height, probe)
}

// EqualFunc compares two samples for the transition searches.
type EqualFunc[S any] func(a, b S) bool

// DecodeFunc turns a sample into a value of the numeric search domain.
type DecodeFunc[S any] func(S) (*uint256.Int, error)

// Policy selects which height the numeric search reports.
type Policy int

const (
	// PolicyNearest returns the height whose value is numerically closest to the target;
	// ties favour the lower height.
	PolicyNearest Policy = iota

	// PolicyFirstAtOrAbove returns the first height whose value is >= target.
	PolicyFirstAtOrAbove
)

// String returns the policy name
func (p Policy) String() string {
	switch p {
	case PolicyNearest:
		return "nearest"
	case PolicyFirstAtOrAbove:
		return "first_at_or_above"
	default:
		return "unknown"
	}
}

// ParsePolicy parses a policy name. An empty string selects PolicyNearest.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "nearest":
		return PolicyNearest, nil
	case "first_at_or_above", "first":
		return PolicyFirstAtOrAbove, nil
	default:
		return 0, fmt.Errorf("unknown search policy %q", s)
	}
}

// Options configures a single locator call. A nil *Options is valid.
type Options struct {
	// OnProgress is called with the narrowed window after every step
	OnProgress ProgressFunc

	// Policy selects the numeric match (ignored by transition searches)
	Policy Policy

	// Kind labels the search in logs and metrics, e.g. "storage_change"
	Kind string

	// Logger receives per-step debug output. Default: no-op
	Logger *zap.Logger

	// Metrics records reads, steps and outcomes. Optional.
	Metrics *Metrics
}

func (o *Options) progress(w Window) {
	if o != nil && o.OnProgress != nil {
		o.OnProgress(w)
	}
}

func (o *Options) logger() *zap.Logger {
	if o == nil || o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o *Options) kind(def string) string {
	if o == nil || o.Kind == "" {
		return def
	}
	return o.Kind
}

func (o *Options) metrics() *Metrics {
	if o == nil {
		return nil
	}
	return o.Metrics
}

func (o *Options) policy() Policy {
	if o == nil {
		return PolicyNearest
	}
	return o.Policy
}

// Transition is the result of LocateTransition.
type Transition[S any] struct {
	// Boundary is the lowest height whose sample equals the frontier sample
	Boundary uint64

	// Window is the final [Low, High] pair; High == Boundary
	Window Window

	// LowSample is the sample at Window.Low (the previous value when Changed)
	LowSample S

	// HighSample is the sample at the boundary
	HighSample S

	// Changed is false when the value never changed since genesis
	Changed bool

	// Reads is the number of probe reads performed
	Reads int
}

// NumericMatch is the result of LocateNumericTarget.
type NumericMatch[S any] struct {
	// Height is the chosen height
	Height uint64

	// Value is the decoded value at Height
	Value *uint256.Int

	// Distance is |Value - target|
	Distance *uint256.Int

	// Sample is the raw sample at Height
	Sample S

	// Window is the final [Low, High] pair
	Window Window

	// Reads is the number of probe reads performed
	Reads int
}

// Change is one transition found by LocateAllTransitions.
type Change[S any] struct {
	// Height is the first height carrying the new value
	Height uint64

	// Before is the sample at Height-1
	Before S

	// After is the sample at Height
	After S
}
