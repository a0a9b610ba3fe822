package locator

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// session tracks one locator call: the current window, read count and timing.
type session[P any, S any] struct {
	ctx    context.Context
	reader SampleReader[P, S]
	probe  P
	opts   *Options
	kind   string
	logger *zap.Logger

	window Window
	reads  int
	steps  int
	start  time.Time
}

func newSession[P any, S any](ctx context.Context, r SampleReader[P, S], probe P, w Window, opts *Options, defaultKind string) *session[P, S] {
	kind := opts.kind(defaultKind)
	if m := opts.metrics(); m != nil {
		m.ActiveSearches.WithLabelValues(kind).Inc()
	}
	return &session[P, S]{
		ctx:    ctx,
		reader: r,
		probe:  probe,
		opts:   opts,
		kind:   kind,
		logger: opts.logger().With(zap.String("search", kind)),
		window: w,
		start:  time.Now(),
	}
}

// read samples one height. The context is checked before the read is issued and again
// after it returns; a read that completes after cancellation is discarded.
func (s *session[P, S]) read(height uint64) (S, error) {
	var zero S
	if err := s.ctx.Err(); err != nil {
		return zero, cancelled(height, s.window, err)
	}

	sample, err := s.reader.ReadAt(s.ctx, height, s.probe)
	s.reads++
	if m := s.opts.metrics(); m != nil {
		m.ReadsTotal.WithLabelValues(s.kind).Inc()
	}

	if cerr := s.ctx.Err(); cerr != nil {
		return zero, cancelled(height, s.window, cerr)
	}
	if err != nil {
		s.logger.Debug("sample read failed",
			zap.Uint64("height", height),
			zap.Stringer("window", s.window),
			zap.Error(err))
		return zero, readFailure(height, s.window, err)
	}
	return sample, nil
}

// narrow records a new window and reports it to the caller.
func (s *session[P, S]) narrow(w Window) {
	s.window = w
	s.steps++
	s.logger.Debug("search window narrowed",
		zap.Uint64("low", w.Low),
		zap.Uint64("high", w.High),
		zap.Int("reads", s.reads))
	s.opts.progress(w)
}

// finish records the outcome of the call and passes err through unchanged.
func (s *session[P, S]) finish(err error) error {
	outcome := "ok"
	if se, ok := AsSearchError(err); ok {
		outcome = se.Kind.String()
	} else if err != nil {
		outcome = "error"
	}

	if m := s.opts.metrics(); m != nil {
		m.ActiveSearches.WithLabelValues(s.kind).Dec()
		m.SearchesTotal.WithLabelValues(s.kind, outcome).Inc()
		m.SearchSteps.WithLabelValues(s.kind).Observe(float64(s.steps))
		m.SearchDuration.WithLabelValues(s.kind).Observe(time.Since(s.start).Seconds())
	}

	fields := []zap.Field{
		zap.String("outcome", outcome),
		zap.Int("reads", s.reads),
		zap.Int("steps", s.steps),
		zap.Duration("elapsed", time.Since(s.start)),
	}
	if err != nil {
		s.logger.Debug("search stopped", append(fields, zap.Error(err))...)
	} else {
		s.logger.Debug("search finished", fields...)
	}
	return err
}
