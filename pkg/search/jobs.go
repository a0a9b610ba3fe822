package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/0xmhha/chainprobe/internal/logger"
	"github.com/0xmhha/chainprobe/pkg/locator"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind names a search operation
type Kind string

// Search kinds
const (
	KindBlockByTimestamp   Kind = "block_by_timestamp"
	KindStorageChange      Kind = "storage_change"
	KindStorageNumber      Kind = "storage_number"
	KindBridgeNonceChanges Kind = "bridge_nonce_changes"
)

var kindAliases = map[string]Kind{
	"block_by_timestamp":   KindBlockByTimestamp,
	"block":                KindBlockByTimestamp,
	"storage_change":       KindStorageChange,
	"change":               KindStorageChange,
	"storage_number":       KindStorageNumber,
	"number":               KindStorageNumber,
	"bridge_nonce_changes": KindBridgeNonceChanges,
	"bridge":               KindBridgeNonceChanges,
}

// ParseKind accepts a kind name or its short alias (block, change, number, bridge)
func ParseKind(s string) (Kind, error) {
	if k, ok := kindAliases[s]; ok {
		return k, nil
	}
	return "", invalid("unknown search kind %q", s)
}

// Status is the lifecycle state of a search job
type Status string

// Job states
const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ErrorInfo describes why a search stopped without a result
type ErrorInfo struct {
	// Kind is read_failure, contract_violation, cancelled, invalid_request, interrupted or error
	Kind    string          `json:"kind"`
	Message string          `json:"message"`
	Height  *uint64         `json:"height,omitempty"`
	Window  *locator.Window `json:"window,omitempty"`
}

// NewErrorInfo classifies err for clients. A *locator.SearchError keeps its height and window.
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	info := &ErrorInfo{Kind: "error", Message: err.Error()}
	if se, ok := locator.AsSearchError(err); ok {
		height, window := se.Height, se.Window
		info.Kind = se.Kind.String()
		info.Height = &height
		info.Window = &window
		return info
	}
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidKey):
		info.Kind = "invalid_request"
	case errors.Is(err, context.Canceled):
		info.Kind = "cancelled"
	}
	return info
}

// Record is the stored state of a search job
type Record struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Status     Status          `json:"status"`
	Request    json.RawMessage `json:"request"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *ErrorInfo      `json:"error,omitempty"`
	Window     *locator.Window `json:"window,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

// Finished reports whether the job reached a terminal state
func (r *Record) Finished() bool {
	return r.Status != StatusRunning
}

func (r *Record) clone() *Record {
	c := *r
	if r.Window != nil {
		w := *r.Window
		c.Window = &w
	}
	return &c
}

// Progress is published after every narrowing step of a job
type Progress struct {
	ID     string         `json:"id"`
	Kind   Kind           `json:"kind"`
	Window locator.Window `json:"window"`
}

type runner func(ctx context.Context, progress locator.ProgressFunc) (interface{}, error)

type job struct {
	rec    *Record
	cancel context.CancelFunc
	done   chan struct{}
}

// Start validates a request and runs the search in the background.
// It returns ErrBusy when the concurrency limit is reached.
func (s *Service) Start(kind Kind, request json.RawMessage) (*Record, error) {
	run, err := s.prepare(kind, request)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	select {
	case s.sem <- struct{}{}:
	default:
		s.mu.Unlock()
		return nil, ErrBusy
	}

	id, err := uuid.NewV7()
	if err != nil {
		<-s.sem
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to generate search id: %w", err)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	j := &job{
		rec: &Record{
			ID:        id.String(),
			Kind:      kind,
			Status:    StatusRunning,
			Request:   request,
			CreatedAt: time.Now().UTC(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.jobs[j.rec.ID] = j
	s.wg.Add(1)
	snapshot := j.rec.clone()
	s.mu.Unlock()

	s.persist(snapshot)
	go s.run(ctx, j, run)

	s.logger.Info("search started",
		zap.String("id", snapshot.ID),
		zap.String("kind", string(kind)))
	return snapshot, nil
}

func (s *Service) run(ctx context.Context, j *job, run runner) {
	defer s.wg.Done()
	defer func() { <-s.sem }()
	defer j.cancel()

	log := logger.WithSearch(s.logger, string(j.rec.Kind), j.rec.ID)
	progress := func(w locator.Window) {
		s.mu.Lock()
		j.rec.Window = &w
		s.mu.Unlock()
		if s.publisher != nil {
			s.publisher.PublishProgress(Progress{ID: j.rec.ID, Kind: j.rec.Kind, Window: w})
		}
	}

	start := time.Now()
	result, err := run(ctx, progress)

	var encoded json.RawMessage
	if err == nil {
		encoded, err = json.Marshal(result)
		if err != nil {
			err = fmt.Errorf("failed to encode result: %w", err)
		}
	}

	s.mu.Lock()
	now := time.Now().UTC()
	j.rec.FinishedAt = &now
	switch {
	case err == nil:
		j.rec.Status = StatusSucceeded
		j.rec.Result = encoded
	case errors.Is(err, locator.ErrCancelled) || errors.Is(err, context.Canceled):
		j.rec.Status = StatusCancelled
		j.rec.Error = NewErrorInfo(err)
	default:
		j.rec.Status = StatusFailed
		j.rec.Error = NewErrorInfo(err)
	}
	final := j.rec.clone()
	s.mu.Unlock()

	s.persist(final)
	if _, perr := s.store.PruneRecords(s.historyLimit); perr != nil {
		log.Warn("failed to prune search history", zap.Error(perr))
	}

	s.mu.Lock()
	delete(s.jobs, final.ID)
	s.mu.Unlock()
	close(j.done)

	if s.publisher != nil {
		s.publisher.PublishDone(final)
	}

	fields := []zap.Field{
		zap.String("status", string(final.Status)),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	log.Info("search finished", fields...)
}

func (s *Service) persist(rec *Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("failed to encode search record", zap.String("id", rec.ID), zap.Error(err))
		return
	}
	if err := s.store.PutRecord(rec.ID, data); err != nil {
		s.logger.Error("failed to store search record", zap.String("id", rec.ID), zap.Error(err))
	}
}

// Get returns the current state of a job
func (s *Service) Get(id string) (*Record, error) {
	s.mu.RLock()
	if j, ok := s.jobs[id]; ok {
		rec := j.rec.clone()
		s.mu.RUnlock()
		return rec, nil
	}
	s.mu.RUnlock()

	data, found, err := s.store.GetRecord(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load search %s: %w", id, err)
	}
	if !found {
		return nil, ErrJobNotFound
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode search %s: %w", id, err)
	}
	return &rec, nil
}

// List returns up to limit jobs, newest first
func (s *Service) List(limit int) ([]*Record, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	items, err := s.store.ListRecords(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*Record, 0, len(items))
	for _, data := range items {
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("skipping undecodable search record", zap.Error(err))
			continue
		}
		if j, ok := s.jobs[rec.ID]; ok {
			records = append(records, j.rec.clone())
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

// Cancel stops a running job
func (s *Service) Cancel(id string) error {
	s.mu.RLock()
	j, ok := s.jobs[id]
	s.mu.RUnlock()
	if ok {
		j.cancel()
		return nil
	}

	rec, err := s.Get(id)
	if err != nil {
		return err
	}
	if rec.Finished() {
		return ErrJobFinished
	}
	return nil
}

// Wait blocks until a job finishes or ctx is done
func (s *Service) Wait(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	j, ok := s.jobs[id]
	s.mu.RUnlock()
	if ok {
		select {
		case <-j.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.Get(id)
}

// Running returns the number of jobs in progress
func (s *Service) Running() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Close cancels every running job and waits for them to stop
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// markInterrupted fails the records left running by a previous process
func (s *Service) markInterrupted() error {
	items, err := s.store.ListRecords(s.historyLimit)
	if err != nil {
		return fmt.Errorf("failed to load search history: %w", err)
	}
	for _, data := range items {
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil || rec.Finished() {
			continue
		}
		now := time.Now().UTC()
		rec.Status = StatusFailed
		rec.FinishedAt = &now
		rec.Error = &ErrorInfo{Kind: "interrupted", Message: "service stopped before the search finished"}
		s.persist(&rec)
	}
	return nil
}

func decodeRequest(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return invalid("request body is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return invalid("malformed request: %v", err)
	}
	return nil
}

// prepare validates a request and binds it to its search
func (s *Service) prepare(kind Kind, raw json.RawMessage) (runner, error) {
	switch kind {
	case KindBlockByTimestamp:
		var req TimestampRequest
		if err := decodeRequest(raw, &req); err != nil {
			return nil, err
		}
		if err := req.Validate(); err != nil {
			return nil, err
		}
		return func(ctx context.Context, p locator.ProgressFunc) (interface{}, error) {
			return s.FindBlockByTimestamp(ctx, req, p)
		}, nil

	case KindStorageChange:
		var req StorageChangeRequest
		if err := decodeRequest(raw, &req); err != nil {
			return nil, err
		}
		if err := req.Validate(); err != nil {
			return nil, err
		}
		return func(ctx context.Context, p locator.ProgressFunc) (interface{}, error) {
			return s.FindStorageChange(ctx, req, p)
		}, nil

	case KindStorageNumber:
		var req StorageNumberRequest
		if err := decodeRequest(raw, &req); err != nil {
			return nil, err
		}
		if err := req.Validate(); err != nil {
			return nil, err
		}
		return func(ctx context.Context, p locator.ProgressFunc) (interface{}, error) {
			return s.FindStorageNumber(ctx, req, p)
		}, nil

	case KindBridgeNonceChanges:
		var req BridgeNonceRequest
		if err := decodeRequest(raw, &req); err != nil {
			return nil, err
		}
		if err := req.Validate(); err != nil {
			return nil, err
		}
		return func(ctx context.Context, p locator.ProgressFunc) (interface{}, error) {
			return s.FindBridgeNonceChanges(ctx, req, p)
		}, nil

	default:
		return nil, invalid("unknown search kind %q", kind)
	}
}
