package search

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/0xmhha/chainprobe/internal/testutil"
	"github.com/0xmhha/chainprobe/pkg/storage"
	"github.com/0xmhha/chainprobe/pkg/substrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	progress []Progress
	done     []*Record
}

func (p *recordingPublisher) PublishProgress(pr Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress = append(p.progress, pr)
}

func (p *recordingPublisher) PublishDone(rec *Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = append(p.done, rec)
}

func (p *recordingPublisher) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.progress), len(p.done)
}

// blockingChain stalls storage reads until Release is called or the read is cancelled
type blockingChain struct {
	*testutil.Chain
	started     chan struct{}
	startOnce   sync.Once
	release     chan struct{}
	releaseOnce sync.Once
}

func newBlockingChain(t *testing.T, head uint64) *blockingChain {
	c := &blockingChain{
		Chain:   testutil.NewChain(head),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	t.Cleanup(c.Release)
	return c
}

func (c *blockingChain) ReadAt(ctx context.Context, height uint64, key substrate.StorageKey) ([]byte, error) {
	c.startOnce.Do(func() { close(c.started) })
	select {
	case <-c.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c.Chain.ReadAt(ctx, height, key)
}

func (c *blockingChain) Release() {
	c.releaseOnce.Do(func() { close(c.release) })
}

func (c *blockingChain) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-c.started:
	case <-time.After(5 * time.Second):
		t.Fatal("search did not start reading")
	}
}

func waitJob(t *testing.T, svc *Service, id string) *Record {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec, err := svc.Wait(ctx, id)
	require.NoError(t, err)
	return rec
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"block":                KindBlockByTimestamp,
		"block_by_timestamp":   KindBlockByTimestamp,
		"change":               KindStorageChange,
		"number":               KindStorageNumber,
		"bridge":               KindBridgeNonceChanges,
		"bridge_nonce_changes": KindBridgeNonceChanges,
	} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseKind("weather")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestJobSucceeds(t *testing.T) {
	chain := testutil.NewChain(1000).SetValue(substrate.TimestampNowKey(), testutil.Timestamps(genesisMs, 6000))
	pub := &recordingPublisher{}
	svc := newService(t, chain, func(c *Config) { c.Publisher = pub })

	rec, err := svc.Start(KindBlockByTimestamp, json.RawMessage(`{"timestamp":"1600003000000"}`))
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, rec.Status)
	assert.Equal(t, KindBlockByTimestamp, rec.Kind)
	assert.NotEmpty(t, rec.ID)

	final := waitJob(t, svc, rec.ID)
	assert.Equal(t, StatusSucceeded, final.Status)
	assert.Nil(t, final.Error)
	require.NotNil(t, final.FinishedAt)
	require.NotNil(t, final.Window)

	var result BlockByTimestampResult
	require.NoError(t, json.Unmarshal(final.Result, &result))
	assert.Equal(t, uint64(500), result.Height)
	assert.Equal(t, testutil.HashOf(500), result.BlockHash)

	progress, done := pub.counts()
	assert.Greater(t, progress, 0)
	assert.Equal(t, 1, done)
	assert.Equal(t, 0, svc.Running())

	stored, err := svc.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, stored.Status)
}

func TestJobFails(t *testing.T) {
	key := substrate.SessionCurrentIndexKey()
	chain := testutil.NewChain(1000).SetValue(key, testutil.Counter(700))
	chain.FailAt(500, errors.New("connection reset"))
	svc := newService(t, chain, nil)

	rec, err := svc.Start(KindStorageChange, json.RawMessage(`{"key":"Session.CurrentIndex"}`))
	require.NoError(t, err)

	final := waitJob(t, svc, rec.ID)
	assert.Equal(t, StatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, "read_failure", final.Error.Kind)
	require.NotNil(t, final.Error.Height)
	assert.Equal(t, uint64(500), *final.Error.Height)
	assert.Contains(t, final.Error.Message, "connection reset")
	assert.Empty(t, final.Result)
}

func TestJobCancel(t *testing.T) {
	chain := newBlockingChain(t, 1000)
	chain.SetValue(substrate.SessionCurrentIndexKey(), testutil.Counter(700))
	svc := newService(t, chain, nil)

	rec, err := svc.Start(KindStorageChange, json.RawMessage(`{"key":"Session.CurrentIndex"}`))
	require.NoError(t, err)
	chain.waitStarted(t)

	running, err := svc.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, running.Status)
	assert.Equal(t, 1, svc.Running())

	require.NoError(t, svc.Cancel(rec.ID))

	final := waitJob(t, svc, rec.ID)
	assert.Equal(t, StatusCancelled, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, "cancelled", final.Error.Kind)

	assert.ErrorIs(t, svc.Cancel(rec.ID), ErrJobFinished)
	assert.ErrorIs(t, svc.Cancel("missing"), ErrJobNotFound)
}

func TestJobBusy(t *testing.T) {
	chain := newBlockingChain(t, 1000)
	chain.SetValue(substrate.SessionCurrentIndexKey(), testutil.Counter(700))
	svc := newService(t, chain, func(c *Config) { c.MaxConcurrent = 1 })

	request := json.RawMessage(`{"key":"Session.CurrentIndex"}`)
	first, err := svc.Start(KindStorageChange, request)
	require.NoError(t, err)
	chain.waitStarted(t)

	_, err = svc.Start(KindStorageChange, request)
	assert.ErrorIs(t, err, ErrBusy)

	chain.Release()
	final := waitJob(t, svc, first.ID)
	assert.Equal(t, StatusSucceeded, final.Status)

	second, err := svc.Start(KindStorageChange, request)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, waitJob(t, svc, second.ID).Status)
}

func TestJobInvalidRequests(t *testing.T) {
	svc := newService(t, testutil.NewChain(10), nil)

	tests := []struct {
		name    string
		kind    Kind
		request string
		want    error
	}{
		{name: "bad key", kind: KindStorageChange, request: `{"key":"0xzz"}`, want: ErrInvalidKey},
		{name: "missing timestamp", kind: KindBlockByTimestamp, request: `{}`, want: ErrInvalidRequest},
		{name: "unknown kind", kind: Kind("weather"), request: `{}`, want: ErrInvalidRequest},
		{name: "malformed json", kind: KindStorageChange, request: `{`, want: ErrInvalidRequest},
		{name: "empty body", kind: KindStorageNumber, request: ``, want: ErrInvalidRequest},
		{name: "bad target", kind: KindStorageNumber, request: `{"key":"System.Number","target":"many"}`, want: ErrInvalidRequest},
		{name: "bad channel", kind: KindBridgeNonceChanges, request: `{"channel":"0x01"}`, want: ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Start(tt.kind, json.RawMessage(tt.request))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	records, err := svc.List(0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestJobListAndHistory(t *testing.T) {
	chain := testutil.NewChain(100).SetValue(substrate.SessionCurrentIndexKey(), testutil.Counter(70))
	svc := newService(t, chain, func(c *Config) { c.HistoryLimit = 2 })

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := svc.Start(KindStorageChange, json.RawMessage(`{"key":"Session.CurrentIndex"}`))
		require.NoError(t, err)
		waitJob(t, svc, rec.ID)
		ids = append(ids, rec.ID)
	}

	records, err := svc.List(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, ids[2], records[0].ID)
	assert.Equal(t, ids[1], records[1].ID)

	_, err = svc.Get(ids[0])
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = svc.Get("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestInterruptedRecords(t *testing.T) {
	store := storage.NewMemoryStorage()
	left := Record{
		ID:        "0190aaaa-0000-7000-8000-000000000000",
		Kind:      KindStorageChange,
		Status:    StatusRunning,
		Request:   json.RawMessage(`{"key":"System.Number"}`),
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(left)
	require.NoError(t, err)
	require.NoError(t, store.PutRecord(left.ID, data))

	svc := newService(t, testutil.NewChain(10), func(c *Config) { c.Store = store })

	rec, err := svc.Get(left.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Equal(t, "interrupted", rec.Error.Kind)
	assert.NotNil(t, rec.FinishedAt)
	assert.ErrorIs(t, svc.Cancel(left.ID), ErrJobFinished)
}

func TestCloseCancelsJobs(t *testing.T) {
	chain := newBlockingChain(t, 1000)
	chain.SetValue(substrate.SessionCurrentIndexKey(), testutil.Counter(700))
	store := storage.NewMemoryStorage()
	svc, err := NewService(&Config{Reader: chain, Store: store, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)

	rec, err := svc.Start(KindStorageChange, json.RawMessage(`{"key":"Session.CurrentIndex"}`))
	require.NoError(t, err)
	chain.waitStarted(t)

	svc.Close()

	final, err := svc.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, final.Status)

	_, err = svc.Start(KindStorageChange, json.RawMessage(`{"key":"Session.CurrentIndex"}`))
	assert.ErrorIs(t, err, ErrClosed)
}
