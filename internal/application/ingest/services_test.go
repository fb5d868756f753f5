package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/scanproof/internal/application"
	apprecords "github.com/bryanwahyu/scanproof/internal/application/records"
	domain "github.com/bryanwahyu/scanproof/internal/domain/records"
	"github.com/bryanwahyu/scanproof/internal/infra/db/memory"
	"github.com/bryanwahyu/scanproof/internal/infra/tsa"
	"github.com/bryanwahyu/scanproof/internal/infra/tsa/tsatest"
)

// fakeSource hands out its queued messages one by one, then cancels the
// loop context so Run returns.
type fakeSource struct {
	mu     sync.Mutex
	queue  [][]byte
	cancel context.CancelFunc
}

func (f *fakeSource) Receive(_ context.Context, _ time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		f.cancel()
		return nil, nil
	}
	msg := f.queue[0]
	f.queue = f.queue[1:]
	return msg, nil
}

type harness struct {
	loop  *Loop
	svc   *apprecords.Service
	store *memory.Store
	tsa   *tsatest.Server
	run   func(t *testing.T) error
}

func newHarness(t *testing.T, messages ...[]byte) *harness {
	t.Helper()

	srv, err := tsatest.New()
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	certFile, err := srv.WriteCertFile(t.TempDir())
	require.NoError(t, err)

	client, err := tsa.New(tsa.Options{
		URL:      srv.URL,
		CertFile: certFile,
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)

	store := memory.NewStore()
	svc := &apprecords.Service{
		Records: store.Records(),
		Tokens:  store.Tokens(),
		TSA:     client,
		Clock:   application.SystemClock{},
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	src := &fakeSource{queue: messages, cancel: cancel}
	loop := &Loop{
		Source:         src,
		TSA:            client,
		Store:          svc,
		ReceiveTimeout: 100 * time.Millisecond,
		WriteBackoff:   time.Millisecond,
	}

	return &harness{
		loop:  loop,
		svc:   svc,
		store: store,
		tsa:   srv,
		run: func(t *testing.T) error {
			t.Helper()
			done := make(chan error, 1)
			go func() { done <- loop.Run(ctx) }()
			select {
			case err := <-done:
				return err
			case <-time.After(30 * time.Second):
				t.Fatal("ingestion loop did not stop")
				return nil
			}
		},
	}
}

func validMessage(correlationID string) []byte {
	return []byte(`{"correlationId":"` + correlationID + `","probe":"tls-scan","payload":{"host":"example.org","port":443}}`)
}

func TestLoopIngestsAndProofVerifies(t *testing.T) {
	h := newHarness(t, validMessage("abc-123"))
	require.NoError(t, h.run(t))

	ok, err := h.svc.Verify(context.Background(), "abc-123")
	require.NoError(t, err)
	assert.True(t, ok)

	s := h.loop.Stats()
	assert.EqualValues(t, 1, s.Received)
	assert.EqualValues(t, 1, s.Stored)
	assert.EqualValues(t, 0, s.Dropped)
}

func TestLoopDropsMalformedMessage(t *testing.T) {
	h := newHarness(t,
		[]byte(`__import__("os")`), // not JSON at all
		validMessage("abc-123"),
	)
	require.NoError(t, h.run(t))

	// the bad message left no trace, the good one went through
	count, err := h.svc.CountRecords(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	s := h.loop.Stats()
	assert.EqualValues(t, 2, s.Received)
	assert.EqualValues(t, 1, s.Dropped)
	assert.EqualValues(t, 1, s.Stored)
}

func TestLoopDropsMessageWhenAuthorityRejects(t *testing.T) {
	h := newHarness(t, validMessage("abc-123"))
	h.tsa.SetRejecting(true)
	require.NoError(t, h.run(t))

	// no record without its proof
	_, err := h.svc.GetRecordByCorrelation(context.Background(), "abc-123")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.svc.GetToken(context.Background(), "abc-123")
	require.ErrorIs(t, err, domain.ErrNotFound)

	s := h.loop.Stats()
	assert.EqualValues(t, 1, s.Dropped)
	assert.EqualValues(t, 0, s.Stored)
}

func TestLoopRedeliveryIsIdempotent(t *testing.T) {
	h := newHarness(t, validMessage("abc-123"), validMessage("abc-123"))
	require.NoError(t, h.run(t))

	count, err := h.svc.CountRecords(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	s := h.loop.Stats()
	assert.EqualValues(t, 1, s.Stored)
	assert.EqualValues(t, 1, s.Duplicates)
}

func TestLoopRedeliveryBackfillsMissingToken(t *testing.T) {
	h := newHarness(t, validMessage("abc-123"))

	// simulate an earlier partial write: record stored, token lost
	env, err := domain.ParseEnvelope(validMessage("abc-123"))
	require.NoError(t, err)
	_, err = h.svc.CreateRecord(context.Background(), env)
	require.NoError(t, err)

	require.NoError(t, h.run(t))

	ok, err := h.svc.Verify(context.Background(), "abc-123")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoopConflictingRedeliveryDropsToken(t *testing.T) {
	h := newHarness(t, []byte(`{"correlationId":"abc-123","payload":{"host":"evil.example"}}`))

	// a record with the same correlation id but different bytes is
	// already stored
	env, err := domain.ParseEnvelope(validMessage("abc-123"))
	require.NoError(t, err)
	stored, err := h.svc.CreateRecord(context.Background(), env)
	require.NoError(t, err)

	require.NoError(t, h.run(t))

	// the conflicting token must not be backfilled, and the stored
	// record is untouched
	_, err = h.svc.GetToken(context.Background(), "abc-123")
	require.ErrorIs(t, err, domain.ErrNotFound)

	got, err := h.svc.GetRecordByCorrelation(context.Background(), "abc-123")
	require.NoError(t, err)
	assert.Equal(t, stored.Payload, got.Payload)

	s := h.loop.Stats()
	assert.EqualValues(t, 1, s.Duplicates)
	assert.EqualValues(t, 1, s.Dropped)
	assert.EqualValues(t, 0, s.Stored)
}

// failingRecords refuses every write with a transient-looking error.
type failingRecords struct {
	domain.RecordRepository
}

func (f *failingRecords) Create(context.Context, *domain.ScanRecord) error {
	return errors.New("connection refused")
}

func TestLoopEscalatesPersistenceFailure(t *testing.T) {
	h := newHarness(t, validMessage("abc-123"))
	h.svc.Records = &failingRecords{RecordRepository: h.store.Records()}
	h.loop.WriteAttempts = 2

	err := h.run(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist scan record")
}
