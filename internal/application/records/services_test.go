package records

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/scanproof/internal/application"
	domain "github.com/bryanwahyu/scanproof/internal/domain/records"
	"github.com/bryanwahyu/scanproof/internal/infra/db/memory"
	"github.com/bryanwahyu/scanproof/internal/infra/tsa"
	"github.com/bryanwahyu/scanproof/internal/infra/tsa/tsatest"
)

func newTestService(t *testing.T) (*Service, *tsatest.Server) {
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
	return &Service{
		Records: store.Records(),
		Tokens:  store.Tokens(),
		TSA:     client,
		Clock:   application.SystemClock{},
	}, srv
}

func mustEnvelope(t *testing.T, correlationID string) *domain.Envelope {
	t.Helper()
	env, err := domain.ParseEnvelope([]byte(`{"correlationId":"` + correlationID + `","probe":"tls-scan","payload":{"host":"example.org","port":443}}`))
	require.NoError(t, err)
	return env
}

func TestCreateRecordAssignsID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.CreateRecord(ctx, mustEnvelope(t, "abc-123"))
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "abc-123", rec.CorrelationID)
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := svc.GetRecordByCorrelation(ctx, "abc-123")
	require.NoError(t, err)
	assert.Equal(t, rec.Payload, got.Payload)
}

func TestCreateRecordDuplicateRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRecord(ctx, mustEnvelope(t, "abc-123"))
	require.NoError(t, err)

	_, err = svc.CreateRecord(ctx, mustEnvelope(t, "abc-123"))
	require.ErrorIs(t, err, domain.ErrDuplicateCorrelation)
}

func TestCreateTokenRequiresRecord(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateToken(context.Background(), "no-such-id", []byte("token"))
	require.ErrorIs(t, err, domain.ErrNoScanRecord)
}

func TestCreateTokenRejectsEmpty(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateToken(context.Background(), "abc-123", nil)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestVerifyRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.CreateRecord(ctx, mustEnvelope(t, "abc-123"))
	require.NoError(t, err)

	token, err := svc.TSA.Timestamp(ctx, rec.Payload)
	require.NoError(t, err)
	_, err = svc.CreateToken(ctx, "abc-123", token)
	require.NoError(t, err)

	ok, err := svc.Verify(ctx, "abc-123")
	require.NoError(t, err)
	assert.True(t, ok)

	// verification does not consume anything
	ok, err = svc.Verify(ctx, "abc-123")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyNegativeOnMismatchedToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRecord(ctx, mustEnvelope(t, "abc-123"))
	require.NoError(t, err)

	// token over different bytes than the stored payload
	token, err := svc.TSA.Timestamp(ctx, []byte(`{"other":"payload"}`))
	require.NoError(t, err)
	_, err = svc.CreateToken(ctx, "abc-123", token)
	require.NoError(t, err)

	ok, err := svc.Verify(ctx, "abc-123")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyMissingHalves(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// nothing stored at all
	_, err := svc.Verify(ctx, "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)

	// record without token
	_, err = svc.CreateRecord(ctx, mustEnvelope(t, "abc-123"))
	require.NoError(t, err)
	_, err = svc.Verify(ctx, "abc-123")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListRecordsFilter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	env, err := domain.ParseEnvelope([]byte(`{"correlationId":"one","payload":{"host":"alpha.example"}}`))
	require.NoError(t, err)
	_, err = svc.CreateRecord(ctx, env)
	require.NoError(t, err)

	env, err = domain.ParseEnvelope([]byte(`{"correlationId":"two","payload":{"host":"beta.example"}}`))
	require.NoError(t, err)
	_, err = svc.CreateRecord(ctx, env)
	require.NoError(t, err)

	list, err := svc.ListRecords(ctx, 0, 10, "beta")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "two", list[0].CorrelationID)

	count, err := svc.CountRecords(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}
