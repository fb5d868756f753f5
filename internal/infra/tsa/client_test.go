package tsa

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/scanproof/internal/infra/tsa/tsatest"
)

func newTestClient(t *testing.T, srv *tsatest.Server) *Client {
	t.Helper()
	certFile, err := srv.WriteCertFile(t.TempDir())
	require.NoError(t, err)

	c, err := New(Options{
		URL:      srv.URL,
		CertFile: certFile,
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func TestTimestampAndCheck(t *testing.T) {
	srv, err := tsatest.New()
	require.NoError(t, err)
	defer srv.Close()

	c := newTestClient(t, srv)
	payload := []byte(`{"host":"example.org","port":443}`)

	token, err := c.Timestamp(context.Background(), payload)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ok, err := c.Check(context.Background(), token, payload)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckTamperedPayload(t *testing.T) {
	srv, err := tsatest.New()
	require.NoError(t, err)
	defer srv.Close()

	c := newTestClient(t, srv)
	payload := []byte(`{"host":"example.org","port":443}`)

	token, err := c.Timestamp(context.Background(), payload)
	require.NoError(t, err)

	ok, err := c.Check(context.Background(), token, []byte(`{"host":"example.org","port":444}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckGarbageToken(t *testing.T) {
	srv, err := tsatest.New()
	require.NoError(t, err)
	defer srv.Close()

	c := newTestClient(t, srv)

	ok, err := c.Check(context.Background(), []byte("not a token"), []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTimestampRejected(t *testing.T) {
	srv, err := tsatest.New()
	require.NoError(t, err)
	defer srv.Close()
	srv.SetRejecting(true)

	c := newTestClient(t, srv)

	_, err = c.Timestamp(context.Background(), []byte(`{"a":1}`))
	require.Error(t, err)
}

func TestCheckWrongTrustAnchor(t *testing.T) {
	issuer, err := tsatest.New()
	require.NoError(t, err)
	defer issuer.Close()

	other, err := tsatest.New()
	require.NoError(t, err)
	defer other.Close()

	// token issued by one authority, checked against another's anchor
	token, err := newTestClient(t, issuer).Timestamp(context.Background(), []byte(`{"a":1}`))
	require.NoError(t, err)

	ok, err := newTestClient(t, other).Check(context.Background(), token, []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseHashAlgorithm(t *testing.T) {
	for name, want := range map[string]string{
		"sha256": "SHA-256",
		"sha384": "SHA-384",
		"sha512": "SHA-512",
	} {
		h, err := ParseHashAlgorithm(name)
		require.NoError(t, err)
		assert.Equal(t, want, h.String())
	}

	_, err := ParseHashAlgorithm("md5")
	require.Error(t, err)
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}
