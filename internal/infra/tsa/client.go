package tsa

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"os"
	"time"

	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"
)

const (
	contentTypeQuery = "application/timestamp-query"
	maxResponseSize  = 1 << 20 // 1 MiB is far beyond any sane TimeStampResp
)

var maxNonce = new(big.Int).Lsh(big.NewInt(1), 128)

// Options configure a Client. Everything comes from configuration at
// startup; the client holds no hidden global state.
type Options struct {
	URL           string
	CertFile      string // PEM trust anchors for the TSA signing chain
	HashAlgorithm string // sha256 | sha384 | sha512
	Timeout       time.Duration
	Attempts      int
	Backoff       time.Duration
	TLSCAFile     string // optional extra CA for the HTTPS connection
}

// Client executes RFC 3161 request/response exchanges against a remote
// TSA and re-checks stored tokens locally against the same trust anchors.
type Client struct {
	url      string
	hash     crypto.Hash
	attempts int
	backoff  time.Duration
	httpc    *http.Client
	trust    *x509.CertPool
}

// New builds a Client from config
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("tsa: url is required")
	}
	hash, err := ParseHashAlgorithm(opts.HashAlgorithm)
	if err != nil {
		return nil, err
	}

	trust, err := loadCertPool(opts.CertFile)
	if err != nil {
		return nil, fmt.Errorf("tsa: load trust anchors: %w", err)
	}

	httpc := &http.Client{Timeout: opts.Timeout}
	if opts.TLSCAFile != "" {
		caPool, err := loadCertPool(opts.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("tsa: load tls ca: %w", err)
		}
		httpc.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: caPool},
		}
	}

	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	return &Client{
		url:      opts.URL,
		hash:     hash,
		attempts: attempts,
		backoff:  opts.Backoff,
		httpc:    httpc,
		trust:    trust,
	}, nil
}

// ParseHashAlgorithm maps a config identifier to a crypto.Hash
func ParseHashAlgorithm(name string) (crypto.Hash, error) {
	switch name {
	case "", "sha256":
		return crypto.SHA256, nil
	case "sha384":
		return crypto.SHA384, nil
	case "sha512":
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("tsa: unsupported hash algorithm %q", name)
	}
}

// Timestamp obtains a signed timestamp token for payload. The request
// carries a fresh nonce and asks the TSA to embed its certificate; the
// returned token has already been checked against the trust anchors, so
// a successful return means Check on the same bytes will succeed too.
func (c *Client) Timestamp(ctx context.Context, payload []byte) ([]byte, error) {
	nonce, err := rand.Int(rand.Reader, maxNonce)
	if err != nil {
		return nil, fmt.Errorf("tsa: generate nonce: %w", err)
	}

	tsq, err := timestamp.CreateRequest(bytes.NewReader(payload), &timestamp.RequestOptions{
		Hash:         c.hash,
		Nonce:        nonce,
		Certificates: true,
	})
	if err != nil {
		return nil, fmt.Errorf("tsa: build request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff):
			}
		}

		token, err := c.roundTrip(ctx, tsq, nonce, payload)
		if err == nil {
			return token, nil
		}
		lastErr = err
		log.Printf("tsa request failed attempt=%d/%d url=%s err=%v", attempt, c.attempts, c.url, err)
	}
	return nil, lastErr
}

func (c *Client) roundTrip(ctx context.Context, tsq []byte, nonce *big.Int, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(tsq))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentTypeQuery)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}

	// ParseResponse rejects any non-granted PKIStatus with the TSA's
	// stated failure reason.
	ts, err := timestamp.ParseResponse(body)
	if err != nil {
		return nil, err
	}

	if ts.Nonce == nil || ts.Nonce.Cmp(nonce) != 0 {
		return nil, fmt.Errorf("response nonce does not match request")
	}
	if !bytes.Equal(ts.HashedMessage, digest(c.hash, payload)) {
		return nil, fmt.Errorf("response hashed message does not match payload digest")
	}

	ok, err := c.Check(ctx, ts.RawToken, payload)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("token failed verification against trust anchors")
	}
	return ts.RawToken, nil
}

// Check reports whether token attests to payload: the digest embedded in
// the token must equal the recomputed digest of payload, and the CMS
// signature must chain to the configured trust anchors. Any failure is a
// plain false; the caller decides whether that is an error.
func (c *Client) Check(_ context.Context, token, payload []byte) (bool, error) {
	ts, err := timestamp.Parse(token)
	if err != nil {
		return false, nil
	}
	if !ts.HashAlgorithm.Available() {
		return false, nil
	}
	if !bytes.Equal(ts.HashedMessage, digest(ts.HashAlgorithm, payload)) {
		return false, nil
	}

	p7, err := pkcs7.Parse(token)
	if err != nil {
		return false, nil
	}
	if err := p7.VerifyWithChain(c.trust); err != nil {
		return false, nil
	}
	return true, nil
}

func digest(h crypto.Hash, data []byte) []byte {
	hh := h.New()
	hh.Write(data)
	return hh.Sum(nil)
}

func loadCertPool(path string) (*x509.CertPool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	n := 0
	for len(raw) > 0 {
		var block *pem.Block
		block, raw = pem.Decode(raw)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		pool.AddCert(cert)
		n++
	}
	if n == 0 {
		return nil, fmt.Errorf("no certificates in %s", path)
	}
	return pool, nil
}
