// Package tsatest runs a minimal in-process RFC 3161 authority for tests.
package tsatest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/digitorus/timestamp"
)

var testPolicy = asn1.ObjectIdentifier{1, 2, 3, 4, 1}

// Server issues signed timestamp tokens with a self-signed certificate.
// Flip Rejecting to make it answer every request with a rejection status.
type Server struct {
	URL string

	mu        sync.Mutex
	rejecting bool
	serial    int64

	cert  *x509.Certificate
	key   *ecdsa.PrivateKey
	httpd *httptest.Server
}

// New starts the authority on an ephemeral port.
func New() (*Server, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "scanproof test tsa"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageTimeStamping},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	s := &Server{cert: cert, key: key}
	s.httpd = httptest.NewServer(http.HandlerFunc(s.handle))
	s.URL = s.httpd.URL
	return s, nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req, err := timestamp.ParseRequest(body)
	if err != nil {
		s.writeError(w, timestamp.Rejection, timestamp.BadRequest)
		return
	}

	s.mu.Lock()
	rejecting := s.rejecting
	s.serial++
	serial := s.serial
	s.mu.Unlock()

	if rejecting {
		s.writeError(w, timestamp.Rejection, timestamp.TimeNotAvailable)
		return
	}

	resp := timestamp.Timestamp{
		HashAlgorithm:     req.HashAlgorithm,
		HashedMessage:     req.HashedMessage,
		Time:              time.Now(),
		Nonce:             req.Nonce,
		Policy:            testPolicy,
		SerialNumber:      big.NewInt(serial),
		AddTSACertificate: req.Certificates,
	}
	der, err := resp.CreateResponse(s.cert, s.key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/timestamp-reply")
	w.Write(der)
}

func (s *Server) writeError(w http.ResponseWriter, st timestamp.Status, fi timestamp.FailureInfo) {
	der, err := timestamp.CreateErrorResponse(st, fi)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/timestamp-reply")
	w.Write(der)
}

// SetRejecting makes the authority reject (or grant again) all requests.
func (s *Server) SetRejecting(reject bool) {
	s.mu.Lock()
	s.rejecting = reject
	s.mu.Unlock()
}

// CertPEM returns the authority certificate, usable as a trust anchor.
func (s *Server) CertPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: s.cert.Raw})
}

// WriteCertFile drops the trust anchor into dir and returns its path.
func (s *Server) WriteCertFile(dir string) (string, error) {
	path := filepath.Join(dir, "tsa.pem")
	if err := os.WriteFile(path, s.CertPEM(), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// Close shuts the authority down.
func (s *Server) Close() {
	s.httpd.Close()
}
