// Package memory backs the correlation store with process memory, for
// development and tests. Same append-only semantics as the SQL repos.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	domain "github.com/bryanwahyu/scanproof/internal/domain/records"
)

type Store struct {
	mu      sync.RWMutex
	records map[string]*domain.ScanRecord // keyed by correlation id
	order   []string
	tokens  map[string]*domain.TimestampToken
	torder  []string
}

func NewStore() *Store {
	return &Store{
		records: make(map[string]*domain.ScanRecord),
		tokens:  make(map[string]*domain.TimestampToken),
	}
}

// Records returns the record repository view of the store
func (s *Store) Records() *RecordRepository { return &RecordRepository{s: s} }

// Tokens returns the token repository view of the store
func (s *Store) Tokens() *TokenRepository { return &TokenRepository{s: s} }

type RecordRepository struct{ s *Store }

func (r *RecordRepository) Create(_ context.Context, rec *domain.ScanRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.records[rec.CorrelationID]; ok {
		return domain.ErrDuplicateCorrelation
	}
	cp := *rec
	cp.Payload = append([]byte(nil), rec.Payload...)
	r.s.records[rec.CorrelationID] = &cp
	r.s.order = append(r.s.order, rec.CorrelationID)
	return nil
}

func (r *RecordRepository) Get(_ context.Context, id domain.RecordID) (*domain.ScanRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, rec := range r.s.records {
		if rec.ID == id {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *RecordRepository) GetByCorrelation(_ context.Context, correlationID string) (*domain.ScanRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.records[correlationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *RecordRepository) List(_ context.Context, offset, limit int, textFilter string) ([]*domain.ScanRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []*domain.ScanRecord
	for _, cid := range r.s.order {
		rec := r.s.records[cid]
		if textFilter != "" && !bytes.Contains(rec.Payload, []byte(textFilter)) {
			continue
		}
		matched = append(matched, rec)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*domain.ScanRecord, len(matched))
	for i, rec := range matched {
		cp := *rec
		out[i] = &cp
	}
	return out, nil
}

func (r *RecordRepository) Count(_ context.Context) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.records)), nil
}

type TokenRepository struct{ s *Store }

func (r *TokenRepository) Create(_ context.Context, tok *domain.TimestampToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tokens[tok.CorrelationID]; ok {
		return domain.ErrDuplicateCorrelation
	}
	// mirror the SQL schema's foreign key
	if _, ok := r.s.records[tok.CorrelationID]; !ok {
		return domain.ErrNoScanRecord
	}
	cp := *tok
	cp.Token = append([]byte(nil), tok.Token...)
	r.s.tokens[tok.CorrelationID] = &cp
	r.s.torder = append(r.s.torder, tok.CorrelationID)
	return nil
}

func (r *TokenRepository) GetByCorrelation(_ context.Context, correlationID string) (*domain.TimestampToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	tok, ok := r.s.tokens[correlationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (r *TokenRepository) List(_ context.Context, offset, limit int) ([]*domain.TimestampToken, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	cids := append([]string(nil), r.s.torder...)
	sort.SliceStable(cids, func(i, j int) bool {
		return r.s.tokens[cids[i]].CreatedAt.Before(r.s.tokens[cids[j]].CreatedAt)
	})
	if offset >= len(cids) {
		return nil, nil
	}
	cids = cids[offset:]
	if len(cids) > limit {
		cids = cids[:limit]
	}

	out := make([]*domain.TimestampToken, len(cids))
	for i, cid := range cids {
		cp := *r.s.tokens[cid]
		out[i] = &cp
	}
	return out, nil
}
