package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	approrecords "github.com/bryanwahyu/scanproof/internal/application/records"
	domain "github.com/bryanwahyu/scanproof/internal/domain/records"
)

// Loop drives the pipeline: receive → validate → timestamp → persist,
// one message at a time. A message that fails validation or
// timestamping is dropped with zero writes; a persistence failure after
// the retry budget escalates out of Run, because at that point the
// durability guarantee is broken.
type Loop struct {
	Source  domain.Source
	TSA     domain.Timestamper
	Store   *approrecords.Service
	Archive domain.EvidenceStore // optional raw-evidence copy

	ReceiveTimeout time.Duration
	ProcessTimeout time.Duration
	WriteAttempts  int
	WriteBackoff   time.Duration

	received   atomic.Uint64
	dropped    atomic.Uint64
	stored     atomic.Uint64
	duplicates atomic.Uint64
}

// Stats is a snapshot of the loop counters.
type Stats struct {
	Received   uint64 `json:"received"`
	Dropped    uint64 `json:"dropped"`
	Stored     uint64 `json:"stored"`
	Duplicates uint64 `json:"duplicates"`
}

// Run blocks until ctx is canceled or a persistence failure escalates.
// The stop signal is observed at iteration boundaries only; an in-flight
// message always runs its full pipeline.
func (l *Loop) Run(ctx context.Context) error {
	if l.ReceiveTimeout <= 0 {
		l.ReceiveTimeout = 10 * time.Second
	}
	if l.ProcessTimeout <= 0 {
		l.ProcessTimeout = 2 * time.Minute
	}

	log.Printf("ingestion loop started receive_timeout=%s", l.ReceiveTimeout)
	for {
		select {
		case <-ctx.Done():
			s := l.Stats()
			log.Printf("ingestion loop stopped received=%d stored=%d dropped=%d duplicates=%d",
				s.Received, s.Stored, s.Dropped, s.Duplicates)
			return nil
		default:
		}

		msg, err := l.Source.Receive(ctx, l.ReceiveTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Printf("transport receive error: %v", err)
			continue
		}
		if msg == nil {
			log.Printf("no message received within %s", l.ReceiveTimeout)
			continue
		}

		if err := l.process(msg); err != nil {
			return err
		}
	}
}

// process runs one message to completion. Detached from the loop
// context so a stop signal never abandons a message mid-pipeline.
func (l *Loop) process(msg []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.ProcessTimeout)
	defer cancel()

	l.received.Add(1)

	env, err := domain.ParseEnvelope(msg)
	if err != nil {
		l.dropped.Add(1)
		log.Printf("message dropped: %v", err)
		return nil
	}

	token, err := l.TSA.Timestamp(ctx, env.Payload)
	if err != nil {
		// No record is persisted without its proof: record and token
		// creation stay atomic at the pipeline level.
		l.dropped.Add(1)
		log.Printf("message dropped correlation_id=%s: timestamp request failed: %v", env.CorrelationID, err)
		return nil
	}

	_, err = l.createRecord(ctx, env)
	if errors.Is(err, domain.ErrDuplicateCorrelation) {
		// At-least-once delivery: the record is already stored. Make
		// sure its token is stored too, then move on. The token only
		// attests to the stored bytes, so a redelivery carrying
		// different bytes under the same correlation id is a conflict,
		// not a duplicate.
		l.duplicates.Add(1)
		stored, gerr := l.Store.GetRecordByCorrelation(ctx, env.CorrelationID)
		if gerr != nil {
			return fmt.Errorf("load stored record for redelivered %s: %w", env.CorrelationID, gerr)
		}
		if !bytes.Equal(stored.Payload, env.Payload) {
			l.dropped.Add(1)
			log.Printf("conflicting redelivery dropped correlation_id=%s: payload differs from stored record", env.CorrelationID)
			return nil
		}
		if terr := l.createToken(ctx, env.CorrelationID, token); terr != nil && !errors.Is(terr, domain.ErrDuplicateCorrelation) {
			return fmt.Errorf("persist timestamp token for redelivered %s: %w", env.CorrelationID, terr)
		}
		log.Printf("duplicate message skipped correlation_id=%s", env.CorrelationID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("persist scan record %s: %w", env.CorrelationID, err)
	}

	if err := l.createToken(ctx, env.CorrelationID, token); err != nil {
		// The token was already obtained; losing it silently would
		// break the both-or-neither guarantee.
		return fmt.Errorf("persist timestamp token %s: %w", env.CorrelationID, err)
	}

	l.stored.Add(1)
	log.Printf("message ingested correlation_id=%s probe=%s payload_bytes=%d", env.CorrelationID, env.Probe, len(env.Payload))

	l.archive(ctx, env.CorrelationID, msg, token)
	return nil
}

func (l *Loop) createRecord(ctx context.Context, env *domain.Envelope) (rec *domain.ScanRecord, err error) {
	err = l.withRetry(ctx, "create scan record", func() error {
		rec, err = l.Store.CreateRecord(ctx, env)
		return err
	})
	return rec, err
}

func (l *Loop) createToken(ctx context.Context, correlationID string, token []byte) error {
	return l.withRetry(ctx, "create timestamp token", func() error {
		_, err := l.Store.CreateToken(ctx, correlationID, token)
		return err
	})
}

// withRetry retries transient store failures only; domain rejections
// (duplicate, missing record) surface immediately.
func (l *Loop) withRetry(ctx context.Context, op string, fn func() error) error {
	attempts := l.WriteAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := l.WriteBackoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}

	var err error
	for i := 1; i <= attempts; i++ {
		err = fn()
		if err == nil ||
			errors.Is(err, domain.ErrDuplicateCorrelation) ||
			errors.Is(err, domain.ErrNoScanRecord) ||
			domain.IsValidation(err) {
			return err
		}
		log.Printf("%s failed attempt=%d/%d err=%v", op, i, attempts, err)
		if i < attempts {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(backoff):
			}
		}
	}
	return err
}

func (l *Loop) archive(ctx context.Context, correlationID string, msg, token []byte) {
	if l.Archive == nil {
		return
	}
	if _, err := l.Archive.Put(ctx, correlationID+"/message.json", msg, "application/json"); err != nil {
		log.Printf("evidence archive failed correlation_id=%s object=message.json err=%v", correlationID, err)
	}
	if _, err := l.Archive.Put(ctx, correlationID+"/token.tsr", token, "application/timestamp-reply"); err != nil {
		log.Printf("evidence archive failed correlation_id=%s object=token.tsr err=%v", correlationID, err)
	}
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Received:   l.received.Load(),
		Dropped:    l.dropped.Load(),
		Stored:     l.stored.Load(),
		Duplicates: l.duplicates.Load(),
	}
}
