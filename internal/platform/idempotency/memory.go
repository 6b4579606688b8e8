package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps keys in process. It backs the memory store backend and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	existing, found := s.records[id]
	res, write, err := reserveRecord(existing, found, key, fingerprint, now.UTC(), ttl)
	if err != nil {
		return Reservation{}, err
	}
	if write {
		s.records[id] = res.Record
	}
	return res, nil
}

func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	record, ok := s.records[id]
	if ok && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !ok {
		record = newPendingRecord(key, fingerprint, now, ttl)
	}
	record.Status = StatusCompleted
	record.ResponseStatus = resp.Status
	record.ResponseHeaders = storableHeaders(resp.Headers)
	record.ResponseBody = append([]byte(nil), resp.Body...)
	record.UpdatedAt = now
	record.ExpiresAt = now.Add(ttl)
	s.records[id] = record
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := documentID(key)
	if record, ok := s.records[id]; ok && record.Fingerprint == fingerprint {
		delete(s.records, id)
	}
	return nil
}

func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, record := range s.records {
		if limit > 0 && removed >= limit {
			break
		}
		if record.expired(now.UTC()) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}
