package correlation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It is the default backend for a single replica.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	now     Clock
}

// NewMemoryStore creates an empty in-memory store. A nil clock uses time.Now.
func NewMemoryStore(now Clock) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{records: make(map[string]*Record), now: now}
}

func (s *MemoryStore) Put(_ context.Context, messageID string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[messageID] = &Record{
		MessageID: messageID,
		Fields:    cloneFields(fields),
		ExpiresAt: s.now().Add(TTL),
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, messageID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.liveLocked(messageID)
	if rec == nil {
		return nil, ErrNotFound
	}
	return &Record{MessageID: rec.MessageID, Fields: cloneFields(rec.Fields), ExpiresAt: rec.ExpiresAt}, nil
}

func (s *MemoryStore) SetFieldIfAbsent(_ context.Context, messageID, field, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.liveLocked(messageID)
	if rec == nil {
		return false, ErrNotFound
	}
	if _, ok := rec.Fields[field]; ok {
		return false, nil
	}
	rec.Fields[field] = value
	return true, nil
}

// PurgeExpired drops all expired records.
func (s *MemoryStore) PurgeExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int64
	for id, rec := range s.records {
		if !now.Before(rec.ExpiresAt) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records, including expired ones not yet purged.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) Close() error { return nil }

// liveLocked returns the record if present and unexpired, deleting it lazily otherwise.
func (s *MemoryStore) liveLocked(messageID string) *Record {
	rec, ok := s.records[messageID]
	if !ok {
		return nil
	}
	if !s.now().Before(rec.ExpiresAt) {
		delete(s.records, messageID)
		return nil
	}
	return rec
}
