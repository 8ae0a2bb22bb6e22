package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemStore es el backend en memoria del ledger, para desarrollo y tests.
// Mismo contrato que PGStore: la reserva gana o pierde bajo un solo lock.
type MemStore struct {
	mu   sync.Mutex
	recs map[[2]string]*Record
}

func NewMemStore() *MemStore {
	return &MemStore{recs: make(map[[2]string]*Record)}
}

func (s *MemStore) Reserve(_ context.Context, key, scope string) (bool, *Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := [2]string{key, scope}
	if rec, ok := s.recs[k]; ok {
		cp := *rec
		return false, &cp, nil
	}
	s.recs[k] = &Record{Key: key, Scope: scope, CreatedAt: time.Now().UTC()}
	return true, nil, nil
}

func (s *MemStore) Complete(_ context.Context, key, scope string, response []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := [2]string{key, scope}
	rec, ok := s.recs[k]
	if !ok {
		rec = &Record{Key: key, Scope: scope, CreatedAt: time.Now().UTC()}
		s.recs[k] = rec
	}
	rec.Response = append([]byte(nil), response...)
	return nil
}

func (s *MemStore) Release(_ context.Context, key, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := [2]string{key, scope}
	if rec, ok := s.recs[k]; ok && rec.Response == nil {
		delete(s.recs, k)
	}
	return nil
}

func (s *MemStore) Get(_ context.Context, key, scope string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.recs[[2]string{key, scope}]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}
