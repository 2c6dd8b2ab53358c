package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jhoicas/Salones-api/internal/application/ports"
	"github.com/jhoicas/Salones-api/internal/domain"
)

// IdempotencyStore resultados de operaciones por clave, en memoria.
type IdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
	now     func() time.Time
}

type idempotencyEntry struct {
	result    []byte
	done      bool
	expiresAt time.Time
}

var _ ports.IdempotencyStore = (*IdempotencyStore)(nil)

// NewIdempotencyStore crea el almacén.
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{entries: make(map[string]idempotencyEntry), now: time.Now}
}

// Begin reserva la clave o devuelve el resultado guardado.
func (s *IdempotencyStore) Begin(_ context.Context, key string, ttl time.Duration) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		if !e.done {
			return nil, false, domain.ErrIdempotencyInProgress
		}
		return append([]byte(nil), e.result...), false, nil
	}
	s.entries[key] = idempotencyEntry{expiresAt: now.Add(ttl)}
	return nil, true, nil
}

// Complete guarda el resultado.
func (s *IdempotencyStore) Complete(_ context.Context, key string, result []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = idempotencyEntry{
		result:    append([]byte(nil), result...),
		done:      true,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Release libera la clave.
func (s *IdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && !e.done {
		delete(s.entries, key)
	}
	return nil
}
