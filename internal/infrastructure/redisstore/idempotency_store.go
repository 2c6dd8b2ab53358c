package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jhoicas/Salones-api/internal/application/ports"
	"github.com/jhoicas/Salones-api/internal/domain"
)

const (
	idempotencyPrefix = "salones:idem:"
	pendingMarker     = "pending"
	donePrefix        = "done:"
)

// releasePendingScript borra la clave solo mientras siga reservada sin resultado.
var releasePendingScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// IdempotencyStore resultados de operaciones por clave en Redis. Una clave vale "pending"
// mientras la operación está en curso y "done:<json>" cuando terminó.
type IdempotencyStore struct {
	client redis.UniversalClient
}

var _ ports.IdempotencyStore = (*IdempotencyStore)(nil)

// NewIdempotencyStore crea el almacén.
func NewIdempotencyStore(client redis.UniversalClient) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

// Begin reserva la clave con SET NX o devuelve el resultado guardado.
func (s *IdempotencyStore) Begin(ctx context.Context, key string, ttl time.Duration) ([]byte, bool, error) {
	k := idempotencyPrefix + key
	// Dos intentos: la clave puede expirar entre SETNX y GET.
	for range 2 {
		ok, err := s.client.SetNX(ctx, k, pendingMarker, ttl).Result()
		if err != nil {
			return nil, false, fmt.Errorf("redis idempotency begin: %w", err)
		}
		if ok {
			return nil, true, nil
		}
		val, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("redis idempotency get: %w", err)
		}
		if val == pendingMarker {
			return nil, false, domain.ErrIdempotencyInProgress
		}
		return []byte(strings.TrimPrefix(val, donePrefix)), false, nil
	}
	return nil, false, domain.ErrIdempotencyInProgress
}

// Complete guarda el resultado sustituyendo la reserva.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, idempotencyPrefix+key, donePrefix+string(result), ttl).Err(); err != nil {
		return fmt.Errorf("redis idempotency complete: %w", err)
	}
	return nil
}

// Release libera una reserva sin resultado; un resultado ya guardado no se toca.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	err := releasePendingScript.Run(ctx, s.client, []string{idempotencyPrefix + key}, pendingMarker).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis idempotency release: %w", err)
	}
	return nil
}
