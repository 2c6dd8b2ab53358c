package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jhoicas/Salones-api/internal/application/ports"
	"github.com/jhoicas/Salones-api/internal/domain"
)

const lockPrefix = "salones:lock:"

// releaseScript borra el candado solo si sigue siendo nuestro (mismo token).
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript renueva la caducidad solo si el candado sigue siendo nuestro.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker candado por salón con SET NX PX. Mientras se tiene, se renueva cada ttl/3; el TTL
// solo acota cuánto queda bloqueado un salón si la réplica que lo tiene muere sin liberarlo.
type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	log    zerolog.Logger
}

var _ ports.TenantLocker = (*Locker)(nil)

// NewLocker crea el bloqueador.
func NewLocker(client redis.UniversalClient, ttl time.Duration, log zerolog.Logger) *Locker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Locker{client: client, ttl: ttl, retry: 25 * time.Millisecond, log: log}
}

// Lock reintenta hasta obtener el candado o hasta que ctx expire (domain.ErrLockTimeout).
func (l *Locker) Lock(ctx context.Context, salonID string) (func(), error) {
	key := lockPrefix + salonID
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, domain.ErrLockTimeout
			}
			return nil, fmt.Errorf("redis lock %s: %w", salonID, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, domain.ErrLockTimeout
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(context.WithoutCancel(ctx), key, token, salonID, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// El contexto de la petición puede estar cancelado; liberar igualmente.
			relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(relCtx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				l.log.Warn().Err(err).Str("salon_id", salonID).Msg("No se pudo liberar el bloqueo; expirará por TTL")
			}
		})
	}, nil
}

// keepAlive renueva el candado hasta que se cierre stop o se pierda la propiedad.
func (l *Locker) keepAlive(ctx context.Context, key, token, salonID string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		rctx, cancel := context.WithTimeout(ctx, l.ttl/3)
		n, err := refreshScript.Run(rctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			l.log.Warn().Err(err).Str("salon_id", salonID).Msg("No se pudo renovar el bloqueo; se reintenta")
		case n == 0:
			l.log.Error().Str("salon_id", salonID).Msg("Bloqueo perdido antes de terminar la operación")
			return
		}
	}
}
