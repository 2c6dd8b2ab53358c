package redisstore_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Salones-api/internal/domain"
	"github.com/jhoicas/Salones-api/internal/infrastructure/redisstore"
)

func newClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestLocker_Exclusion(t *testing.T) {
	client, _ := newClient(t)
	l := redisstore.NewLocker(client, time.Minute, zerolog.Nop())

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			unlock, err := l.Lock(ctx, "salon-1")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestLocker_TimeoutYSalonesIndependientes(t *testing.T) {
	client, mr := newClient(t)
	l := redisstore.NewLocker(client, time.Minute, zerolog.Nop())

	unlock, err := l.Lock(t.Context(), "salon-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("salones:lock:salon-1"))

	ctx, cancel := context.WithTimeout(t.Context(), 60*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "salon-1")
	assert.ErrorIs(t, err, domain.ErrLockTimeout)

	other, err := l.Lock(t.Context(), "salon-2")
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	assert.False(t, mr.Exists("salones:lock:salon-1"))
}

func TestLocker_NoLiberaCandadoAjeno(t *testing.T) {
	client, mr := newClient(t)
	l := redisstore.NewLocker(client, time.Second, zerolog.Nop())

	unlock, err := l.Lock(t.Context(), "salon-1")
	require.NoError(t, err)

	// El candado expira y otra réplica lo toma.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("salones:lock:salon-1", "otro-token"))

	unlock()
	v, err := mr.Get("salones:lock:salon-1")
	require.NoError(t, err)
	assert.Equal(t, "otro-token", v)
}

// TestLocker_RenuevaMientrasSeTiene una operación más larga que el TTL conserva el candado.
func TestLocker_RenuevaMientrasSeTiene(t *testing.T) {
	client, mr := newClient(t)
	l := redisstore.NewLocker(client, 300*time.Millisecond, zerolog.Nop())
	const key = "salones:lock:salon-1"

	unlock, err := l.Lock(t.Context(), "salon-1")
	require.NoError(t, err)

	mr.FastForward(200 * time.Millisecond)
	require.Eventually(t, func() bool { return mr.TTL(key) > 200*time.Millisecond },
		time.Second, 10*time.Millisecond, "el candado se renueva")

	mr.FastForward(250 * time.Millisecond)
	assert.True(t, mr.Exists(key), "sin renovación habría expirado")

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "salon-1")
	assert.ErrorIs(t, err, domain.ErrLockTimeout, "otra petición sigue esperando")

	unlock()
	assert.False(t, mr.Exists(key))
	time.Sleep(150 * time.Millisecond)
	assert.False(t, mr.Exists(key), "tras liberar no se vuelve a renovar")
}

func TestIdempotencyStore_Flujo(t *testing.T) {
	client, mr := newClient(t)
	s := redisstore.NewIdempotencyStore(client)
	ctx := t.Context()

	stored, started, err := s.Begin(ctx, "k1", time.Hour)
	require.NoError(t, err)
	assert.True(t, started)
	assert.Nil(t, stored)

	_, _, err = s.Begin(ctx, "k1", time.Hour)
	assert.ErrorIs(t, err, domain.ErrIdempotencyInProgress)

	require.NoError(t, s.Complete(ctx, "k1", []byte(`{"tier":"enterprise"}`), time.Hour))
	stored, started, err = s.Begin(ctx, "k1", time.Hour)
	require.NoError(t, err)
	assert.False(t, started)
	assert.JSONEq(t, `{"tier":"enterprise"}`, string(stored))

	require.NoError(t, s.Release(ctx, "k1"))
	assert.True(t, mr.Exists("salones:idem:k1"), "un resultado guardado no se libera")

	mr.FastForward(2 * time.Hour)
	_, started, err = s.Begin(ctx, "k1", time.Hour)
	require.NoError(t, err)
	assert.True(t, started, "la clave caducada se puede reutilizar")
}

func TestIdempotencyStore_Release(t *testing.T) {
	client, _ := newClient(t)
	s := redisstore.NewIdempotencyStore(client)
	ctx := t.Context()

	_, started, err := s.Begin(ctx, "k2", time.Hour)
	require.NoError(t, err)
	require.True(t, started)
	require.NoError(t, s.Release(ctx, "k2"))

	_, started, err = s.Begin(ctx, "k2", time.Hour)
	require.NoError(t, err)
	assert.True(t, started)
}
