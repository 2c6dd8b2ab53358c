package memory

import (
	"context"
	"sync"

	"github.com/jhoicas/Salones-api/internal/application/ports"
	"github.com/jhoicas/Salones-api/internal/domain"
)

// KeyedLocker bloqueo por salón dentro de un solo proceso. Cada salón tiene un canal con
// capacidad 1 que actúa de mutex cancelable por contexto.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

var _ ports.TenantLocker = (*KeyedLocker)(nil)

// NewKeyedLocker crea el bloqueador.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedLock)}
}

// Lock espera el turno del salón o devuelve domain.ErrLockTimeout si ctx expira antes.
func (l *KeyedLocker) Lock(ctx context.Context, salonID string) (func(), error) {
	l.mu.Lock()
	k, ok := l.locks[salonID]
	if !ok {
		k = &keyedLock{ch: make(chan struct{}, 1)}
		l.locks[salonID] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(salonID, k)
		return nil, domain.ErrLockTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-k.ch
			l.release(salonID, k)
		})
	}, nil
}

func (l *KeyedLocker) release(salonID string, k *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(l.locks, salonID)
	}
}
