package booking

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ProviderLocks: мьютекс на мастера. Записи удаляются, когда их никто не держит
// и никто не ждёт, так что карта не растёт с числом мастеров.
type ProviderLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*providerLock
}

type providerLock struct {
	sem  chan struct{}
	refs int
}

func NewProviderLocks() *ProviderLocks {
	return &ProviderLocks{locks: make(map[uuid.UUID]*providerLock)}
}

// Lock блокирует мастера до вызова unlock. Ожидание прерывается отменой ctx.
func (p *ProviderLocks) Lock(ctx context.Context, providerID uuid.UUID) (unlock func(), err error) {
	p.mu.Lock()
	l, ok := p.locks[providerID]
	if !ok {
		l = &providerLock{sem: make(chan struct{}, 1)}
		p.locks[providerID] = l
	}
	l.refs++
	p.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		p.release(providerID, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			p.release(providerID, l)
		})
	}, nil
}

func (p *ProviderLocks) release(providerID uuid.UUID, l *providerLock) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(p.locks, providerID)
	}
}

// size: число мастеров, по которым сейчас держат или ждут блокировку.
func (p *ProviderLocks) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
