// Package lockmgr provides in-process advisory locks keyed by an arbitrary
// string, modeled on the original service's lock_client.lock(name, timeout)
// context manager. Nakama exposes no distributed lock primitive to runtime
// plugins, so a single-process deployment backs the per-player and
// per-phraseset critical sections with this instead; a multi-process
// deployment would swap this for a Redis/etcd-backed implementation of the
// same Acquire contract.
package lockmgr

import (
	"context"
	"sync"
	"time"

	phraseerrors "phrasepool.dev/errors"
)

// Manager hands out advisory locks keyed by an arbitrary string (a player
// id or a phraseset id). Acquire blocks until the key is free, ctx is
// cancelled, or the configured timeout elapses — whichever comes first.
type Manager struct {
	timeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(timeout time.Duration) *Manager {
	return &Manager{
		timeout: timeout,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (m *Manager) keyLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// Acquire locks key and returns an unlock func. Callers that already hold
// the lock for key (reentrant call sites named in spec.md §4.2 as the
// skip-lock flag) should not call Acquire again — pass the already-held
// unlock down instead of nesting.
func (m *Manager) Acquire(ctx context.Context, key string) (func(), error) {
	l := m.keyLock(key)

	done := make(chan struct{})
	go func() {
		l.Lock()
		close(done)
	}()

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case <-done:
		return l.Unlock, nil
	case <-ctx.Done():
		go func() { <-done; l.Unlock() }()
		return nil, ctx.Err()
	case <-timer.C:
		go func() { <-done; l.Unlock() }()
		return nil, phraseerrors.ErrLockTimeout
	}
}
