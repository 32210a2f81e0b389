// Package lock provides mutual exclusion for reindex runs, so that two runs
// never delete and rebuild the same index at once.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLocked is returned by Acquire when another holder owns the key.
var ErrLocked = errors.New("lock is held")

// Locker acquires named, expiring locks. A held lock is renewed every third
// of its ttl until released, so a run outliving ttl keeps it. The ttl only
// bounds how long a crashed holder blocks others. The returned release func
// must be called and is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// keepAlive calls extend every third of ttl until the returned stop func is
// called or extend reports the lock lost.
func keepAlive(ttl time.Duration, extend func() bool) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(max(ttl/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if !extend() {
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// Local is an in-process Locker. Expired entries are reclaimed on the next
// Acquire of the same key.
type Local struct {
	now func() time.Time

	mu    sync.Mutex
	held  map[string]localEntry
	token uint64
}

type localEntry struct {
	token   uint64
	expires time.Time
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{now: time.Now, held: make(map[string]localEntry)}
}

// Acquire takes key for ttl, or returns ErrLocked.
func (l *Local) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, ErrLocked
	}

	l.token++
	token := l.token
	l.held[key] = localEntry{token: token, expires: now.Add(ttl)}

	stop := keepAlive(ttl, func() bool { return l.extend(key, token, ttl) })
	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			l.mu.Lock()
			defer l.mu.Unlock()
			if e, ok := l.held[key]; ok && e.token == token {
				delete(l.held, key)
			}
		})
	}, nil
}

func (l *Local) extend(key string, token uint64, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.held[key]
	if !ok || e.token != token {
		return false
	}
	e.expires = l.now().Add(ttl)
	l.held[key] = e
	return true
}
