package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locker serializes work on a key. TryLock never blocks: ok=false means
// another holder has the key. ttl bounds how long a crashed holder can keep
// it; in-process implementations may ignore it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// LocalLocker is a keyed mutex for a single process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]struct{}{}}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return func() {}, false, nil
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}

func executionKey(id uuid.UUID) string { return "execution:" + id.String() }

func startKey(customerID, playbookID uuid.UUID) string {
	return "start:" + customerID.String() + ":" + playbookID.String()
}
