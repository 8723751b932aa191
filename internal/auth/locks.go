package auth

import (
	"context"

	"github.com/cespare/xxhash/v2"
)

const lockStripes = 64

// stripedLock serializes work per session id over a fixed set of slots, so
// memory stays bounded no matter how many sessions exist. Unrelated sessions
// occasionally share a slot; that only costs them some waiting.
type stripedLock struct {
	slots [lockStripes]chan struct{}
}

func newStripedLock() *stripedLock {
	l := &stripedLock{}
	for i := range l.slots {
		l.slots[i] = make(chan struct{}, 1)
	}

	return l
}

// lock acquires the slot for key or gives up when ctx is done. The returned
// func releases it.
func (l *stripedLock) lock(ctx context.Context, key string) (func(), error) {
	slot := l.slots[xxhash.Sum64String(key)%lockStripes]

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
