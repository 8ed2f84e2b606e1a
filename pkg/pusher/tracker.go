package pusher

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// Tracker remembers the newest timestamp published per device and service
type Tracker interface {
	Last(ctx context.Context, deviceID, serviceName string) (int64, error)
	Mark(ctx context.Context, deviceID, serviceName string, timestamp int64) error
}

// MemoryTracker keeps progress in a bounded in-process cache. Progress is
// lost on restart.
type MemoryTracker struct {
	cache *lru.Cache
	// guards the compare and add in Mark
	mu sync.Mutex
}

// NewMemoryTracker creates a tracker holding at most size entries
func NewMemoryTracker(size int) (*MemoryTracker, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create progress cache: %w", err)
	}
	return &MemoryTracker{cache: cache}, nil
}

func trackerKey(deviceID, serviceName string) string {
	return serviceName + "/" + deviceID
}

func (t *MemoryTracker) Last(ctx context.Context, deviceID, serviceName string) (int64, error) {
	if v, ok := t.cache.Get(trackerKey(deviceID, serviceName)); ok {
		return v.(int64), nil
	}
	return 0, nil
}

// Mark records timestamp unless a newer one is already known
func (t *MemoryTracker) Mark(ctx context.Context, deviceID, serviceName string, timestamp int64) error {
	key := trackerKey(deviceID, serviceName)

	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.cache.Get(key); ok && v.(int64) >= timestamp {
		return nil
	}
	t.cache.Add(key, timestamp)
	return nil
}
