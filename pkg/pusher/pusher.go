package pusher

import (
	"context"
	"fmt"
	"sync"

	"github.com/flappah/netatmo2wow/pkg/models"
)

// Pusher publishes reconciled observations to a weather aggregation service
type Pusher interface {
	// GetServiceName returns the service identifier (e.g., "wow")
	GetServiceName() string

	// Publish sends measurements in order and returns how many were
	// accepted before the first failure
	Publish(ctx context.Context, deviceID string, measurements []models.Measurement) (int, error)
}

// Registry holds all registered pushers
type Registry struct {
	mu      sync.RWMutex
	pushers map[string]Pusher
}

// NewRegistry creates a new pusher registry
func NewRegistry() *Registry {
	return &Registry{
		pushers: make(map[string]Pusher),
	}
}

// Register adds a pusher to the registry
func (r *Registry) Register(p Pusher) {
	if p == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pushers[p.GetServiceName()] = p
}

// Get retrieves a pusher by service name
func (r *Registry) Get(serviceName string) (Pusher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pushers[serviceName]
	return p, ok
}

// All returns all registered pushers
func (r *Registry) All() []Pusher {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pushers := make([]Pusher, 0, len(r.pushers))
	for _, p := range r.pushers {
		pushers = append(pushers, p)
	}
	return pushers
}

// PublishPending sends the records of series newer than the tracked
// progress and advances the progress to the last accepted record
func PublishPending(ctx context.Context, p Pusher, tracker Tracker, series models.DeviceSeries) (int, error) {
	last, err := tracker.Last(ctx, series.DeviceID, p.GetServiceName())
	if err != nil {
		return 0, fmt.Errorf("failed to load progress: %w", err)
	}

	pending := Pending(series.Measurements, last)
	if len(pending) == 0 {
		return 0, nil
	}

	sent, pubErr := p.Publish(ctx, series.DeviceID, pending)
	if sent > 0 {
		if err := tracker.Mark(ctx, series.DeviceID, p.GetServiceName(), pending[sent-1].Timestamp); err != nil {
			return sent, fmt.Errorf("failed to save progress: %w", err)
		}
	}

	return sent, pubErr
}

// Pending returns the records of an ascending series newer than last
func Pending(series []models.Measurement, last int64) []models.Measurement {
	for i, m := range series {
		if m.Timestamp > last {
			return series[i:]
		}
	}
	return nil
}
