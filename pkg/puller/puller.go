package puller

import (
	"context"
	"sort"
	"sync"

	"github.com/flappah/netatmo2wow/pkg/models"
	"github.com/flappah/netatmo2wow/pkg/reconcile"
)

// Puller defines the interface for weather data providers that are polled
type Puller interface {
	// GetProviderType returns the provider type identifier (e.g., "netatmo")
	GetProviderType() string

	// Pull fetches and reconciles the observations of every device the
	// provider exposes
	// ctx: context for cancellation and timeouts
	// opts: time window and reconciliation settings for this run
	Pull(ctx context.Context, opts reconcile.Options) ([]models.DeviceSeries, error)
}

// PullerRegistry holds all registered data pullers
type PullerRegistry struct {
	mu      sync.RWMutex
	pullers map[string]Puller
}

// NewPullerRegistry creates a new puller registry
func NewPullerRegistry() *PullerRegistry {
	return &PullerRegistry{
		pullers: make(map[string]Puller),
	}
}

// Register adds a puller to the registry
func (r *PullerRegistry) Register(p Puller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pullers[p.GetProviderType()] = p
}

// Get retrieves a puller by provider type
func (r *PullerRegistry) Get(providerType string) (Puller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pullers[providerType]
	return p, ok
}

// All returns all registered pullers ordered by provider type
func (r *PullerRegistry) All() []Puller {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pullers := make([]Puller, 0, len(r.pullers))
	for _, p := range r.pullers {
		pullers = append(pullers, p)
	}
	sort.Slice(pullers, func(i, j int) bool {
		return pullers[i].GetProviderType() < pullers[j].GetProviderType()
	})
	return pullers
}
