package services

import (
	"sync"
	"time"

	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
)

// LoadRegistry keeps in-flight synthesis loads by id so later requests can
// stream, inspect or cancel them.
type LoadRegistry struct {
	loads  map[string]*SynthesisLoad
	mu     sync.RWMutex
	logger *logging.ChanneledLogger
}

// NewLoadRegistry creates an empty registry.
func NewLoadRegistry(logger *logging.ChanneledLogger) *LoadRegistry {
	return &LoadRegistry{
		loads:  make(map[string]*SynthesisLoad),
		logger: logger,
	}
}

// Add registers load under its id.
func (r *LoadRegistry) Add(load *SynthesisLoad) {
	r.mu.Lock()
	r.loads[load.ID] = load
	r.mu.Unlock()
}

// Get returns the load with id.
func (r *LoadRegistry) Get(id string) (*SynthesisLoad, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	load, ok := r.loads[id]
	return load, ok
}

// Cancel cancels the load with id. It reports whether the load exists.
func (r *LoadRegistry) Cancel(id string) bool {
	load, ok := r.Get(id)
	if !ok {
		return false
	}
	load.Cancel()
	r.logger.Synthesis().Info("Synthesis load canceled", "loadId", id, "settled", load.Settled())
	return true
}

// Len returns the number of registered loads.
func (r *LoadRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.loads)
}

// Sweep cancels loads still pending after abandonTTL and forgets loads that
// settled more than retentionTTL ago.
func (r *LoadRegistry) Sweep(now time.Time, abandonTTL, retentionTTL time.Duration) (canceled, evicted int) {
	r.mu.Lock()
	var toCancel []*SynthesisLoad
	for id, load := range r.loads {
		if settledAt, ok := load.SettledAt(); ok {
			if now.Sub(settledAt) > retentionTTL {
				delete(r.loads, id)
				evicted++
			}
			continue
		}
		if now.Sub(load.StartedAt) > abandonTTL {
			toCancel = append(toCancel, load)
		}
	}
	r.mu.Unlock()

	for _, load := range toCancel {
		load.Cancel()
		canceled++
	}
	if canceled > 0 || evicted > 0 {
		r.logger.Synthesis().Info("Load registry swept", "canceled", canceled, "evicted", evicted)
	}
	return canceled, evicted
}

// CancelAll cancels every registered load, used on shutdown.
func (r *LoadRegistry) CancelAll() int {
	r.mu.RLock()
	loads := make([]*SynthesisLoad, 0, len(r.loads))
	for _, load := range r.loads {
		loads = append(loads, load)
	}
	r.mu.RUnlock()

	for _, load := range loads {
		load.Cancel()
	}
	return len(loads)
}
