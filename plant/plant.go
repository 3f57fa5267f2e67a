// Package plant provides the plant registry: which tray positions hold which
// plants and whether they may be photographed.
package plant

import (
	"fmt"
	"sync"
)

// Plant is one registry row. Position is the tray slot (1..tray_count).
type Plant struct {
	Experiment   string
	Name         string
	Position     int
	AllowCapture bool
}

// Desc returns the operator-facing description used in status messages.
func (p Plant) Desc() string {
	return fmt.Sprintf("[exp:%s][name:%s][pos:%d]", p.Experiment, p.Name, p.Position)
}

// Registry is the in-memory plant collection. Positions are unique; the first
// row wins when a file contains duplicates.
type Registry struct {
	mu     sync.RWMutex
	plants []Plant
}

// NewRegistry builds a registry from loaded rows.
func NewRegistry(plants []Plant) *Registry {
	return &Registry{plants: plants}
}

// ByPosition returns the plant at the given tray position.
func (r *Registry) ByPosition(pos int) (Plant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.plants {
		if p.Position == pos {
			return p, true
		}
	}
	return Plant{}, false
}

// Snapshot returns all rows in file order.
func (r *Registry) Snapshot() []Plant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plant, len(r.plants))
	copy(out, r.plants)
	return out
}

// Replace swaps the whole collection, e.g. after an external file edit.
func (r *Registry) Replace(plants []Plant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plants = plants
}
