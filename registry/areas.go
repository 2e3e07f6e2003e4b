package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360studio/labelgraph/bus"
	"github.com/c360studio/labelgraph/label"
)

// Area is an area registry entry. Label-backed areas are synthesized
// from label ids declared as area-backing in configuration; they come
// and go with the label set and are never persisted.
type Area struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	LabelBacked bool     `json:"label_backed,omitempty"`
}

// AreaRegistry holds areas, including the synthetic label-backed ones.
type AreaRegistry struct {
	mu     sync.RWMutex
	logger *slog.Logger
	labels *label.Registry

	areas      map[string]*Area
	labelAreas map[string]*Area

	sub *bus.Subscription
}

// NewAreaRegistry creates an area registry and subscribes it to
// ancestry updates.
func NewAreaRegistry(logger *slog.Logger, labels *label.Registry, b *bus.Bus) *AreaRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &AreaRegistry{
		logger:     logger,
		labels:     labels,
		areas:      make(map[string]*Area),
		labelAreas: make(map[string]*Area),
	}
	if b != nil {
		r.sub = b.Subscribe(label.EventAncestryUpdated, func(bus.Event) {
			r.RefreshLabelAreas()
		})
	}
	r.RefreshLabelAreas()
	return r
}

// Close removes the bus subscription.
func (r *AreaRegistry) Close() {
	if r.sub != nil {
		r.sub.Unsubscribe()
	}
}

// Create adds a user-defined area.
func (r *AreaRegistry) Create(name string) (*Area, error) {
	id := label.Slugify(name)
	if id == "" {
		return nil, fmt.Errorf("area name %q produces an empty id", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.areas[id]; ok {
		return nil, fmt.Errorf("area %s already exists", id)
	}
	area := &Area{ID: id, Name: name}
	r.areas[id] = area
	return area, nil
}

// Delete removes a user-defined area. Label-backed areas cannot be
// deleted directly; they disappear when their label stops backing one.
func (r *AreaRegistry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.areas[id]; !ok {
		return fmt.Errorf("area %s not found", id)
	}
	delete(r.areas, id)
	return nil
}

// Get returns an area by id, checking user areas before label-backed
// ones.
func (r *AreaRegistry) Get(id string) (*Area, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if area, ok := r.areas[id]; ok {
		return area, true
	}
	area, ok := r.labelAreas[id]
	return area, ok
}

// List returns all areas, user-defined and label-backed.
func (r *AreaRegistry) List() []*Area {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Area, 0, len(r.areas)+len(r.labelAreas))
	for _, area := range r.areas {
		out = append(out, area)
	}
	for id, area := range r.labelAreas {
		if _, shadowed := r.areas[id]; !shadowed {
			out = append(out, area)
		}
	}
	return out
}

// RefreshLabelAreas rebuilds the label-backed area table from the
// current area-backing label set. The table is replaced wholesale.
func (r *AreaRegistry) RefreshLabelAreas() {
	backing := r.labels.Areas()

	r.mu.Lock()
	defer r.mu.Unlock()

	labelAreas := make(map[string]*Area, len(backing))
	for labelID := range backing {
		if existing, ok := r.areas[labelID]; ok {
			labelAreas[labelID] = existing
			continue
		}
		name := labelID
		if entry, ok := r.labels.Get(labelID); ok {
			name = entry.Name
		}
		labelAreas[labelID] = &Area{ID: labelID, Name: name, LabelBacked: true}
	}
	r.labelAreas = labelAreas
}
