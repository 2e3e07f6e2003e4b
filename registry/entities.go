package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360studio/labelgraph/bus"
	"github.com/c360studio/labelgraph/label"
)

// Entity is an entity registry entry. AssignedLabels is the entity's
// own labels unioned with its owning device's labels; EffectiveLabels
// derives from that through the label registry.
type Entity struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	DeviceID        string      `json:"device_id,omitempty"`
	Labels          label.IDSet `json:"labels"`
	AssignedLabels  label.IDSet `json:"assigned_labels"`
	EffectiveLabels label.IDSet `json:"effective_labels"`
}

// EntityRegistry holds entities and an index from effective label to
// the entities carrying it. Construct it after the device registry so
// its extra-updated handler runs second and observes fresh device
// state.
type EntityRegistry struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	labels  *label.Registry
	devices *DeviceRegistry

	entities       map[string]*Entity
	effectiveIndex map[string]label.IDSet

	sub *bus.Subscription
}

// NewEntityRegistry creates an entity registry and subscribes it to
// extra updates.
func NewEntityRegistry(logger *slog.Logger, labels *label.Registry, devices *DeviceRegistry, b *bus.Bus) *EntityRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &EntityRegistry{
		logger:         logger,
		labels:         labels,
		devices:        devices,
		entities:       make(map[string]*Entity),
		effectiveIndex: make(map[string]label.IDSet),
	}
	if b != nil {
		r.sub = b.Subscribe(label.EventExtraUpdated, func(bus.Event) {
			r.RefreshAll()
		})
	}
	return r
}

// Close removes the bus subscription.
func (r *EntityRegistry) Close() {
	if r.sub != nil {
		r.sub.Unsubscribe()
	}
}

// Add registers an entity. DeviceID may be empty for deviceless
// entities.
func (r *EntityRegistry) Add(id, name, deviceID string, labels label.IDSet) (*Entity, error) {
	entity := &Entity{ID: id, Name: name, DeviceID: deviceID, Labels: labels.Clone()}
	if err := r.derive(entity); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entities[id]; ok {
		return nil, fmt.Errorf("entity %s already exists", id)
	}
	r.entities[id] = entity
	r.indexLocked(entity)
	return entity, nil
}

// SetLabels replaces an entity's directly assigned labels.
func (r *EntityRegistry) SetLabels(id string, labels label.IDSet) (*Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity, ok := r.entities[id]
	if !ok {
		return nil, fmt.Errorf("entity %s not found", id)
	}

	updated := *entity
	updated.Labels = labels.Clone()
	if err := r.derive(&updated); err != nil {
		return nil, err
	}

	r.unindexLocked(entity)
	*entity = updated
	r.indexLocked(entity)
	return entity, nil
}

// Remove deletes an entity.
func (r *EntityRegistry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity, ok := r.entities[id]
	if !ok {
		return fmt.Errorf("entity %s not found", id)
	}
	r.unindexLocked(entity)
	delete(r.entities, id)
	return nil
}

// Get returns an entity by id.
func (r *EntityRegistry) Get(id string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entity, ok := r.entities[id]
	return entity, ok
}

// EntitiesForLabel returns the entities carrying the label, matching
// the effective set by default or the directly assigned set.
func (r *EntityRegistry) EntitiesForLabel(labelID string, effective bool) []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Entity
	if effective {
		for id := range r.effectiveIndex[labelID] {
			out = append(out, r.entities[id])
		}
		return out
	}
	for _, entity := range r.entities {
		if entity.Labels.Has(labelID) {
			out = append(out, entity)
		}
	}
	return out
}

// RefreshAll re-derives every entity's assigned and effective labels.
func (r *EntityRegistry) RefreshAll() {
	r.refresh(func(*Entity) bool { return true })
}

// RefreshForDevice re-derives entities owned by one device, after that
// device's labels changed.
func (r *EntityRegistry) RefreshForDevice(deviceID string) {
	r.refresh(func(e *Entity) bool { return e.DeviceID == deviceID })
}

func (r *EntityRegistry) refresh(match func(*Entity) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entity := range r.entities {
		if !match(entity) {
			continue
		}
		updated := *entity
		if err := r.derive(&updated); err != nil {
			r.logger.Warn("Skipping entity refresh", "entity_id", entity.ID, "error", err)
			continue
		}
		if updated.AssignedLabels.Equal(entity.AssignedLabels) &&
			updated.EffectiveLabels.Equal(entity.EffectiveLabels) {
			continue
		}
		r.unindexLocked(entity)
		*entity = updated
		r.indexLocked(entity)
	}
}

// derive fills AssignedLabels and EffectiveLabels from the entity's
// own labels and its device's labels.
func (r *EntityRegistry) derive(entity *Entity) error {
	assigned := entity.Labels.Clone()
	if assigned == nil {
		assigned = label.NewIDSet()
	}
	if entity.DeviceID != "" && r.devices != nil {
		if device, ok := r.devices.Get(entity.DeviceID); ok {
			assigned.AddSet(device.Labels)
		}
	}

	ancestry, err := r.labels.Ancestors(assigned)
	if err != nil {
		return err
	}
	effective, err := r.labels.EffectiveLabels(ancestry)
	if err != nil {
		return err
	}

	entity.AssignedLabels = assigned
	entity.EffectiveLabels = effective
	return nil
}

func (r *EntityRegistry) indexLocked(entity *Entity) {
	for labelID := range entity.EffectiveLabels {
		if r.effectiveIndex[labelID] == nil {
			r.effectiveIndex[labelID] = label.NewIDSet()
		}
		r.effectiveIndex[labelID].Add(entity.ID)
	}
}

func (r *EntityRegistry) unindexLocked(entity *Entity) {
	for labelID := range entity.EffectiveLabels {
		set := r.effectiveIndex[labelID]
		set.Discard(entity.ID)
		if len(set) == 0 {
			delete(r.effectiveIndex, labelID)
		}
	}
}
