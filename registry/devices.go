package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360studio/labelgraph/bus"
	"github.com/c360studio/labelgraph/label"
)

// Device is a device registry entry. Labels are the directly assigned
// set; EffectiveLabels is the derived set (ancestor closure plus
// satisfied derived labels), maintained by the registry.
type Device struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Labels          label.IDSet `json:"labels"`
	EffectiveLabels label.IDSet `json:"effective_labels"`
}

// DeviceRegistry holds devices and an index from effective label to
// the devices carrying it.
type DeviceRegistry struct {
	mu     sync.RWMutex
	logger *slog.Logger
	labels *label.Registry

	devices        map[string]*Device
	effectiveIndex map[string]label.IDSet

	sub *bus.Subscription
}

// NewDeviceRegistry creates a device registry and subscribes it to
// extra updates.
func NewDeviceRegistry(logger *slog.Logger, labels *label.Registry, b *bus.Bus) *DeviceRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &DeviceRegistry{
		logger:         logger,
		labels:         labels,
		devices:        make(map[string]*Device),
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
func (r *DeviceRegistry) Close() {
	if r.sub != nil {
		r.sub.Unsubscribe()
	}
}

// Add registers a device with its directly assigned labels.
func (r *DeviceRegistry) Add(id, name string, labels label.IDSet) (*Device, error) {
	effective, err := r.effective(labels)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[id]; ok {
		return nil, fmt.Errorf("device %s already exists", id)
	}
	device := &Device{ID: id, Name: name, Labels: labels.Clone(), EffectiveLabels: effective}
	r.devices[id] = device
	r.indexLocked(device)
	return device, nil
}

// SetLabels replaces a device's directly assigned labels.
func (r *DeviceRegistry) SetLabels(id string, labels label.IDSet) (*Device, error) {
	effective, err := r.effective(labels)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("device %s not found", id)
	}
	r.unindexLocked(device)
	device.Labels = labels.Clone()
	device.EffectiveLabels = effective
	r.indexLocked(device)
	return device, nil
}

// Remove deletes a device.
func (r *DeviceRegistry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("device %s not found", id)
	}
	r.unindexLocked(device)
	delete(r.devices, id)
	return nil
}

// Get returns a device by id.
func (r *DeviceRegistry) Get(id string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	device, ok := r.devices[id]
	return device, ok
}

// DevicesForLabel returns the devices carrying the label, matching the
// effective set by default or the directly assigned set.
func (r *DeviceRegistry) DevicesForLabel(labelID string, effective bool) []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Device
	if effective {
		for id := range r.effectiveIndex[labelID] {
			out = append(out, r.devices[id])
		}
		return out
	}
	for _, device := range r.devices {
		if device.Labels.Has(labelID) {
			out = append(out, device)
		}
	}
	return out
}

// RefreshAll re-derives every device's effective labels. Invoked on
// extra-updated events; the whole table is rescanned rather than
// diffed.
func (r *DeviceRegistry) RefreshAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, device := range r.devices {
		effective, err := r.effective(device.Labels)
		if err != nil {
			r.logger.Warn("Skipping device refresh", "device_id", device.ID, "error", err)
			continue
		}
		if effective.Equal(device.EffectiveLabels) {
			continue
		}
		r.unindexLocked(device)
		device.EffectiveLabels = effective
		r.indexLocked(device)
	}
}

func (r *DeviceRegistry) effective(labels label.IDSet) (label.IDSet, error) {
	ancestry, err := r.labels.Ancestors(labels)
	if err != nil {
		return nil, err
	}
	return r.labels.EffectiveLabels(ancestry)
}

func (r *DeviceRegistry) indexLocked(device *Device) {
	for labelID := range device.EffectiveLabels {
		if r.effectiveIndex[labelID] == nil {
			r.effectiveIndex[labelID] = label.NewIDSet()
		}
		r.effectiveIndex[labelID].Add(device.ID)
	}
}

func (r *DeviceRegistry) unindexLocked(device *Device) {
	for labelID := range device.EffectiveLabels {
		set := r.effectiveIndex[labelID]
		set.Discard(device.ID)
		if len(set) == 0 {
			delete(r.effectiveIndex, labelID)
		}
	}
}
