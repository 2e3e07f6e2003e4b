// Package label implements the label ancestry engine: a registry of
// label entries, a declared parent graph that may contain cycles, an
// ancestry compiler that collapses cycles into equivalence classes,
// and a derived-label rule layer evaluated against ancestor sets.
package label

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/labelgraph/bus"
	"github.com/c360studio/labelgraph/rule"
	"github.com/c360studio/labelgraph/storage"
)

// Settings is the configuration snapshot applied wholesale on load and
// reload: declared parents, derived-label rule sources, and the label
// ids that back synthetic areas.
type Settings struct {
	Parents map[string][]string
	Rules   map[string]string
	Areas   []string
}

// Registry owns the label table and everything computed from it. All
// mutations take the exclusive write guard and recompute the full
// ancestry table before releasing it; readers only ever observe a
// fully consistent table.
type Registry struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	bus     *bus.Bus
	store   *storage.Store
	metrics *registryMetrics

	labels map[string]*Entry

	// Declared state, survives label churn and is re-filtered against
	// the live label set on every recompute.
	declaredParents map[string]IDSet
	declaredRules   map[string]*rule.Program
	declaredAreas   IDSet

	// Computed state, replaced wholesale per recompute.
	computed map[string]*Ancestry
	rules    map[string]*rule.Program
	areas    IDSet

	loaded bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithStore attaches a persistent record store. Records load during
// Load and persist on Create, Rename, and Delete.
func WithStore(s *storage.Store) Option {
	return func(r *Registry) { r.store = s }
}

// WithMetrics registers registry metrics with the given registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *Registry) { r.metrics = newRegistryMetrics(reg) }
}

// New creates a label registry. A nil logger falls back to
// slog.Default(). The registry is unusable until Load completes;
// queries before that fail with ErrNotLoaded.
func New(logger *slog.Logger, b *bus.Bus, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		logger:          logger,
		bus:             b,
		labels:          make(map[string]*Entry),
		declaredParents: make(map[string]IDSet),
		declaredRules:   make(map[string]*rule.Program),
		declaredAreas:   NewIDSet(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load populates the registry from the record store (when attached),
// applies the configuration snapshot, and computes ancestry. It does
// not fire change events: at startup nothing is subscribed yet, and
// consumers derive their initial state directly after wiring.
func (r *Registry) Load(ctx context.Context, settings Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store != nil {
		records, err := r.store.LoadAll(ctx)
		if err != nil {
			return fmt.Errorf("load label records: %w", err)
		}
		for _, rec := range records {
			r.labels[rec.ID] = &Entry{
				ID:         rec.ID,
				Name:       rec.Name,
				Icon:       rec.Icon,
				Color:      rec.Color,
				Aliases:    rec.Aliases,
				CreatedAt:  rec.CreatedAt,
				ModifiedAt: rec.ModifiedAt,
			}
		}
		r.logger.Info("Loaded label records", "count", len(records))
	}

	r.applySettingsLocked(settings)
	r.loaded = true
	r.recomputeLocked()
	return nil
}

// Reload replaces the whole parents/rules/areas configuration,
// recomputes, and fires both change events exactly once.
func (r *Registry) Reload(settings Settings) error {
	r.mu.Lock()
	if !r.loaded {
		r.mu.Unlock()
		return ErrNotLoaded
	}
	r.applySettingsLocked(settings)
	r.recomputeLocked()
	r.mu.Unlock()

	r.fireChanged()
	return nil
}

// applySettingsLocked sanitizes and installs a configuration snapshot.
// Special labels are dropped as hierarchy keys; self-references and
// special parents are dropped from each parent set. Existence filtering
// happens lazily at recompute, since parents may be declared for labels
// that do not exist yet.
func (r *Registry) applySettingsLocked(settings Settings) {
	parents := make(map[string]IDSet, len(settings.Parents))
	for labelID, declared := range settings.Parents {
		if IsSpecial(labelID) {
			r.logger.Warn("Dropping parent declaration for special label", "label_id", labelID)
			continue
		}
		set := NewIDSet(declared...)
		set.Discard(labelID)
		for parentID := range set {
			if IsSpecial(parentID) {
				set.Discard(parentID)
			}
		}
		parents[labelID] = set
	}

	areas := NewIDSet()
	for _, labelID := range settings.Areas {
		if IsSpecial(labelID) {
			r.logger.Warn("Dropping special label from areas", "label_id", labelID)
			continue
		}
		areas.Add(labelID)
	}

	r.declaredParents = parents
	r.declaredRules = rule.CompileRules(settings.Rules, r.logger)
	r.declaredAreas = areas
}

// Create adds a label named name, with its id derived by Slugify, and
// recomputes ancestry before returning.
func (r *Registry) Create(ctx context.Context, name string) (*Entry, error) {
	id := Slugify(name)
	if id == "" {
		return nil, fmt.Errorf("label name %q produces an empty id", name)
	}

	r.mu.Lock()
	if !r.loaded {
		r.mu.Unlock()
		return nil, ErrNotLoaded
	}
	if _, ok := r.labels[id]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("create label %s: %w", id, ErrLabelExists)
	}

	now := time.Now()
	entry := &Entry{ID: id, Name: name, CreatedAt: now, ModifiedAt: now}

	if r.store != nil {
		err := r.store.Put(ctx, storage.Record{
			ID:         entry.ID,
			Name:       entry.Name,
			CreatedAt:  entry.CreatedAt,
			ModifiedAt: entry.ModifiedAt,
		})
		if err != nil {
			r.mu.Unlock()
			return nil, fmt.Errorf("persist label %s: %w", id, err)
		}
	}

	r.labels[id] = entry
	r.recomputeLocked()
	r.mu.Unlock()

	r.fireChanged()
	r.logger.Info("Created label", "label_id", id)
	return entry, nil
}

// Rename changes a label's identifier. Declared parent references to
// the old id are not rewritten; they fall away at the next recompute's
// existence filter, exactly as if the old label had been deleted.
func (r *Registry) Rename(ctx context.Context, oldID, newID string) (*Entry, error) {
	if IsSpecial(newID) {
		return nil, fmt.Errorf("rename to %s: %w", newID, ErrSpecialLabel)
	}

	r.mu.Lock()
	if !r.loaded {
		r.mu.Unlock()
		return nil, ErrNotLoaded
	}
	entry, ok := r.labels[oldID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("rename label %s: %w", oldID, ErrLabelNotFound)
	}
	if _, ok := r.labels[newID]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("rename label to %s: %w", newID, ErrLabelExists)
	}

	if r.store != nil {
		if err := r.store.Rename(ctx, oldID, newID); err != nil {
			r.mu.Unlock()
			return nil, fmt.Errorf("persist rename %s -> %s: %w", oldID, newID, err)
		}
	}

	renamed := *entry
	renamed.ID = newID
	renamed.ModifiedAt = time.Now()
	delete(r.labels, oldID)
	r.labels[newID] = &renamed
	r.recomputeLocked()
	r.mu.Unlock()

	r.fireChanged()
	r.logger.Info("Renamed label", "old_id", oldID, "new_id", newID)
	return &renamed, nil
}

// Delete removes a label and recomputes ancestry before returning. On
// the next recompute every other label's parents and ancestors shed the
// deleted id, and any rule keyed to it stops contributing.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	if !r.loaded {
		r.mu.Unlock()
		return ErrNotLoaded
	}
	if _, ok := r.labels[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("delete label %s: %w", id, ErrLabelNotFound)
	}

	if r.store != nil {
		if err := r.store.Delete(ctx, id); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("persist delete %s: %w", id, err)
		}
	}

	delete(r.labels, id)
	r.recomputeLocked()
	r.mu.Unlock()

	r.fireChanged()
	r.logger.Info("Deleted label", "label_id", id)
	return nil
}

// recomputeLocked rebuilds the computed side table from scratch and
// swaps it in, then re-filters rules and areas against the live label
// set. Recompute is whole-graph: cycle membership can change
// non-locally on any edge edit, so there is no incremental path.
func (r *Registry) recomputeLocked() {
	start := time.Now()

	live := make(IDSet, len(r.labels))
	for id := range r.labels {
		live.Add(id)
	}

	computed := make(map[string]*Ancestry, len(r.labels))
	for id := range r.labels {
		rec := &Ancestry{State: AncestryUnknown}
		if declared, ok := r.declaredParents[id]; ok {
			rec.Parents = declared.Intersect(live)
		}
		computed[id] = rec
	}

	computeAncestry(computed)
	r.computed = computed

	rules := make(map[string]*rule.Program, len(r.declaredRules))
	for id, program := range r.declaredRules {
		if live.Has(id) {
			rules[id] = program
		}
	}
	r.rules = rules
	r.areas = r.declaredAreas.Intersect(live)

	cycles := 0
	seen := NewIDSet()
	for id, rec := range computed {
		if rec.Equivalents != nil && !seen.Has(id) {
			cycles++
			seen.AddSet(rec.Equivalents)
		}
	}
	r.metrics.recordRecompute(time.Since(start).Seconds(), len(live), cycles, len(rules))
}

// fireChanged publishes both structural-change events in their fixed
// order. Called without the write guard held: handlers query the
// registry, and they must observe the fully recomputed table.
func (r *Registry) fireChanged() {
	if r.bus == nil {
		return
	}
	r.bus.Publish(EventAncestryUpdated, nil)
	r.bus.Publish(EventExtraUpdated, nil)
}

// Ancestors returns the ancestor closure of the given label ids: the
// union of each id's ancestor set, or the id itself for leaf labels.
// Ids of labels that no longer exist are silently dropped.
func (r *Registry) Ancestors(ids IDSet) (IDSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.loaded {
		return nil, ErrNotLoaded
	}

	ancestors := NewIDSet()
	for id := range ids {
		rec, ok := r.computed[id]
		if !ok {
			continue
		}
		if rec.State == AncestryResolved {
			ancestors.AddSet(rec.Ancestors)
		} else {
			ancestors.Add(id)
		}
	}

	// An ancestor set may briefly reference a label deleted since the
	// set was installed; filter against the live table for consistency.
	for id := range ancestors {
		if _, ok := r.labels[id]; !ok {
			ancestors.Discard(id)
		}
	}
	return ancestors, nil
}

// EffectiveLabels returns ancestryLabels plus every derived label whose
// rule evaluates true against it. Rules see only the pre-rule ancestor
// set (one simultaneous pass, not a fixpoint), and a failing rule is
// skipped without affecting its siblings.
func (r *Registry) EffectiveLabels(ancestryLabels IDSet) (IDSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.loaded {
		return nil, ErrNotLoaded
	}

	effective := ancestryLabels.Clone()
	if effective == nil {
		effective = NewIDSet()
	}
	for labelID, program := range r.rules {
		ok, err := program.Eval(ancestryLabels.Has)
		if err != nil {
			r.metrics.recordRuleEvalError()
			r.logger.Warn("Rule evaluation failed, skipping",
				"label_id", labelID,
				"source", program.Source(),
				"error", err)
			continue
		}
		if ok {
			effective.Add(labelID)
		}
	}
	return effective, nil
}

// Get returns the entry for a label id.
func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.labels[id]
	return entry, ok
}

// List returns all entries ordered by id.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make(IDSet, len(r.labels))
	for id := range r.labels {
		ids.Add(id)
	}
	entries := make([]*Entry, 0, len(r.labels))
	for _, id := range ids.Sorted() {
		entries = append(entries, r.labels[id])
	}
	return entries
}

// AncestryOf returns a copy of the computed closure record for one
// label. Introspection only; consumers should use Ancestors and
// EffectiveLabels.
func (r *Registry) AncestryOf(id string) (Ancestry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.computed[id]
	if !ok {
		return Ancestry{}, false
	}
	return rec.clone(), true
}

// Areas returns the live set of area-backing label ids.
func (r *Registry) Areas() IDSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.areas.Clone()
}
