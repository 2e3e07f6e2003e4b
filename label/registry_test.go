package label

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/labelgraph/bus"
)

func newTestRegistry(t *testing.T, settings Settings) *Registry {
	t.Helper()
	r := New(nil, bus.New(nil))
	require.NoError(t, r.Load(context.Background(), settings))
	return r
}

func createLabels(t *testing.T, r *Registry, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := r.Create(context.Background(), name)
		require.NoError(t, err)
	}
}

func TestRegistryFailsFastBeforeLoad(t *testing.T) {
	r := New(nil, nil)

	_, err := r.Ancestors(NewIDSet("a"))
	assert.ErrorIs(t, err, ErrNotLoaded)

	_, err = r.EffectiveLabels(NewIDSet("a"))
	assert.ErrorIs(t, err, ErrNotLoaded)

	_, err = r.Create(context.Background(), "Bedroom")
	assert.ErrorIs(t, err, ErrNotLoaded)

	err = r.Delete(context.Background(), "bedroom")
	assert.ErrorIs(t, err, ErrNotLoaded)

	err = r.Reload(Settings{})
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestRegistryCreateSlugifiesName(t *testing.T) {
	r := newTestRegistry(t, Settings{})

	entry, err := r.Create(context.Background(), "First Floor")
	require.NoError(t, err)
	assert.Equal(t, "first_floor", entry.ID)
	assert.Equal(t, "First Floor", entry.Name)
	assert.False(t, entry.CreatedAt.IsZero())

	got, ok := r.Get("first_floor")
	require.True(t, ok)
	assert.Equal(t, entry.ID, got.ID)
}

func TestRegistryCreateDuplicate(t *testing.T) {
	r := newTestRegistry(t, Settings{})
	createLabels(t, r, "Bedroom")

	_, err := r.Create(context.Background(), "bedroom")
	assert.ErrorIs(t, err, ErrLabelExists)
}

func TestRegistryAncestors(t *testing.T) {
	r := newTestRegistry(t, Settings{
		Parents: map[string][]string{
			"bedroom": {"upstairs"},
			"bed":     {"bedroom"},
		},
	})
	createLabels(t, r, "upstairs", "bedroom", "bed")

	got, err := r.Ancestors(NewIDSet("bed"))
	require.NoError(t, err)
	assert.Equal(t, NewIDSet("bed", "bedroom", "upstairs"), got)

	// A leaf contributes itself.
	got, err = r.Ancestors(NewIDSet("upstairs"))
	require.NoError(t, err)
	assert.Equal(t, NewIDSet("upstairs"), got)

	// Union over several inputs, unknown ids silently dropped.
	got, err = r.Ancestors(NewIDSet("bedroom", "upstairs", "ghost"))
	require.NoError(t, err)
	assert.Equal(t, NewIDSet("bedroom", "upstairs"), got)
}

func TestRegistryDeleteShedsAncestors(t *testing.T) {
	r := newTestRegistry(t, Settings{
		Parents: map[string][]string{"bedroom": {"upstairs"}},
	})
	createLabels(t, r, "upstairs", "bedroom")

	got, err := r.Ancestors(NewIDSet("bedroom"))
	require.NoError(t, err)
	assert.True(t, got.Has("upstairs"))

	require.NoError(t, r.Delete(context.Background(), "upstairs"))

	got, err = r.Ancestors(NewIDSet("bedroom"))
	require.NoError(t, err)
	assert.Equal(t, NewIDSet("bedroom"), got)

	err = r.Delete(context.Background(), "upstairs")
	assert.ErrorIs(t, err, ErrLabelNotFound)
}

func TestRegistryRecreateRestoresDeclaration(t *testing.T) {
	// Declared parents survive label churn: deleting and re-creating a
	// parent brings the edge back without touching configuration.
	r := newTestRegistry(t, Settings{
		Parents: map[string][]string{"bedroom": {"upstairs"}},
	})
	createLabels(t, r, "upstairs", "bedroom")

	require.NoError(t, r.Delete(context.Background(), "upstairs"))
	createLabels(t, r, "upstairs")

	got, err := r.Ancestors(NewIDSet("bedroom"))
	require.NoError(t, err)
	assert.Equal(t, NewIDSet("bedroom", "upstairs"), got)
}

func TestRegistryRename(t *testing.T) {
	r := newTestRegistry(t, Settings{
		Parents: map[string][]string{"bedroom": {"upstairs"}},
	})
	createLabels(t, r, "upstairs", "bedroom")

	_, err := r.Rename(context.Background(), "upstairs", "floor:2")
	assert.ErrorIs(t, err, ErrSpecialLabel)

	_, err = r.Rename(context.Background(), "ghost", "anything")
	assert.ErrorIs(t, err, ErrLabelNotFound)

	_, err = r.Rename(context.Background(), "upstairs", "bedroom")
	assert.ErrorIs(t, err, ErrLabelExists)

	renamed, err := r.Rename(context.Background(), "upstairs", "second_floor")
	require.NoError(t, err)
	assert.Equal(t, "second_floor", renamed.ID)

	_, ok := r.Get("upstairs")
	assert.False(t, ok)

	// Parent declarations still point at the old id; the edge falls
	// away like a deletion rather than following the rename.
	got, err := r.Ancestors(NewIDSet("bedroom"))
	require.NoError(t, err)
	assert.Equal(t, NewIDSet("bedroom"), got)
}

func TestRegistryEventOrdering(t *testing.T) {
	b := bus.New(nil)
	r := New(nil, b)
	require.NoError(t, r.Load(context.Background(), Settings{}))

	var order []string
	b.Subscribe(EventAncestryUpdated, func(bus.Event) {
		order = append(order, EventAncestryUpdated)
	})
	b.Subscribe(EventExtraUpdated, func(bus.Event) {
		order = append(order, EventExtraUpdated)
	})

	createLabels(t, r, "bedroom")
	require.Equal(t, []string{EventAncestryUpdated, EventExtraUpdated}, order)

	order = nil
	require.NoError(t, r.Reload(Settings{}))
	assert.Equal(t, []string{EventAncestryUpdated, EventExtraUpdated}, order)

	order = nil
	require.NoError(t, r.Delete(context.Background(), "bedroom"))
	assert.Equal(t, []string{EventAncestryUpdated, EventExtraUpdated}, order)
}

func TestRegistryHandlersObserveFreshState(t *testing.T) {
	// Handlers run after the write guard is released and must see the
	// recomputed table when they query back into the registry.
	b := bus.New(nil)
	r := New(nil, b)
	require.NoError(t, r.Load(context.Background(), Settings{
		Parents: map[string][]string{"bedroom": {"upstairs"}},
	}))
	createLabels(t, r, "upstairs")

	var seen IDSet
	b.Subscribe(EventAncestryUpdated, func(bus.Event) {
		got, err := r.Ancestors(NewIDSet("bedroom"))
		require.NoError(t, err)
		seen = got
	})

	createLabels(t, r, "bedroom")
	assert.Equal(t, NewIDSet("bedroom", "upstairs"), seen)
}

func TestRegistrySanitizesSettings(t *testing.T) {
	r := newTestRegistry(t, Settings{
		Parents: map[string][]string{
			"zone:home": {"upstairs"},          // special key dropped
			"bedroom":   {"bedroom", "zone:x"}, // self-loop and special parent dropped
		},
		Areas: []string{"bedroom", "zone:home"},
	})
	createLabels(t, r, "bedroom", "upstairs")

	rec, ok := r.AncestryOf("bedroom")
	require.True(t, ok)
	assert.Equal(t, AncestryLeaf, rec.State)
	assert.Empty(t, rec.Parents)

	assert.Equal(t, NewIDSet("bedroom"), r.Areas())
}

func TestRegistryAreasFilteredToLive(t *testing.T) {
	r := newTestRegistry(t, Settings{Areas: []string{"upstairs", "ghost"}})
	createLabels(t, r, "upstairs")

	assert.Equal(t, NewIDSet("upstairs"), r.Areas())

	require.NoError(t, r.Delete(context.Background(), "upstairs"))
	assert.Empty(t, r.Areas())
}

func TestRegistryCycleEquivalence(t *testing.T) {
	r := newTestRegistry(t, Settings{
		Parents: map[string][]string{
			"x": {"y"},
			"y": {"x"},
		},
	})
	createLabels(t, r, "x", "y")

	for _, id := range []string{"x", "y"} {
		rec, ok := r.AncestryOf(id)
		require.True(t, ok, "label %s", id)
		assert.Equal(t, AncestryResolved, rec.State, "label %s", id)
		assert.Equal(t, NewIDSet("x", "y"), rec.Ancestors, "label %s", id)
		assert.Equal(t, NewIDSet("x", "y"), rec.Equivalents, "label %s", id)
	}

	got, err := r.Ancestors(NewIDSet("x"))
	require.NoError(t, err)
	assert.Equal(t, NewIDSet("x", "y"), got)

	// Breaking the cycle dissolves the equivalence group.
	require.NoError(t, r.Reload(Settings{
		Parents: map[string][]string{"x": {"y"}},
	}))
	rec, ok := r.AncestryOf("y")
	require.True(t, ok)
	assert.Equal(t, AncestryLeaf, rec.State)
	assert.Nil(t, rec.Equivalents)
}

func TestRegistryEffectiveLabels(t *testing.T) {
	r := newTestRegistry(t, Settings{
		Rules: map[string]string{
			"cold": "label(winter) and not label(heated)",
		},
	})
	createLabels(t, r, "winter", "heated", "cold")

	got, err := r.EffectiveLabels(NewIDSet("winter"))
	require.NoError(t, err)
	assert.Equal(t, NewIDSet("winter", "cold"), got)

	got, err = r.EffectiveLabels(NewIDSet("winter", "heated"))
	require.NoError(t, err)
	assert.Equal(t, NewIDSet("winter", "heated"), got)

	got, err = r.EffectiveLabels(NewIDSet())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRegistryEffectiveLabelsSimultaneous(t *testing.T) {
	// Rules evaluate against the pre-rule ancestor set in one pass:
	// a rule keyed off another derived label never sees it.
	r := newTestRegistry(t, Settings{
		Rules: map[string]string{
			"first":  "label(base)",
			"second": "label(first)",
		},
	})
	createLabels(t, r, "base", "first", "second")

	got, err := r.EffectiveLabels(NewIDSet("base"))
	require.NoError(t, err)
	assert.Equal(t, NewIDSet("base", "first"), got)

	// With first in the input set, second fires.
	got, err = r.EffectiveLabels(NewIDSet("base", "first"))
	require.NoError(t, err)
	assert.Equal(t, NewIDSet("base", "first", "second"), got)
}

func TestRegistryRulesFilteredToLive(t *testing.T) {
	r := newTestRegistry(t, Settings{
		Rules: map[string]string{
			"cold":  "label(winter)",
			"ghost": "true",
		},
	})
	createLabels(t, r, "winter", "cold")

	got, err := r.EffectiveLabels(NewIDSet("winter"))
	require.NoError(t, err)
	assert.Equal(t, NewIDSet("winter", "cold"), got)

	require.NoError(t, r.Delete(context.Background(), "cold"))
	got, err = r.EffectiveLabels(NewIDSet("winter"))
	require.NoError(t, err)
	assert.Equal(t, NewIDSet("winter"), got)
}

func TestRegistryList(t *testing.T) {
	r := newTestRegistry(t, Settings{})
	createLabels(t, r, "zebra", "alpha", "middle")

	entries := r.List()
	require.Len(t, entries, 3)
	assert.Equal(t, "alpha", entries[0].ID)
	assert.Equal(t, "middle", entries[1].ID)
	assert.Equal(t, "zebra", entries[2].ID)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "Bedroom", want: "bedroom"},
		{name: "First Floor", want: "first_floor"},
		{name: "  spaced  out  ", want: "spaced_out"},
		{name: "Héllo", want: "héllo"},
		{name: "a:b", want: "a_b"},
		{name: "***", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.name))
		})
	}
}
