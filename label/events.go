package label

// Structural-change events published on the bus. Whenever the graph
// changes, EventAncestryUpdated fires first, then EventExtraUpdated:
// listeners that re-run the rule engine may depend on state that
// ancestry-indexed listeners just refreshed. Neither event carries a
// payload; consumers re-derive fully rather than diffing.
const (
	// EventAncestryUpdated signals that ancestor closures changed.
	EventAncestryUpdated = "label_registry_ancestry_updated"

	// EventExtraUpdated signals that rules, areas, or closures changed
	// and effective-label sets must be recomputed.
	EventExtraUpdated = "label_registry_extra_updated"
)
