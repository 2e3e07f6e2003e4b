package label

// AncestryState distinguishes the three closure states a label can be
// in. Collapsing these into one nil sentinel is how subtle bugs creep
// into consumers that special-case unlabeled objects, so the state is
// explicit.
type AncestryState int

const (
	// AncestryUnknown means the compiler has not resolved this label in
	// the current pass. Queries never observe it: every recompute
	// resolves every label before the table is swapped in.
	AncestryUnknown AncestryState = iota

	// AncestryLeaf means the label was resolved and has no ancestors.
	AncestryLeaf

	// AncestryResolved means the label has a non-empty ancestor set,
	// which includes the label itself.
	AncestryResolved
)

// Ancestry is the computed closure record for one label. Records are
// built by the ancestry compiler in a single pass and installed as one
// wholesale table swap; they are never mutated afterward.
type Ancestry struct {
	// State says whether Ancestors is meaningful.
	State AncestryState

	// Parents is the sanitized declared parent set: self-references,
	// special labels, and ids of labels that do not currently exist are
	// filtered out. Nil when the label was never given a parent
	// declaration, which is distinct from an empty set.
	Parents IDSet

	// Ancestors is every label reachable by following parent edges,
	// including this label itself. Only set when State is
	// AncestryResolved. Members of one strongly connected component
	// share a single set.
	Ancestors IDSet

	// Equivalents is the set of labels mutually reachable with this one
	// (its cycle), including itself. Only populated when the component
	// has more than one member.
	Equivalents IDSet
}

// clone returns a deep copy safe to hand to callers.
func (a *Ancestry) clone() Ancestry {
	return Ancestry{
		State:       a.State,
		Parents:     a.Parents.Clone(),
		Ancestors:   a.Ancestors.Clone(),
		Equivalents: a.Equivalents.Clone(),
	}
}
