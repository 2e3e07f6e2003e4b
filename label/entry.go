package label

import (
	"strings"
	"time"
	"unicode"
)

// Entry is the declared, immutable part of a label. Computed ancestry
// lives in a separate side table owned by the registry (see Ancestry);
// an Entry never changes after creation except through Rename.
type Entry struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Icon       string    `json:"icon,omitempty"`
	Color      string    `json:"color,omitempty"`
	Aliases    []string  `json:"aliases,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// IsSpecial reports whether a label id belongs to the reserved
// namespace, marked syntactically by a ':' separator. Special labels
// are system-owned tree leaves: they cannot be assigned parents, carry
// rules, or back areas.
func IsSpecial(labelID string) bool {
	return strings.Contains(labelID, ":")
}

// Slugify derives a label id from a display name: lowercased, with
// runs of non-alphanumeric characters collapsed to single underscores.
// The result never contains ':', so created labels are never special.
func Slugify(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		} else {
			pendingSep = true
		}
	}
	return b.String()
}
