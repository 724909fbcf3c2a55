package transplant

import (
	"fmt"
	"strings"
)

// AmbiguousClassificationError aborts assembly before any write. Names lists
// every Source member that matched a workflow rule while colliding with
// Template scaffolding, so the operator can rename or resolve manually.
type AmbiguousClassificationError struct {
	Names []string
}

func (e *AmbiguousClassificationError) Error() string {
	return fmt.Sprintf("ambiguous classification for %s: member(s) match workflow rules but collide with template scaffolding; rename or resolve manually",
		strings.Join(e.Names, ", "))
}

// Warning kinds surfaced on a successful run.
const (
	// WarnUnresolvedRouteInsertionPoint: no standard-route anchor was found
	// in the Template's __init__; custom routes were appended at the end.
	WarnUnresolvedRouteInsertionPoint = "UnresolvedRouteInsertionPoint"
	// WarnMissingOverridePlaceholder: the Template lacks a placeholder for a
	// Source attribute on the overridable list. Configuration error; the
	// override is skipped.
	WarnMissingOverridePlaceholder = "MissingOverridePlaceholder"
)

// Warning is a non-fatal diagnostic attached to a successful Result.
type Warning struct {
	Kind    string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}
