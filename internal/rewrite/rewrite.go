// Package rewrite applies old→new identifier substitutions to transplanted
// member text. Scope is structural, never free-text: class-name rules touch
// identifier nodes only, app-name rules touch string literals that are either
// exactly the old app-name or route-path templates containing it. Applying
// the same map twice produces no further change.
package rewrite

import (
	"strings"

	"github.com/agentic-research/regraft/internal/pysrc"
)

// RuleKind selects which node category a rule applies to.
type RuleKind int

const (
	// ClassRule rewrites identifiers exactly equal to Old.
	ClassRule RuleKind = iota
	// AppRule rewrites app-name occurrences inside string literals.
	AppRule
)

// Rule is one ordered old→new substitution.
type Rule struct {
	Kind RuleKind
	Old  string
	New  string
}

// Map is an ordered list of substitutions built from the Output Mode.
type Map struct {
	Rules []Rule
}

// NewMap builds the rewrite map for one invocation. Identity pairs (old ==
// new) and empty old tokens produce no rules, so InPlace mode yields an
// empty map.
func NewMap(oldClass, newClass, oldApp, newApp string) Map {
	var m Map
	if oldClass != "" && oldClass != newClass {
		m.Rules = append(m.Rules, Rule{Kind: ClassRule, Old: oldClass, New: newClass})
	}
	if oldApp != "" && oldApp != newApp {
		m.Rules = append(m.Rules, Rule{Kind: AppRule, Old: oldApp, New: newApp})
	}
	return m
}

// Empty reports whether applying the map is a no-op.
func (m Map) Empty() bool { return len(m.Rules) == 0 }

// Apply rewrites text, a slice of the module source starting at base, using
// the structural spans of mod. The input slice is not modified.
func (m Map) Apply(mod *pysrc.Module, base, end uint32, text []byte) []byte {
	if m.Empty() {
		return text
	}

	out := string(text)
	spans := mod.SpansWithin(base, end)

	type edit struct {
		at    int
		delta int
	}
	var edits []edit

	// Replace back to front so earlier span offsets stay valid. Interpolation
	// identifiers nest inside their f-string's span and are visited first, so
	// the enclosing literal's end must absorb the inner edits' size deltas.
	for i := len(spans) - 1; i >= 0; i-- {
		sp := spans[i]
		lo, hi := int(sp.Start-base), int(sp.End-base)
		for _, e := range edits {
			if e.at >= lo && e.at < int(sp.End-base) {
				hi += e.delta
			}
		}
		if lo < 0 || hi > len(out) {
			continue
		}
		replaced := m.rewriteSpan(sp.Kind, out[lo:hi])
		if replaced != out[lo:hi] {
			out = out[:lo] + replaced + out[hi:]
			edits = append(edits, edit{at: lo, delta: len(replaced) - (hi - lo)})
		}
	}
	return []byte(out)
}

func (m Map) rewriteSpan(kind pysrc.SpanKind, text string) string {
	for _, r := range m.Rules {
		switch {
		case r.Kind == ClassRule && kind == pysrc.IdentSpan:
			if text == r.Old {
				text = r.New
			}
		case r.Kind == AppRule && kind == pysrc.StringSpan:
			text = rewriteLiteral(text, r.Old, r.New)
		}
	}
	return text
}

// rewriteLiteral rewrites the old app-name inside one string literal. The
// literal is touched only when its inner text is exactly the old token, or
// when it is a path template (contains a slash). Anything else is treated as
// free text and left alone.
func rewriteLiteral(raw, old, new string) string {
	inner := pysrc.StripStringLiteral(raw)
	switch {
	case inner == old:
		return strings.Replace(raw, old, new, 1)
	case strings.Contains(inner, "/") && strings.Contains(inner, old):
		return replaceGuarded(raw, old, new)
	default:
		return raw
	}
}

// replaceGuarded replaces every occurrence of old with new, skipping
// positions that already read as new. This keeps the substitution idempotent
// when new has old as a prefix (e.g. "app" → "app5").
func replaceGuarded(s, old, new string) string {
	if old == "" || old == new {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], new) {
			b.WriteString(new)
			i += len(new)
			continue
		}
		if strings.HasPrefix(s[i:], old) {
			b.WriteString(new)
			i += len(old)
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}
