// Package classify partitions a Source module's class body into component
// bundles. The rules are heuristic by design (name prefixes, keyword
// substrings, route-path markers); anything that both matches a workflow rule
// and collides with a Template-owned name is flagged ambiguous instead of
// being resolved silently.
package classify

import (
	"strings"

	"github.com/agentic-research/regraft/api"
	"github.com/agentic-research/regraft/internal/pysrc"
)

// Bundle tags a Source member with its transplantation role.
type Bundle int

const (
	// TemplateOwned members are never transplanted; the Template version is
	// authoritative.
	TemplateOwned Bundle = iota
	// WorkflowSpecific members are grafted into the Target, replacing any
	// same-named placeholder.
	WorkflowSpecific
	// CustomRoute statements are inserted into the Target's __init__ after
	// the last standard route registration.
	CustomRoute
	// OverridableAttribute values replace the Template's placeholder value.
	OverridableAttribute
	// Ambiguous halts assembly; the operator must rename or resolve.
	Ambiguous
)

func (b Bundle) String() string {
	switch b {
	case WorkflowSpecific:
		return "workflow-specific"
	case CustomRoute:
		return "custom-route"
	case OverridableAttribute:
		return "overridable-attribute"
	case Ambiguous:
		return "ambiguous"
	default:
		return "template-owned"
	}
}

// Classified is the outcome of one classification pass over a Source module.
// Slices preserve the member order of the Source.
type Classified struct {
	Workflow     []pysrc.Member
	Overrides    []pysrc.Member
	CustomRoutes []pysrc.Statement
	// AmbiguousNames lists every member that matched a workflow rule while
	// colliding with a Template-owned name. Non-empty means assembly must not
	// proceed.
	AmbiguousNames []string
}

// Classify runs the rule pipeline over src. templateNames holds every named
// member already defined on the Template's class.
func Classify(src *pysrc.Module, templateNames map[string]bool, rules api.RuleSet) Classified {
	var out Classified

	overridable := toSet(rules.OverridableAttributes)

	for _, mem := range src.Members {
		if mem.Name == "" {
			continue // bare statements stay with the Source
		}
		workflow := matchesWorkflowRule(mem.Name, rules)

		switch {
		case mem.Kind == pysrc.MethodMember && templateNames[mem.Name]:
			if workflow {
				// Author clearly intended a workflow override of scaffolding.
				out.AmbiguousNames = append(out.AmbiguousNames, mem.Name)
			}
			// Otherwise template version is authoritative; skip.
		case workflow:
			if templateNames[mem.Name] {
				out.AmbiguousNames = append(out.AmbiguousNames, mem.Name)
				continue
			}
			out.Workflow = append(out.Workflow, mem)
		case mem.Kind == pysrc.AttributeMember && overridable[mem.Name]:
			out.Overrides = append(out.Overrides, mem)
		}
	}

	standard := toSet(rules.StandardRoutes)
	for _, st := range src.InitStatements {
		if !st.IsRoute() {
			continue
		}
		if standard[st.EndpointName] {
			continue
		}
		if !containsAny(st.RoutePath, rules.CustomEndpointMarkers) {
			continue
		}
		if templateNames[st.EndpointName] {
			// Would be a custom route, but the endpoint name is already
			// Template scaffolding.
			out.AmbiguousNames = append(out.AmbiguousNames, st.EndpointName)
			continue
		}
		out.CustomRoutes = append(out.CustomRoutes, st)
	}

	return out
}

// IsStandardRoute reports whether a route statement registers Template
// scaffolding: either a fixed standard endpoint or a handler the Template
// defines itself. The last such statement is the custom-route anchor.
func IsStandardRoute(st pysrc.Statement, templateNames map[string]bool, rules api.RuleSet) bool {
	if !st.IsRoute() {
		return false
	}
	if templateNames[st.EndpointName] {
		return true
	}
	return toSet(rules.StandardRoutes)[st.EndpointName]
}

func matchesWorkflowRule(name string, rules api.RuleSet) bool {
	for _, p := range rules.StepPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	lower := strings.ToLower(name)
	for _, kw := range rules.DomainKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// TemplateNames builds the name set for Classify from a parsed Template.
func TemplateNames(tmpl *pysrc.Module) map[string]bool {
	set := make(map[string]bool)
	for _, mem := range tmpl.Members {
		if mem.Name != "" {
			set[mem.Name] = true
		}
	}
	return set
}
