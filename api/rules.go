package api

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// RuleSet is the classification and validation configuration for the
// transplantation engine. Every field has a working default; an HCL rules
// file overrides individual fields.
type RuleSet struct {
	// StepPrefixes marks a member as workflow-specific when its name starts
	// with one of these prefixes.
	StepPrefixes []string `hcl:"step_prefixes,optional" json:"step_prefixes"`
	// DomainKeywords marks a member as workflow-specific when its name
	// contains one of these substrings (case-insensitive).
	DomainKeywords []string `hcl:"domain_keywords,optional" json:"domain_keywords"`
	// CustomEndpointMarkers identify route paths that belong to the workflow
	// rather than the template scaffolding.
	CustomEndpointMarkers []string `hcl:"custom_endpoint_markers,optional" json:"custom_endpoint_markers"`
	// StandardRoutes are endpoint names the template always registers. The
	// last registration of one of these is the custom-route insertion anchor.
	StandardRoutes []string `hcl:"standard_routes,optional" json:"standard_routes"`
	// OverridableAttributes are class attributes whose Source value replaces
	// the Template placeholder.
	OverridableAttributes []string `hcl:"overridable_attributes,optional" json:"overridable_attributes"`
	// RequiredAttributes must exist on the generated class.
	RequiredAttributes []string `hcl:"required_attributes,optional" json:"required_attributes"`
}

// DefaultRuleSet returns the conventions used by stock workflow plugins.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		StepPrefixes:          []string{"step_"},
		CustomEndpointMarkers: []string{"_process", "_download", "_preview"},
		StandardRoutes:        []string{"init", "revert", "finalize", "unfinalize"},
		OverridableAttributes: []string{"TRAINING_PROMPT", "ENDPOINT_MESSAGE", "QUERY_TEMPLATES", "UI_CONSTANTS"},
		RequiredAttributes:    []string{"APP_NAME", "DISPLAY_NAME", "QUERY_TEMPLATES", "ROLES"},
	}
}

// LoadRuleSet reads an HCL rules file and overlays it on the defaults.
// Fields absent from the file keep their default values.
func LoadRuleSet(path string) (RuleSet, error) {
	rs := RuleSet{}
	if err := hclsimple.DecodeFile(path, nil, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("decode rules %s: %w", path, err)
	}
	defaults := DefaultRuleSet()
	if rs.StepPrefixes == nil {
		rs.StepPrefixes = defaults.StepPrefixes
	}
	if rs.DomainKeywords == nil {
		rs.DomainKeywords = defaults.DomainKeywords
	}
	if rs.CustomEndpointMarkers == nil {
		rs.CustomEndpointMarkers = defaults.CustomEndpointMarkers
	}
	if rs.StandardRoutes == nil {
		rs.StandardRoutes = defaults.StandardRoutes
	}
	if rs.OverridableAttributes == nil {
		rs.OverridableAttributes = defaults.OverridableAttributes
	}
	if rs.RequiredAttributes == nil {
		rs.RequiredAttributes = defaults.RequiredAttributes
	}
	return rs, nil
}
