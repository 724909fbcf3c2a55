// Package transplant assembles a new workflow module: it copies the Template,
// grafts the Source's workflow-specific members and custom routes into the
// copy, applies identifier rewrites to everything transplanted, validates the
// result, and writes it atomically. One invocation is a single synchronous
// batch; no state survives it.
package transplant

import (
	"context"
	"fmt"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"go.uber.org/zap"

	"github.com/agentic-research/regraft/api"
	"github.com/agentic-research/regraft/internal/classify"
	"github.com/agentic-research/regraft/internal/output"
	"github.com/agentic-research/regraft/internal/pysrc"
	"github.com/agentic-research/regraft/internal/rewrite"
	"github.com/agentic-research/regraft/internal/validate"
)

// Engine runs one transplantation per call. Safe to reuse sequentially;
// concurrent invocations targeting the same output path are caller misuse.
type Engine struct {
	fs    billy.Filesystem
	rules api.RuleSet
	log   *zap.Logger
}

// New creates an Engine. A nil logger disables logging.
func New(fs billy.Filesystem, rules api.RuleSet, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{fs: fs, rules: rules, log: log}
}

// Result describes a successful transplantation.
type Result struct {
	Path      string
	ClassName string
	AppName   string
	Warnings  []Warning
}

// Run loads the Template and Source modules, assembles the Target per mode,
// and writes it. Every fatal error returns before any write; the only
// mutation of the destination path is the final atomic rename.
func (e *Engine) Run(ctx context.Context, templatePath, sourcePath string, mode output.Mode) (*Result, error) {
	tmplText, err := util.ReadFile(e.fs, templatePath)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	srcText, err := util.ReadFile(e.fs, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	tmpl, err := pysrc.Parse(ctx, templatePath, tmplText)
	if err != nil {
		return nil, err
	}
	src, err := pysrc.Parse(ctx, sourcePath, srcText)
	if err != nil {
		return nil, err
	}

	plan, err := output.Resolve(mode, output.Identity{
		Path:      sourcePath,
		ClassName: src.ClassName,
		AppName:   src.AppName,
	})
	if err != nil {
		return nil, err
	}

	names := classify.TemplateNames(tmpl)
	classified := classify.Classify(src, names, e.rules)
	if len(classified.AmbiguousNames) > 0 {
		return nil, &AmbiguousClassificationError{Names: classified.AmbiguousNames}
	}

	e.log.Debug("classified source",
		zap.String("source", sourcePath),
		zap.Int("workflow", len(classified.Workflow)),
		zap.Int("overrides", len(classified.Overrides)),
		zap.Int("custom_routes", len(classified.CustomRoutes)))

	target := newTarget(tmpl, plan.ClassName, plan.AppName)
	rm := rewrite.NewMap(src.ClassName, plan.ClassName, src.AppName, plan.AppName)

	var warnings []Warning
	lastInserted := ""

	for _, mem := range classified.Workflow {
		target.upsert(mem, rm.Apply(src, mem.StartByte, mem.EndByte, mem.Text))
		lastInserted = mem.Name
		e.log.Debug("transplanted member", zap.String("name", mem.Name))
	}

	for _, mem := range classified.Overrides {
		if !target.setAttribute(mem.Name, rm.Apply(src, mem.StartByte, mem.EndByte, mem.Text)) {
			warnings = append(warnings, Warning{
				Kind:    WarnMissingOverridePlaceholder,
				Message: fmt.Sprintf("template has no %s placeholder; override skipped", mem.Name),
			})
			continue
		}
		lastInserted = mem.Name
	}

	if len(classified.CustomRoutes) > 0 {
		rel, found := anchorOffset(tmpl, names, e.rules)
		var block []byte
		endpoints := make([]string, 0, len(classified.CustomRoutes))
		for _, st := range classified.CustomRoutes {
			block = append(block, rm.Apply(src, st.StartByte, st.EndByte, st.Text)...)
			endpoints = append(endpoints, st.EndpointName)
			lastInserted = st.EndpointName
		}
		switch {
		case !target.insertIntoInit(rel, block, len(classified.CustomRoutes)):
			warnings = append(warnings, Warning{
				Kind:    WarnUnresolvedRouteInsertionPoint,
				Message: fmt.Sprintf("template has no __init__; custom routes dropped: %s", strings.Join(endpoints, ", ")),
			})
		case !found:
			warnings = append(warnings, Warning{
				Kind:    WarnUnresolvedRouteInsertionPoint,
				Message: "no standard route registration found in template __init__; custom routes appended at the end",
			})
		}
	}

	rendered := target.Render()
	if err := validate.Check(ctx, plan.Path, rendered, target.Shape(), e.rules.RequiredAttributes, lastInserted); err != nil {
		return nil, err
	}

	if err := output.Write(e.fs, plan.Path, rendered); err != nil {
		return nil, fmt.Errorf("write target: %w", err)
	}

	e.log.Info("wrote target module",
		zap.String("path", plan.Path),
		zap.String("class", plan.ClassName),
		zap.String("app", plan.AppName))

	return &Result{
		Path:      plan.Path,
		ClassName: plan.ClassName,
		AppName:   plan.AppName,
		Warnings:  warnings,
	}, nil
}

// anchorOffset locates the insertion point for custom routes: the offset just
// past the last standard route registration, relative to the Template's
// __init__ member text. found is false when no anchor exists; the returned
// offset then means "append at the end".
func anchorOffset(tmpl *pysrc.Module, templateNames map[string]bool, rules api.RuleSet) (rel int, found bool) {
	initMem := tmpl.Member("__init__")
	if initMem == nil {
		return -1, false
	}
	rel = -1
	for _, st := range tmpl.InitStatements {
		if classify.IsStandardRoute(st, templateNames, rules) {
			rel = int(st.EndByte - initMem.StartByte)
			found = true
		}
	}
	return rel, found
}
