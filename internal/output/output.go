// Package output resolves the target path/class/app identity from the
// selected output mode and performs the atomic write. The destination is only
// ever mutated by a rename, so a reader can never observe a partial file.
package output

import (
	"fmt"
	"path/filepath"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// ModeKind enumerates the output strategies.
type ModeKind int

const (
	// Suffixed derives path, class name and app name by appending a suffix
	// to the Source's. Intended for disposable, collision-free variants.
	Suffixed ModeKind = iota
	// NamedVariant takes all three names explicitly; produces a net-new
	// permanent module.
	NamedVariant
	// InPlace overwrites the Source path, preserving version-control history.
	InPlace
)

// Mode selects how the target identity is derived.
type Mode struct {
	Kind ModeKind

	// Suffix applies in Suffixed mode.
	Suffix string

	// Basename, ClassName and AppName apply in NamedVariant mode. ClassName
	// and AppName fall back to the Source's when empty.
	Basename  string
	ClassName string
	AppName   string
}

// SuffixedMode returns a Suffixed mode.
func SuffixedMode(suffix string) Mode { return Mode{Kind: Suffixed, Suffix: suffix} }

// NamedVariantMode returns a NamedVariant mode.
func NamedVariantMode(basename, className, appName string) Mode {
	return Mode{Kind: NamedVariant, Basename: basename, ClassName: className, AppName: appName}
}

// InPlaceMode returns an InPlace mode.
func InPlaceMode() Mode { return Mode{Kind: InPlace} }

// Identity is the Source module's identity triple.
type Identity struct {
	Path      string
	ClassName string
	AppName   string
}

// Plan is the resolved target identity.
type Plan struct {
	Path      string
	ClassName string
	AppName   string
}

// Resolve computes the target plan for a mode applied to a source identity.
func Resolve(mode Mode, src Identity) (Plan, error) {
	dir := filepath.Dir(src.Path)
	ext := filepath.Ext(src.Path)
	base := strings.TrimSuffix(filepath.Base(src.Path), ext)

	switch mode.Kind {
	case Suffixed:
		if mode.Suffix == "" {
			return Plan{}, fmt.Errorf("suffixed mode requires a non-empty suffix")
		}
		return Plan{
			Path:      filepath.Join(dir, base+mode.Suffix+ext),
			ClassName: src.ClassName + mode.Suffix,
			AppName:   src.AppName + mode.Suffix,
		}, nil

	case NamedVariant:
		if mode.Basename == "" {
			return Plan{}, fmt.Errorf("named-variant mode requires a basename")
		}
		plan := Plan{
			Path:      filepath.Join(dir, mode.Basename+ext),
			ClassName: mode.ClassName,
			AppName:   mode.AppName,
		}
		if plan.ClassName == "" {
			plan.ClassName = src.ClassName
		}
		if plan.AppName == "" {
			plan.AppName = src.AppName
		}
		return plan, nil

	case InPlace:
		return Plan{Path: src.Path, ClassName: src.ClassName, AppName: src.AppName}, nil

	default:
		return Plan{}, fmt.Errorf("unknown output mode %d", mode.Kind)
	}
}

// Write persists data at path atomically: a temp file in the same directory
// is written, closed, then renamed over the destination.
func Write(fs billy.Filesystem, path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := util.TempFile(fs, dir, ".regraft-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("close temp: %w", err)
	}

	if err := fs.Rename(tmpName, path); err != nil {
		_ = fs.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("rename temp to %s: %w", path, err)
	}
	return nil
}
