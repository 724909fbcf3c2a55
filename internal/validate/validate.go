// Package validate checks an assembled module before anything is written:
// the rendered text must re-parse, the reparsed structure must match what the
// assembler intended, and the required class attributes must be present.
package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/agentic-research/regraft/internal/pysrc"
)

// SyntaxErrorAfterGeneration means the rendered output does not parse. This
// is internal-error severity: it indicates a bug in rewriting or insertion,
// not bad operator input.
type SyntaxErrorAfterGeneration struct {
	// LastInserted is a best-effort attribution of the member whose
	// insertion broke the output.
	LastInserted string
	Err          error
}

func (e *SyntaxErrorAfterGeneration) Error() string {
	if e.LastInserted != "" {
		return fmt.Sprintf("generated output does not parse (last inserted member %q): %v", e.LastInserted, e.Err)
	}
	return fmt.Sprintf("generated output does not parse: %v", e.Err)
}

func (e *SyntaxErrorAfterGeneration) Unwrap() error { return e.Err }

// StructuralMismatchError means the reparsed output differs structurally from
// the assembled module. It must never fire for well-formed inputs.
type StructuralMismatchError struct {
	Diff string
}

func (e *StructuralMismatchError) Error() string {
	return fmt.Sprintf("reparsed output differs from assembled module (-want +got):\n%s", e.Diff)
}

// MissingRequiredAttributeError lists required class attributes absent from
// the generated module.
type MissingRequiredAttributeError struct {
	Missing []string
}

func (e *MissingRequiredAttributeError) Error() string {
	return fmt.Sprintf("generated module is missing required attributes: %s", strings.Join(e.Missing, ", "))
}

// Check validates rendered output against the shape the assembler intended
// and the required attribute list. path is used for diagnostics only.
func Check(ctx context.Context, path string, rendered []byte, want pysrc.Shape, required []string, lastInserted string) error {
	reparsed, err := pysrc.Parse(ctx, path, rendered)
	if err != nil {
		return &SyntaxErrorAfterGeneration{LastInserted: lastInserted, Err: err}
	}

	if diff := cmp.Diff(want, reparsed.Shape()); diff != "" {
		return &StructuralMismatchError{Diff: diff}
	}

	var missing []string
	for _, name := range required {
		mem := reparsed.Member(name)
		if mem == nil || mem.Kind != pysrc.AttributeMember {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingRequiredAttributeError{Missing: missing}
	}
	return nil
}
