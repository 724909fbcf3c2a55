package transplant

import (
	"bytes"
	"strings"

	"github.com/agentic-research/regraft/internal/pysrc"
)

// targetMember is one class-body entry of the module under construction.
// pre holds the gap bytes (blank lines) between the previous member and this
// one, so untouched Template regions render byte-identical.
type targetMember struct {
	kind    pysrc.MemberKind
	name    string
	isAsync bool
	pre     []byte
	text    []byte
}

// Target is the module under construction: a structural copy of the Template
// with the new identity applied, mutated by member replacement, appending,
// and __init__ route splicing, then rendered to text.
type Target struct {
	prelude           []byte
	header            []byte
	tail              []byte
	templateClassName string
	className         string
	appName           string
	members           []targetMember
	initStatements    int
}

// newTarget copies the Template structurally and applies the planned identity
// (class name in the header, APP_NAME attribute value).
func newTarget(tmpl *pysrc.Module, className, appName string) *Target {
	t := &Target{
		prelude:           tmpl.Prelude,
		header:            tmpl.Header,
		templateClassName: tmpl.ClassName,
		className:         className,
		appName:           appName,
		initStatements:    len(tmpl.InitStatements),
	}

	prevEnd := uint32(len(tmpl.Prelude) + len(tmpl.Header))
	for _, mem := range tmpl.Members {
		t.members = append(t.members, targetMember{
			kind:    mem.Kind,
			name:    mem.Name,
			isAsync: mem.IsAsync,
			pre:     tmpl.Source[prevEnd:mem.StartByte],
			text:    mem.Text,
		})
		prevEnd = mem.EndByte
	}
	t.tail = tmpl.Source[prevEnd:]

	if appMem := tmpl.Member("APP_NAME"); appMem != nil && appMem.Kind == pysrc.AttributeMember {
		q := quoteOf(appMem.ValueText)
		idx := t.index("APP_NAME")
		t.members[idx].text = bytes.Replace(appMem.Text, []byte(appMem.ValueText), []byte(q+appName+q), 1)
	}
	return t
}

// quoteOf returns the quote style of a string literal, defaulting to single
// quotes.
func quoteOf(literal string) string {
	trimmed := strings.TrimLeft(literal, "fFrRbBuU")
	if strings.HasPrefix(trimmed, `"`) {
		return `"`
	}
	return "'"
}

func (t *Target) index(name string) int {
	for i := range t.members {
		if t.members[i].name != "" && t.members[i].name == name {
			return i
		}
	}
	return -1
}

// upsert replaces the same-named member or appends the new one at the end of
// the class body.
func (t *Target) upsert(mem pysrc.Member, text []byte) {
	if i := t.index(mem.Name); i >= 0 {
		t.members[i].kind = mem.Kind
		t.members[i].isAsync = mem.IsAsync
		t.members[i].text = text
		return
	}
	t.members = append(t.members, targetMember{
		kind:    mem.Kind,
		name:    mem.Name,
		isAsync: mem.IsAsync,
		pre:     []byte("\n"),
		text:    text,
	})
}

// setAttribute replaces an existing attribute's text. Returns false when the
// Template has no placeholder for the name.
func (t *Target) setAttribute(name string, text []byte) bool {
	i := t.index(name)
	if i < 0 || t.members[i].kind != pysrc.AttributeMember {
		return false
	}
	t.members[i].text = text
	return true
}

// insertIntoInit splices block into the __init__ member text at rel (an
// offset within the member's text). rel < 0 appends at the end of the body.
// count is the number of statements the block contains.
func (t *Target) insertIntoInit(rel int, block []byte, count int) bool {
	i := t.index("__init__")
	if i < 0 {
		return false
	}
	text := t.members[i].text
	if rel < 0 || rel > len(text) {
		rel = len(text)
	}
	spliced := make([]byte, 0, len(text)+len(block))
	spliced = append(spliced, text[:rel]...)
	spliced = append(spliced, block...)
	spliced = append(spliced, text[rel:]...)
	t.members[i].text = spliced
	t.initStatements += count
	return true
}

// Render produces the output text. Total for any Target this package builds.
func (t *Target) Render() []byte {
	var b bytes.Buffer
	b.Write(t.prelude)
	b.Write(bytes.Replace(t.header, []byte(t.templateClassName), []byte(t.className), 1))
	for _, mem := range t.members {
		b.Write(mem.pre)
		b.Write(mem.text)
		if len(mem.text) > 0 && mem.text[len(mem.text)-1] != '\n' {
			b.WriteByte('\n')
		}
	}
	b.Write(t.tail)
	return b.Bytes()
}

// Shape is the structural fingerprint the rendered output must reparse to.
func (t *Target) Shape() pysrc.Shape {
	s := pysrc.Shape{
		ClassName:      t.className,
		InitStatements: t.initStatements,
	}
	for _, mem := range t.members {
		s.Members = append(s.Members, pysrc.MemberShape{
			Kind:    mem.kind.String(),
			Name:    mem.name,
			IsAsync: mem.isAsync,
		})
	}
	return s
}
