// Package pysrc parses Python workflow plugin modules with tree-sitter and
// exposes them as byte-range-backed structures. A plugin module is an import
// prelude followed by a single top-level class; the class body members and
// the __init__ statements are the units the transplantation engine moves
// around. All member text is kept as raw source slices so that untouched
// members render byte-identical to their origin.
package pysrc

// MemberKind discriminates class-body members.
type MemberKind int

const (
	// MethodMember is a def/async def, decorators included.
	MethodMember MemberKind = iota
	// AttributeMember is a NAME = <expr> class attribute.
	AttributeMember
	// StatementMember is any other class-body statement (kept verbatim).
	StatementMember
)

func (k MemberKind) String() string {
	switch k {
	case MethodMember:
		return "method"
	case AttributeMember:
		return "attribute"
	default:
		return "statement"
	}
}

// Member is one entry of the class body. Text spans from the start of the
// member's first line (decorators included) through the newline that ends it.
type Member struct {
	Kind    MemberKind
	Name    string // empty for StatementMember
	IsAsync bool
	// ValueText is the right-hand side source for AttributeMember.
	ValueText string
	// StartByte/EndByte delimit Text within the module source.
	StartByte uint32
	EndByte   uint32
	Text      []byte
}

// Statement is one statement of the __init__ body. Route-registration calls
// carry the registered path; everything else has RoutePath == "".
type Statement struct {
	StartByte uint32
	EndByte   uint32
	Text      []byte
	// RoutePath is the first string argument of a .route(...) call, quotes
	// and f-prefix stripped (interpolations kept literally, e.g. "{app_name}").
	RoutePath string
	// EndpointName is the last segment of RoutePath.
	EndpointName string
}

// IsRoute reports whether the statement registers a route.
func (s Statement) IsRoute() bool { return s.RoutePath != "" }

// Module is a parsed plugin file. Immutable once parsed.
type Module struct {
	Path      string
	Source    []byte
	ClassName string
	// AppName is the APP_NAME attribute's literal value ("" if absent).
	AppName string
	// Prelude covers everything before the class definition line.
	Prelude []byte
	// Header covers the class definition line (and docstring, if any).
	Header []byte
	// Members are the class-body entries in source order.
	Members []Member
	// InitStatements are the __init__ body statements in source order
	// (nil when the class has no __init__).
	InitStatements []Statement

	spans []Span
}

// Member returns the named member, or nil.
func (m *Module) Member(name string) *Member {
	for i := range m.Members {
		if m.Members[i].Name != "" && m.Members[i].Name == name {
			return &m.Members[i]
		}
	}
	return nil
}

// MethodNames returns the names of all MethodMembers in source order.
func (m *Module) MethodNames() []string {
	var names []string
	for _, mem := range m.Members {
		if mem.Kind == MethodMember {
			names = append(names, mem.Name)
		}
	}
	return names
}

// SpanKind distinguishes the node categories the rewriter may touch.
type SpanKind int

const (
	// IdentSpan is an identifier node.
	IdentSpan SpanKind = iota
	// StringSpan is a string literal node, quotes included.
	StringSpan
)

// Span is the byte range of a rewritable node within Module.Source.
type Span struct {
	Kind  SpanKind
	Start uint32
	End   uint32
}

// SpansWithin returns identifier and string spans fully contained in
// [start, end), in ascending source order.
func (m *Module) SpansWithin(start, end uint32) []Span {
	var out []Span
	for _, s := range m.spans {
		if s.Start >= start && s.End <= end {
			out = append(out, s)
		}
	}
	return out
}
