package pysrc

// MemberShape is the structural identity of one class-body member.
type MemberShape struct {
	Kind    string
	Name    string
	IsAsync bool
}

// Shape is the structural fingerprint of a module: class name, ordered member
// identities, and the __init__ statement count. Two modules with equal shapes
// are structurally equivalent for the transplanter's purposes.
type Shape struct {
	ClassName      string
	Members        []MemberShape
	InitStatements int
}

// Shape computes the module's structural fingerprint.
func (m *Module) Shape() Shape {
	s := Shape{
		ClassName:      m.ClassName,
		InitStatements: len(m.InitStatements),
	}
	for _, mem := range m.Members {
		s.Members = append(s.Members, MemberShape{
			Kind:    mem.Kind.String(),
			Name:    mem.Name,
			IsAsync: mem.IsAsync,
		})
	}
	return s
}
