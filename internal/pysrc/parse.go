package pysrc

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ParseError reports invalid Python input.
type ParseError struct {
	Path    string
	Line    uint32 // 0-indexed
	Column  uint32 // 0-indexed
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line+1, e.Column+1, e.Message)
}

// Parse converts Python source into a Module. It fails with *ParseError when
// the source has syntax errors or does not contain a top-level class.
func Parse(ctx context.Context, path string, src []byte) (*Module, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, &ParseError{Path: path, Message: fmt.Sprintf("tree-sitter parse failed: %v", err)}
	}
	root := tree.RootNode()
	if root == nil {
		return nil, &ParseError{Path: path, Message: "tree-sitter returned nil root"}
	}
	if root.HasError() {
		if errNode := findFirstError(root); errNode != nil {
			return nil, &ParseError{
				Path:    path,
				Line:    errNode.StartPoint().Row,
				Column:  errNode.StartPoint().Column,
				Message: "syntax error",
			}
		}
		return nil, &ParseError{Path: path, Message: "AST contains errors"}
	}

	cls, outer := findClass(root)
	if cls == nil {
		return nil, &ParseError{Path: path, Message: "no top-level class definition"}
	}

	nameNode := cls.ChildByFieldName("name")
	body := cls.ChildByFieldName("body")
	if nameNode == nil || body == nil || body.NamedChildCount() == 0 {
		return nil, &ParseError{Path: path, Message: "class definition has no body"}
	}

	m := &Module{
		Path:      path,
		Source:    src,
		ClassName: nameNode.Content(src),
	}

	headerStart := lineStart(src, outer.StartByte())

	// A leading docstring stays part of the header so member classification
	// never sees it.
	firstMember := 0
	if first := body.NamedChild(0); isDocstring(first) && body.NamedChildCount() > 1 {
		firstMember = 1
	}
	headerEnd := lineStart(src, body.NamedChild(firstMember).StartByte())

	m.Prelude = src[:headerStart]
	m.Header = src[headerStart:headerEnd]

	for i := firstMember; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		mem := buildMember(src, child)
		m.Members = append(m.Members, mem)
		if mem.Kind == MethodMember && mem.Name == "__init__" {
			m.InitStatements = initStatements(src, child)
		}
		if mem.Kind == AttributeMember && mem.Name == "APP_NAME" {
			m.AppName = StripStringLiteral(mem.ValueText)
		}
	}

	collectSpans(root, &m.spans)
	return m, nil
}

// findClass locates the first module-level class definition. The returned
// outer node includes decorators when the class is decorated.
func findClass(root *sitter.Node) (cls, outer *sitter.Node) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "class_definition":
			return child, child
		case "decorated_definition":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if inner := child.NamedChild(j); inner.Type() == "class_definition" {
					return inner, child
				}
			}
		}
	}
	return nil, nil
}

func buildMember(src []byte, node *sitter.Node) Member {
	start := lineStart(src, node.StartByte())
	end := lineEnd(src, node.EndByte())
	mem := Member{
		Kind:      StatementMember,
		StartByte: start,
		EndByte:   end,
		Text:      src[start:end],
	}

	def := node
	if node.Type() == "decorated_definition" {
		for j := 0; j < int(node.NamedChildCount()); j++ {
			if inner := node.NamedChild(j); inner.Type() == "function_definition" {
				def = inner
				break
			}
		}
	}

	switch {
	case def.Type() == "function_definition":
		mem.Kind = MethodMember
		if name := def.ChildByFieldName("name"); name != nil {
			mem.Name = name.Content(src)
		}
		mem.IsAsync = bytes.HasPrefix(src[def.StartByte():], []byte("async "))

	case node.Type() == "expression_statement":
		if assign := namedChildOfType(node, "assignment"); assign != nil {
			left := assign.ChildByFieldName("left")
			right := assign.ChildByFieldName("right")
			if left != nil && left.Type() == "identifier" && right != nil {
				mem.Kind = AttributeMember
				mem.Name = left.Content(src)
				mem.ValueText = right.Content(src)
			}
		}
	}
	return mem
}

// initStatements extracts the __init__ body, one Statement per top-level
// statement, with route paths resolved for .route(...) registrations.
func initStatements(src []byte, node *sitter.Node) []Statement {
	def := node
	if node.Type() == "decorated_definition" {
		if inner := namedChildOfType(node, "function_definition"); inner != nil {
			def = inner
		}
	}
	body := def.ChildByFieldName("body")
	if body == nil {
		return nil
	}

	stmts := make([]Statement, 0, body.NamedChildCount())
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		start := lineStart(src, child.StartByte())
		end := lineEnd(src, child.EndByte())
		st := Statement{
			StartByte: start,
			EndByte:   end,
			Text:      src[start:end],
		}
		if path, ok := routePath(src, child); ok {
			st.RoutePath = path
			st.EndpointName = lastSegment(path)
		}
		stmts = append(stmts, st)
	}
	return stmts
}

// routePath finds a call whose callee is <expr>.route and returns its first
// string argument.
func routePath(src []byte, node *sitter.Node) (string, bool) {
	if node.Type() == "call" {
		fn := node.ChildByFieldName("function")
		if fn != nil && fn.Type() == "attribute" {
			if attr := fn.ChildByFieldName("attribute"); attr != nil && attr.Content(src) == "route" {
				if args := node.ChildByFieldName("arguments"); args != nil {
					if str := namedChildOfType(args, "string"); str != nil {
						return StripStringLiteral(str.Content(src)), true
					}
				}
			}
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if path, ok := routePath(src, node.NamedChild(i)); ok {
			return path, ok
		}
	}
	return "", false
}

func namedChildOfType(node *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == typ {
			return child
		}
	}
	return nil
}

func isDocstring(node *sitter.Node) bool {
	return node != nil &&
		node.Type() == "expression_statement" &&
		node.NamedChildCount() == 1 &&
		node.NamedChild(0).Type() == "string"
}

// collectSpans gathers identifier and string nodes for the rewriter. A string
// node yields one StringSpan for the whole literal; inside f-strings, the
// interpolation expressions are descended into so their identifiers get
// IdentSpans of their own, nested within the literal's span.
func collectSpans(node *sitter.Node, spans *[]Span) {
	switch node.Type() {
	case "identifier":
		*spans = append(*spans, Span{Kind: IdentSpan, Start: node.StartByte(), End: node.EndByte()})
		return
	case "string":
		*spans = append(*spans, Span{Kind: StringSpan, Start: node.StartByte(), End: node.EndByte()})
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if child := node.NamedChild(i); child.Type() == "interpolation" {
				collectSpans(child, spans)
			}
		}
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		collectSpans(node.NamedChild(i), spans)
	}
}

// findFirstError does a depth-first search for the first ERROR node.
func findFirstError(node *sitter.Node) *sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.HasError() || child.IsError() || child.IsMissing() {
			if found := findFirstError(child); found != nil {
				return found
			}
		}
	}
	return nil
}

// StripStringLiteral removes the prefix letters and quotes from a Python
// string literal. Non-literal input comes back unchanged.
func StripStringLiteral(raw string) string {
	s := strings.TrimLeft(raw, "fFrRbBuU")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return raw
}

func lastSegment(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return ""
	}
	parts := strings.Split(trimmed, "/")
	return parts[len(parts)-1]
}

func lineStart(src []byte, offset uint32) uint32 {
	i := int(offset)
	if i > len(src) {
		i = len(src)
	}
	for i > 0 && src[i-1] != '\n' {
		i--
	}
	return uint32(i)
}

// lineEnd returns the offset just past the newline that terminates the line
// containing offset-1.
func lineEnd(src []byte, offset uint32) uint32 {
	i := int(offset)
	for i < len(src) && src[i] != '\n' {
		i++
	}
	if i < len(src) {
		i++ // include the newline
	}
	return uint32(i)
}
