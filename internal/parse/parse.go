// Package parse wraps tree-sitter parsing of C and C++ files and the
// node helpers the preprocessing front-end needs.
package parse

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/macroindex/internal/model"
)

// ErrEmpty is returned for a file without content.
var ErrEmpty = errors.New("parse: empty source")

// Parse parses source with parser. The caller must Close the tree.
func Parse(ctx context.Context, parser *sitter.Parser, source []byte) (*sitter.Tree, error) {
	if len(source) == 0 {
		return nil, ErrEmpty
	}
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	return tree, nil
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// Pos returns the 1-based position of node's start in file.
func Pos(file string, node *sitter.Node) model.Position {
	p := node.StartPoint()
	return model.Position{
		File:   file,
		Offset: int(node.StartByte()),
		Line:   int(p.Row) + 1,
		Column: int(p.Column) + 1,
	}
}

// SameNode reports whether a and b span the same bytes with the same type.
func SameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// BodyChildren returns the named children of node that are not bound to one
// of the given fields and are not comments.
func BodyChildren(node *sitter.Node, skipFields ...string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil || !child.IsNamed() || child.Type() == "comment" {
			continue
		}
		if f := node.FieldNameForChild(i); f != "" && contains(skipFields, f) {
			continue
		}
		out = append(out, child)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// HeaderGuard returns the macro guarding the whole file, or "" when the file
// is not guarded. A guard is a single top-level #ifndef X or #if !defined(X)
// without an #else whose first directive is #define X. Comments may appear
// anywhere.
func HeaderGuard(query *sitter.Query, root *sitter.Node, source []byte) string {
	top := BodyChildren(root)
	if len(top) != 1 {
		return ""
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, root)

	for {
		match, ok := qc.NextMatch()
		if !ok {
			return ""
		}
		var block, name, cond *sitter.Node
		for _, c := range match.Captures {
			switch query.CaptureNameForId(c.Index) {
			case "guard":
				block = c.Node
			case "guard.name":
				name = c.Node
			case "guard.condition":
				cond = c.Node
			}
		}
		if block == nil || !SameNode(block, top[0]) {
			continue
		}
		if block.ChildByFieldName("alternative") != nil {
			return ""
		}

		var guard string
		switch {
		case name != nil:
			if block.ChildCount() == 0 || block.Child(0).Type() != "#ifndef" {
				return ""
			}
			guard = NodeText(name, source)
		case cond != nil:
			guard = negatedDefined(cond, source)
		}
		if guard == "" {
			return ""
		}

		body := BodyChildren(block, "name", "condition", "alternative")
		if len(body) == 0 || body[0].Type() != "preproc_def" {
			return ""
		}
		defName := body[0].ChildByFieldName("name")
		if defName == nil || NodeText(defName, source) != guard {
			return ""
		}
		return guard
	}
}

// negatedDefined returns X for a condition of the form !defined X or
// !defined(X), possibly parenthesized.
func negatedDefined(cond *sitter.Node, source []byte) string {
	cond = Unparen(cond)
	if cond.Type() != "unary_expression" {
		return ""
	}
	op := cond.ChildByFieldName("operator")
	if op == nil || NodeText(op, source) != "!" {
		return ""
	}
	arg := cond.ChildByFieldName("argument")
	if arg == nil {
		return ""
	}
	arg = Unparen(arg)
	if arg.Type() != "preproc_defined" {
		return ""
	}
	return DefinedName(arg, source)
}

// DefinedName returns the identifier tested by a preproc_defined node.
func DefinedName(node *sitter.Node, source []byte) string {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == "identifier" {
			return NodeText(child, source)
		}
	}
	return ""
}

// Unparen strips parenthesized_expression wrappers.
func Unparen(node *sitter.Node) *sitter.Node {
	for node != nil && node.Type() == "parenthesized_expression" {
		inner := BodyChildren(node)
		if len(inner) != 1 {
			return node
		}
		node = inner[0]
	}
	return node
}
