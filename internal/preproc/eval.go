package preproc

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/macroindex/internal/parse"
)

// value is the result of evaluating a preprocessor condition. An unknown
// value means the condition could not be decided and every branch is walked.
type value struct {
	n     int64
	known bool
}

var unknown = value{}

func known(n int64) value { return value{n: n, known: true} }

func truth(b bool) value {
	if b {
		return known(1)
	}
	return known(0)
}

func (v value) isTrue() bool  { return v.known && v.n != 0 }
func (v value) isFalse() bool { return v.known && v.n == 0 }

// eval evaluates a condition node. Every defined operator and macro name in
// the expression is reported, including operands a short-circuit would skip.
func (w *walker) eval(node *sitter.Node) value {
	if node == nil {
		return unknown
	}
	switch node.Type() {
	case "number_literal":
		return parseInt(parse.NodeText(node, w.src))
	case "char_literal":
		return parseChar(parse.NodeText(node, w.src))
	case "true":
		return known(1)
	case "false":
		return known(0)
	case "identifier":
		return w.evalIdentifier(node)
	case "preproc_defined":
		return w.evalDefined(node)
	case "parenthesized_expression":
		inner := parse.BodyChildren(node)
		if len(inner) != 1 {
			w.scan(node)
			return unknown
		}
		return w.eval(inner[0])
	case "unary_expression":
		return w.evalUnary(node)
	case "binary_expression":
		return w.evalBinary(node)
	case "conditional_expression":
		cond := w.eval(node.ChildByFieldName("condition"))
		then := w.eval(node.ChildByFieldName("consequence"))
		els := w.eval(node.ChildByFieldName("alternative"))
		switch {
		case cond.isTrue():
			return then
		case cond.isFalse():
			return els
		}
		return unknown
	case "call_expression":
		w.evalCall(node)
		return unknown
	}
	w.scan(node)
	return unknown
}

func (w *walker) evalIdentifier(node *sitter.Node) value {
	name := parse.NodeText(node, w.src)
	def := w.hist.Lookup(name)
	if !def.IsDefined() {
		return known(0)
	}
	if def.Info.FunctionLike {
		return unknown
	}
	w.expands(node, def)
	return parseInt(def.Info.Value)
}

func (w *walker) evalDefined(node *sitter.Node) value {
	var ident *sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == "identifier" {
			ident = child
			break
		}
	}
	if ident == nil {
		return unknown
	}
	tok := w.token(ident)
	def := w.hist.Lookup(tok.Name)
	w.cb.Defined(tok, def)
	return truth(def.IsDefined())
}

func (w *walker) evalCall(node *sitter.Node) {
	fn := node.ChildByFieldName("function")
	if fn != nil && fn.Type() == "identifier" {
		def := w.hist.Lookup(parse.NodeText(fn, w.src))
		if def.IsDefined() && def.Info.FunctionLike {
			w.expands(fn, def)
		}
	}
	if args := node.ChildByFieldName("arguments"); args != nil {
		w.scan(args)
	}
}

func (w *walker) evalUnary(node *sitter.Node) value {
	op := node.ChildByFieldName("operator")
	v := w.eval(node.ChildByFieldName("argument"))
	if op == nil || !v.known {
		return unknown
	}
	switch parse.NodeText(op, w.src) {
	case "!":
		return truth(v.n == 0)
	case "-":
		return known(-v.n)
	case "+":
		return v
	case "~":
		return known(^v.n)
	}
	return unknown
}

func (w *walker) evalBinary(node *sitter.Node) value {
	op := node.ChildByFieldName("operator")
	l := w.eval(node.ChildByFieldName("left"))
	r := w.eval(node.ChildByFieldName("right"))
	if op == nil {
		return unknown
	}
	switch o := parse.NodeText(op, w.src); o {
	case "&&":
		switch {
		case l.isFalse() || r.isFalse():
			return known(0)
		case l.isTrue() && r.isTrue():
			return known(1)
		}
		return unknown
	case "||":
		switch {
		case l.isTrue() || r.isTrue():
			return known(1)
		case l.isFalse() && r.isFalse():
			return known(0)
		}
		return unknown
	default:
		if !l.known || !r.known {
			return unknown
		}
		return arith(o, l.n, r.n)
	}
}

func arith(op string, a, b int64) value {
	switch op {
	case "+":
		return known(a + b)
	case "-":
		return known(a - b)
	case "*":
		return known(a * b)
	case "/":
		if b == 0 {
			return unknown
		}
		return known(a / b)
	case "%":
		if b == 0 {
			return unknown
		}
		return known(a % b)
	case "<<":
		if b < 0 || b > 63 {
			return unknown
		}
		return known(a << b)
	case ">>":
		if b < 0 || b > 63 {
			return unknown
		}
		return known(a >> b)
	case "<":
		return truth(a < b)
	case ">":
		return truth(a > b)
	case "<=":
		return truth(a <= b)
	case ">=":
		return truth(a >= b)
	case "==":
		return truth(a == b)
	case "!=":
		return truth(a != b)
	case "&":
		return known(a & b)
	case "|":
		return known(a | b)
	case "^":
		return known(a ^ b)
	}
	return unknown
}

// parseInt parses a C integer literal, ignoring u/l suffixes.
func parseInt(s string) value {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "uUlL")
	if s == "" {
		return unknown
	}
	if len(s) > 1 && s[0] == '0' && s[1] >= '0' && s[1] <= '9' {
		s = "0o" + s[1:]
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(s, "'", ""), 0, 64)
	if err != nil {
		u, uerr := strconv.ParseUint(s, 0, 64)
		if uerr != nil {
			return unknown
		}
		n = int64(u)
	}
	return known(n)
}

func parseChar(s string) value {
	if len(s) == 3 && s[0] == '\'' && s[2] == '\'' {
		return known(int64(s[1]))
	}
	return unknown
}

// scan reports macro names and defined operators below node without
// evaluating it.
func (w *walker) scan(node *sitter.Node) {
	switch node.Type() {
	case "identifier":
		w.evalIdentifier(node)
		return
	case "preproc_defined":
		w.evalDefined(node)
		return
	case "call_expression":
		w.evalCall(node)
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.scan(node.NamedChild(i))
	}
}
