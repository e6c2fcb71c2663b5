// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package expr evaluates the boolean visibility expressions attached to form
// parameters.
//
// # Grammar
//
//	expr     := or
//	or       := and ("||" and)*
//	and      := equality ("&&" equality)*
//	equality := relation (("===" | "!==" | "==" | "!=") relation)*
//	relation := unary (("<" | "<=" | ">" | ">=") unary)*
//	unary    := ("!" | "-") unary | primary
//	primary  := number | string | "true" | "false" | "null" | "undefined"
//	          | identifier | "(" expr ")"
//
// Identifiers resolve against the sibling values of the form. A name
// without a value resolves to Undefined, so evaluation never fails once an
// expression compiled. Operators follow script semantics: "&&" and "||"
// yield one of their operands, "==" coerces, "===" does not.
//
// Nothing else is executable. There are no calls, assignments or member
// accesses.
package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// undefinedValue is the type of Undefined.
type undefinedValue struct{}

func (undefinedValue) String() string { return "undefined" }

// Undefined is the value of a missing identifier.
var Undefined any = undefinedValue{}

// Program is a compiled expression. It is immutable and safe for
// concurrent use.
type Program struct {
	src  string
	root node
}

// Compile parses src.
//
// # Outputs
//
//   - *Program: The compiled expression.
//   - error: *SyntaxError if src is not a valid expression.
func Compile(src string) (*Program, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.errorf(tok, "unexpected %q", tok.text)
	}
	return &Program{src: src, root: root}, nil
}

// Source returns the expression text.
func (p *Program) Source() string { return p.src }

// Eval evaluates the expression with vars bound by name.
func (p *Program) Eval(vars map[string]any) any {
	return p.root.eval(vars)
}

// Test evaluates the expression and applies truthiness to the result.
func (p *Program) Test(vars map[string]any) bool {
	return Truthy(p.Eval(vars))
}

// SyntaxError reports an expression that does not compile.
type SyntaxError struct {
	Source string
	Pos    int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("expression %q at %d: %s", e.Source, e.Pos, e.Msg)
}

// =============================================================================
// Values
// =============================================================================

// normalize maps Go numeric types onto float64 and nil onto null.
func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	}
	return v
}

// Truthy applies script truthiness: undefined, null, false, 0, NaN and ""
// are false; everything else is true.
func Truthy(v any) bool {
	switch t := normalize(v).(type) {
	case nil, undefinedValue:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	default:
		return true
	}
}

func toNumber(v any) float64 {
	switch t := normalize(v).(type) {
	case nil:
		return 0
	case undefinedValue:
		return math.NaN()
	case bool:
		if t {
			return 1
		}
		return 0
	case float64:
		return t
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case nil, undefinedValue, bool, float64, string:
		return true
	}
	return false
}

func strictEqual(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if !isPrimitive(a) || !isPrimitive(b) {
		return false
	}
	switch at := a.(type) {
	case float64:
		bt, ok := b.(float64)
		return ok && at == bt
	default:
		return a == b
	}
}

func looseEqual(a, b any) bool {
	a, b = normalize(a), normalize(b)
	aNullish := a == nil || a == Undefined
	bNullish := b == nil || b == Undefined
	if aNullish || bNullish {
		return aNullish && bNullish
	}
	if !isPrimitive(a) || !isPrimitive(b) {
		return false
	}
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return as == bs
	}
	return toNumber(a) == toNumber(b)
}

func compare(op string, a, b any) bool {
	a, b = normalize(a), normalize(b)
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		switch op {
		case "<":
			return as < bs
		case "<=":
			return as <= bs
		case ">":
			return as > bs
		default:
			return as >= bs
		}
	}
	x, y := toNumber(a), toNumber(b)
	if math.IsNaN(x) || math.IsNaN(y) {
		return false
	}
	switch op {
	case "<":
		return x < y
	case "<=":
		return x <= y
	case ">":
		return x > y
	default:
		return x >= y
	}
}

// =============================================================================
// AST
// =============================================================================

type node interface {
	eval(vars map[string]any) any
}

type literal struct{ value any }

func (n literal) eval(map[string]any) any { return n.value }

type ident struct{ name string }

func (n ident) eval(vars map[string]any) any {
	v, ok := vars[n.name]
	if !ok {
		return Undefined
	}
	return normalize(v)
}

type unary struct {
	op      string
	operand node
}

func (n unary) eval(vars map[string]any) any {
	v := n.operand.eval(vars)
	if n.op == "!" {
		return !Truthy(v)
	}
	return -toNumber(v)
}

type binary struct {
	op          string
	left, right node
}

func (n binary) eval(vars map[string]any) any {
	switch n.op {
	case "&&":
		l := n.left.eval(vars)
		if !Truthy(l) {
			return l
		}
		return n.right.eval(vars)
	case "||":
		l := n.left.eval(vars)
		if Truthy(l) {
			return l
		}
		return n.right.eval(vars)
	}

	l, r := n.left.eval(vars), n.right.eval(vars)
	switch n.op {
	case "===":
		return strictEqual(l, r)
	case "!==":
		return !strictEqual(l, r)
	case "==":
		return looseEqual(l, r)
	case "!=":
		return !looseEqual(l, r)
	default:
		return compare(n.op, l, r)
	}
}
