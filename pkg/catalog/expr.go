/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Expr is a parsed offset expression. Expressions are parsed once when the
// definitions are loaded and evaluated against the offsets resolved so far.
type Expr interface {
	Eval(lookup func(name string) (int, bool)) (int, error)
	String() string
}

type numExpr int

func (n numExpr) Eval(func(string) (int, bool)) (int, error) { return int(n), nil }
func (n numExpr) String() string                             { return strconv.Itoa(int(n)) }

type refExpr string

func (r refExpr) Eval(lookup func(string) (int, bool)) (int, error) {
	v, ok := lookup(string(r))
	if !ok {
		return 0, fmt.Errorf("%w: $%s", errUnknownSymbol, string(r))
	}

	return v, nil
}

func (r refExpr) String() string { return "$" + string(r) }

type negExpr struct {
	x Expr
}

func (n negExpr) Eval(lookup func(string) (int, bool)) (int, error) {
	v, err := n.x.Eval(lookup)

	return -v, err
}

func (n negExpr) String() string { return "-" + n.x.String() }

type binExpr struct {
	op   byte
	l, r Expr
}

func (b binExpr) Eval(lookup func(string) (int, bool)) (int, error) {
	l, err := b.l.Eval(lookup)
	if err != nil {
		return 0, err
	}

	r, err := b.r.Eval(lookup)
	if err != nil {
		return 0, err
	}

	if b.op == '-' {
		return l - r, nil
	}

	return l + r, nil
}

func (b binExpr) String() string {
	return "(" + b.l.String() + string(b.op) + b.r.String() + ")"
}

// ParseExpr parses integers, $ALIAS references, + and - and parentheses.
func ParseExpr(src string) (Expr, error) {
	p := &exprParser{src: src}

	e, err := p.expr()
	if err != nil {
		return nil, err
	}

	p.skipSpace()

	if p.pos != len(p.src) {
		return nil, fmt.Errorf("%w: unexpected %q at %d", errBadExpression, p.src[p.pos:], p.pos)
	}

	return e, nil
}

type exprParser struct {
	src string
	pos int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	p.skipSpace()

	if p.pos >= len(p.src) {
		return 0
	}

	return p.src[p.pos]
}

func (p *exprParser) expr() (Expr, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}

	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}

		p.pos++

		right, err := p.term()
		if err != nil {
			return nil, err
		}

		left = binExpr{op: op, l: left, r: right}
	}
}

func (p *exprParser) term() (Expr, error) {
	switch c := p.peek(); {
	case c == '-':
		p.pos++

		x, err := p.term()
		if err != nil {
			return nil, err
		}

		return negExpr{x: x}, nil
	case c == '(':
		p.pos++

		e, err := p.expr()
		if err != nil {
			return nil, err
		}

		if p.peek() != ')' {
			return nil, fmt.Errorf("%w: missing ')' in %q", errBadExpression, p.src)
		}

		p.pos++

		return e, nil
	case c == '$':
		p.pos++

		name := p.ident()
		if name == "" {
			return nil, fmt.Errorf("%w: empty reference in %q", errBadExpression, p.src)
		}

		return refExpr(name), nil
	case c >= '0' && c <= '9':
		return p.number()
	case c == 0:
		return nil, fmt.Errorf("%w: unexpected end of %q", errBadExpression, p.src)
	default:
		return nil, fmt.Errorf("%w: unexpected %q in %q", errBadExpression, string(c), p.src)
	}
}

func (p *exprParser) ident() string {
	start := p.pos

	for p.pos < len(p.src) {
		r := rune(p.src[p.pos])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' {
			break
		}

		p.pos++
	}

	return p.src[start:p.pos]
}

func (p *exprParser) number() (Expr, error) {
	start := p.pos

	for p.pos < len(p.src) && strings.ContainsRune("0123456789abcdefABCDEFxX", rune(p.src[p.pos])) {
		p.pos++
	}

	v, err := strconv.ParseInt(p.src[start:p.pos], 0, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadExpression, err)
	}

	return numExpr(int(v)), nil
}
