// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package policy

import (
	"fmt"
	"regexp"
	"strings"
)

// A Predicate is one conjunct of a clause: name(arg1, arg2, ...)
type Predicate struct {
	Op   Op
	Args []Term

	// Implicit is true for predicates added by Bind
	Implicit bool
	// Binds is the variable an implicit predicate binds
	Binds string
}

var predicateRegex = regexp.MustCompile(`(?s)^(\w+)\s*\((.*)\)$`)

// ParsePredicate parses a predicate. Unknown predicate names, wrong arities and malformed arguments are
// unsupported constructs.
func ParsePredicate(s string) (*Predicate, error) {
	s = strings.TrimSpace(s)
	m := predicateRegex.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("%w: %q is not a predicate", ErrUnsupported, s)
	}
	op, ok := LookupOp(m[1])
	if !ok {
		return nil, fmt.Errorf("%w: unknown predicate %q", ErrUnsupported, m[1])
	}
	var args []Term
	if strings.TrimSpace(m[2]) != "" {
		for _, a := range splitTopLevel(m[2], commaAt) {
			t, err := ParseTerm(a)
			if err != nil {
				return nil, fmt.Errorf("in %q: %w", s, err)
			}
			args = append(args, t)
		}
	}
	if len(args) != op.Arity() {
		return nil, fmt.Errorf("%w: %s expects %d arguments, got %d in %q", ErrUnsupported, op, op.Arity(),
			len(args), s)
	}
	return &Predicate{Op: op, Args: args}, nil
}

// NewPredicate returns the predicate op(args...). It panics if the arity is wrong.
func NewPredicate(op Op, args ...Term) *Predicate {
	if len(args) != op.Arity() {
		panic(fmt.Sprintf("%s expects %d arguments", op, op.Arity()))
	}
	return &Predicate{Op: op, Args: args}
}

// Variables returns the variables of the predicate in order of appearance, without duplicates
func (p *Predicate) Variables() []string {
	var vars []string
	for _, a := range p.Args {
		if a.IsVariable() && !contains(vars, a.Text) {
			vars = append(vars, a.Text)
		}
	}
	return vars
}

func (p *Predicate) hasVariable(v string) bool {
	for _, a := range p.Args {
		if a.IsVariable() && a.Text == v {
			return true
		}
	}
	return false
}

func (p *Predicate) String() string {
	args := make([]string, len(p.Args))
	for i, a := range p.Args {
		args[i] = a.String()
	}
	return p.Op.String() + "(" + strings.Join(args, ", ") + ")"
}

func contains(xs []string, x string) bool {
	for _, y := range xs {
		if y == x {
			return true
		}
	}
	return false
}

// splitTopLevel splits s at every position where sepAt returns a positive length, outside of quotes, parentheses
// and braces.
func splitTopLevel(s string, sepAt func(s string, i int) int) []string {
	var parts []string
	var quote byte
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			continue
		case c == '\'' || c == '"':
			quote = c
			continue
		case c == '(' || c == '{':
			depth++
			continue
		case c == ')' || c == '}':
			depth--
			continue
		}
		if depth != 0 {
			continue
		}
		if n := sepAt(s, i); n > 0 {
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + n
			i += n - 1
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

func commaAt(s string, i int) int {
	if s[i] == ',' {
		return 1
	}
	return 0
}

func ampersandAt(s string, i int) int {
	if s[i] == '&' {
		return 1
	}
	return 0
}

// orAt matches the keyword or, case-insensitively, surrounded by whitespace
func orAt(s string, i int) int {
	if i == 0 || !isSpace(s[i-1]) || i+2 >= len(s) {
		return 0
	}
	if strings.EqualFold(s[i:i+2], "or") && isSpace(s[i+2]) {
		return 2
	}
	return 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// stripParens removes parentheses enclosing all of s
func stripParens(s string) string {
	for {
		s = strings.TrimSpace(s)
		if len(s) < 2 || s[0] != '(' || matchingParen(s, 0) != len(s)-1 {
			return s
		}
		s = s[1 : len(s)-1]
	}
}

// matchingParen returns the index of the parenthesis closing the one at open, or -1
func matchingParen(s string, open int) int {
	var quote byte
	depth := 0
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
