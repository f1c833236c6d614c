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
	"strconv"
	"strings"
)

// TermKind is the kind of a predicate argument
type TermKind int

const (
	Variable TermKind = iota
	StringLit
	NumberLit
)

// Term is an argument of a predicate: a variable, a quoted string literal or a number
type Term struct {
	Kind TermKind
	// Text is the argument as written
	Text string
	// Str is the unquoted value of a string literal
	Str string
	// Num is the value of a number literal
	Num float64
}

var variableRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseTerm parses an argument. An argument is a variable unless it is quoted or is a number.
func ParseTerm(s string) (Term, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return Term{Kind: StringLit, Text: s, Str: s[1 : len(s)-1]}, nil
	}
	if isNumber(s) {
		f, _ := strconv.ParseFloat(s, 64)
		return Term{Kind: NumberLit, Text: s, Num: f}, nil
	}
	if !variableRegex.MatchString(s) {
		return Term{}, fmt.Errorf("%w: malformed argument %q", ErrUnsupported, s)
	}
	return Term{Kind: Variable, Text: s}, nil
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	switch c := s[0]; {
	case c >= '0' && c <= '9', c == '-', c == '+', c == '.':
	default:
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// Var returns a variable term
func Var(name string) Term { return Term{Kind: Variable, Text: name} }

// Str returns a single-quoted string literal term
func Str(value string) Term { return Term{Kind: StringLit, Text: "'" + value + "'", Str: value} }

// IsVariable returns true if the term is a variable
func (t Term) IsVariable() bool { return t.Kind == Variable }

// IsPlaceholder returns true if the term is a string literal with a runtime-format part {...}
func (t Term) IsPlaceholder() bool {
	if t.Kind != StringLit {
		return false
	}
	i := strings.Index(t.Str, "{")
	return i >= 0 && strings.Contains(t.Str[i:], "}")
}

func (t Term) String() string { return t.Text }
