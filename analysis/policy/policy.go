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

// Package policy implements the information-flow policy language.
//
// A policy is either empty (the literal "allow" or the empty string), which allows the flow unconditionally, or a
// formula in disjunctive normal form: clauses joined by "or", each clause a conjunction of predicates joined by "&".
// For example:
//
//	(eq(Resource, 'images') & eq(InstRegion, ResourceRegion)) or taintSetExcludes(Node, 'secrets:*')
//
// An argument is a variable unless it is a quoted literal or a number. Variables are resolved according to their
// prefix: Session variables from the triggering request, Inst variables from the execution environment, and
// Resource variables from the resource governed by the policy (see [Policy.Bind]).
//
// Each clause is partitioned into disjoint groups: the connected components of its predicates, two predicates being
// connected when they share a variable. Groups can be evaluated independently of each other.
package policy

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/awslabs/adg-policy/internal/graphutil"
)

// ErrUnsupported is returned for malformed policies, unknown predicates and unsupported variable classes
var ErrUnsupported = errors.New("unsupported policy construct")

// Allow is the policy text of an unconditional allow
const Allow = "allow"

// A Group is a set of predicates connected through shared variables
type Group struct {
	Predicates []*Predicate
}

// Variables returns the variables of the group in order of appearance
func (g *Group) Variables() []string {
	var vars []string
	for _, p := range g.Predicates {
		for _, v := range p.Variables() {
			if !contains(vars, v) {
				vars = append(vars, v)
			}
		}
	}
	return vars
}

// HasSessionVariables returns true if a variable of the group is resolved from the request at runtime
func (g *Group) HasSessionVariables() bool {
	for _, v := range g.Variables() {
		if strings.HasPrefix(v, SessionPrefix) {
			return true
		}
	}
	return false
}

// HasTaintPredicates returns true if the group contains a taint set predicate
func (g *Group) HasTaintPredicates() bool {
	for _, p := range g.Predicates {
		if p.Op.IsTaint() {
			return true
		}
	}
	return false
}

// Query returns the conjunction of the predicates of the group
func (g *Group) Query() string {
	preds := make([]string, len(g.Predicates))
	for i, p := range g.Predicates {
		preds[i] = p.String()
	}
	return strings.Join(preds, " & ")
}

func (g *Group) clone() *Group {
	return &Group{Predicates: append([]*Predicate(nil), g.Predicates...)}
}

// A Clause is a conjunction of predicates, partitioned into groups
type Clause struct {
	Predicates []*Predicate
	Groups     []*Group
}

// Query returns the conjunction of the queries of the groups, each between parentheses
func (c *Clause) Query() string {
	qs := make([]string, 0, len(c.Groups))
	for _, g := range c.Groups {
		qs = append(qs, "("+g.Query()+")")
	}
	return strings.Join(qs, " & ")
}

// A Policy is a parsed policy text. A policy without clauses allows unconditionally.
type Policy struct {
	Text    string
	Clauses []*Clause
}

var whitespace = regexp.MustCompile(`\s+`)

// Parse parses a policy text
func Parse(text string) (*Policy, error) {
	text = strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
	if text == "" || strings.EqualFold(text, Allow) {
		return &Policy{}, nil
	}
	p := &Policy{Text: text}
	for _, clauseText := range splitTopLevel(text, orAt) {
		clauseText = stripParens(clauseText)
		if clauseText == "" {
			return nil, fmt.Errorf("%w: empty clause in %q", ErrUnsupported, text)
		}
		clause := &Clause{}
		for _, predText := range splitTopLevel(clauseText, ampersandAt) {
			pred, err := ParsePredicate(stripParens(predText))
			if err != nil {
				return nil, err
			}
			clause.Predicates = append(clause.Predicates, pred)
		}
		clause.Groups = Partition(clause.Predicates)
		p.Clauses = append(p.Clauses, clause)
	}
	return p, nil
}

// MustParse parses a policy text and panics on error
func MustParse(text string) *Policy {
	p, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return p
}

// IsAllow returns true if the policy allows unconditionally
func (p *Policy) IsAllow() bool {
	return len(p.Clauses) == 0
}

func (p *Policy) String() string {
	if p.IsAllow() {
		return Allow
	}
	return p.Text
}

// Query returns the disjunction of the queries of the clauses
func (p *Policy) Query() string {
	qs := make([]string, len(p.Clauses))
	for i, c := range p.Clauses {
		qs[i] = c.Query()
	}
	if len(qs) == 1 {
		return qs[0]
	}
	for i := range qs {
		qs[i] = "(" + qs[i] + ")"
	}
	return strings.Join(qs, " or ")
}

// resourceClass is the sharing key of all Resource variables: they are properties of the same governed resource
const resourceClass = "Resource*"

// sharingKey returns the key under which predicates using variable v are connected
func sharingKey(v string) string {
	if strings.HasPrefix(v, ResourcePrefix) {
		return resourceClass
	}
	return v
}

// Partition splits predicates into the connected components of the graph where two predicates are adjacent when
// they share a variable. All Resource variables denote the one resource governed by the policy and count as
// shared. Groups are ordered by their first predicate, and predicates keep their order in groups.
func Partition(preds []*Predicate) []*Group {
	var edges [][2]int
	firstUse := map[string]int{}
	for i, p := range preds {
		for _, v := range p.Variables() {
			v = sharingKey(v)
			if j, ok := firstUse[v]; ok {
				edges = append(edges, [2]int{j, i})
			} else {
				firstUse[v] = i
			}
		}
	}
	var groups []*Group
	for _, component := range graphutil.Components(len(preds), edges) {
		g := &Group{}
		for _, i := range component {
			g.Predicates = append(g.Predicates, preds[i])
		}
		groups = append(groups, g)
	}
	return groups
}
