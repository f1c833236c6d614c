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
	"context"
	"fmt"
	"strings"

	"github.com/awslabs/adg-policy/analysis/adg"
	"github.com/awslabs/adg-policy/analysis/config"
	"github.com/awslabs/adg-policy/analysis/taint"
)

const (
	// SessionPrefix is the prefix of variables resolved from the triggering request at runtime
	SessionPrefix = "Session"
	// InstPrefix is the prefix of variables resolved from the execution environment at runtime
	InstPrefix = "Inst"
	// ResourcePrefix is the prefix of variables resolved from the governed resource
	ResourcePrefix = "Resource"
)

// PropertyLookup resolves a property of the resource represented by a node at analysis time
type PropertyLookup interface {
	Lookup(ctx context.Context, prop string, node *adg.Node) (string, error)
}

// A Binder holds what is needed to bind the variables of a policy
type Binder struct {
	// Props resolves Resource variables at analysis time. May be nil.
	Props PropertyLookup
	// Hybrid enables resolution of Resource variables at analysis time
	Hybrid bool
	// CloudProvider selects the name of the runtime request object
	CloudProvider string
	Logger        *config.LogGroup
}

func (b Binder) requestObject() string {
	if b.CloudProvider == config.ProviderGCP {
		return "request"
	}
	return "event"
}

// Bind returns a copy of the policy where every group has the implicit predicates binding its variables, for the
// flow point node:
//   - Session variables are bound to a runtime fetch from the request
//   - Inst variables are bound to a runtime fetch from the execution environment
//   - Resource variables are bound to the property looked up now, in hybrid mode and when the resource of node is
//     static, and otherwise or if the lookup fails to a runtime fetch
//   - the first argument of taint predicates is bound to the online label of node
//
// Any other variable is an unsupported construct.
func (p *Policy) Bind(ctx context.Context, node *adg.Node, b Binder) (*Policy, error) {
	bound := &Policy{Text: p.Text}
	for _, c := range p.Clauses {
		bc := &Clause{Predicates: c.Predicates}
		for _, g := range c.Groups {
			bg, err := b.bindGroup(ctx, node, g)
			if err != nil {
				return nil, err
			}
			bc.Groups = append(bc.Groups, bg)
		}
		bound.Clauses = append(bound.Clauses, bc)
	}
	return bound, nil
}

func (b Binder) bindGroup(ctx context.Context, node *adg.Node, g *Group) (*Group, error) {
	bg := g.clone()
	var taintVars []string
	for _, pred := range g.Predicates {
		if pred.Op.IsTaint() && pred.Args[0].IsVariable() && !contains(taintVars, pred.Args[0].Text) {
			taintVars = append(taintVars, pred.Args[0].Text)
		}
	}
	for _, v := range g.Variables() {
		if contains(taintVars, v) {
			continue
		}
		var value Term
		switch {
		case strings.HasPrefix(v, SessionPrefix):
			value = Str(fmt.Sprintf("{getSessionProp(%s, '%s')}", b.requestObject(), v))
		case strings.HasPrefix(v, InstPrefix):
			value = Str(fmt.Sprintf("{getInstProp('%s')}", v))
		case strings.HasPrefix(v, ResourcePrefix):
			value = b.resourceValue(ctx, node, v)
		default:
			return nil, fmt.Errorf("%w: variable %q is not a Session, Inst or Resource variable", ErrUnsupported, v)
		}
		bg.Predicates = append(bg.Predicates, implicitEq(v, value))
	}
	for _, v := range taintVars {
		bg.Predicates = append(bg.Predicates, implicitEq(v, Str(taint.OnlineLabel(node))))
	}
	return bg, nil
}

func (b Binder) resourceValue(ctx context.Context, node *adg.Node, v string) Term {
	if b.Hybrid && b.Props != nil && node.Resource.IsStatic() {
		value, err := b.Props.Lookup(ctx, v, node)
		if err == nil {
			if b.Logger != nil {
				b.Logger.Debugf("Resolved %s of %s to %q", v, node.Resource, value)
			}
			return Str(value)
		}
		if b.Logger != nil {
			b.Logger.Debugf("Could not resolve %s of %s, deferring to runtime: %v", v, node.Resource, err)
		}
	}
	return Str(fmt.Sprintf("{getResourceProp('%s', '%s', '%s')}", v, node.Kind, node.Resource.Name))
}

func implicitEq(v string, value Term) *Predicate {
	p := NewPredicate(OpEq, Var(v), value)
	p.Implicit = true
	p.Binds = v
	return p
}
