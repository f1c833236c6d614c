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

// Package resolver decides, for the read and write policies of every governed edge, whether the policy holds
// statically, fails statically, or must be checked at runtime.
//
// For each clause of a bound policy, each group of predicates is resolved in turn:
//  1. taint predicates are checked against the taint that could have reached the governed node. A
//     taintSetIncludes that no candidate label could match is a static failure, and a taintSetExcludes that no
//     candidate label could match holds and is dropped.
//  2. groups with Session variables or remaining taint predicates are deferred to runtime.
//  3. other groups are evaluated. A disproven group is a static failure. Groups the engine cannot decide are
//     deferred.
//
// The residual of a clause is the conjunction of its deferred groups, and the residual of the policy is the
// disjunction of the residuals of its clauses that are not statically false.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/awslabs/adg-policy/analysis/adg"
	"github.com/awslabs/adg-policy/analysis/config"
	"github.com/awslabs/adg-policy/analysis/policy"
	"github.com/awslabs/adg-policy/analysis/taint"
	"github.com/awslabs/adg-policy/internal/formatutil"
	"github.com/awslabs/adg-policy/internal/funcutil"
)

// ErrStaticPolicyFailure wraps the diagnostics of policies that provably cannot hold
var ErrStaticPolicyFailure = errors.New("static policy failure")

// Direction is the policy of an edge being resolved
type Direction string

const (
	// Read policies govern the source of an edge
	Read Direction = "read"
	// Write policies govern the sink of an edge
	Write Direction = "write"
)

// Status is the outcome of a resolution
type Status string

const (
	// Pass means the policy holds statically, or allows unconditionally
	Pass Status = "PASS"
	// Fail means every clause of the policy is statically false
	Fail Status = "FAIL"
	// Assert means the Residual must be checked at runtime
	Assert Status = "ASSERT"
)

// A Verdict is the resolution of the read or write policy of an edge
type Verdict struct {
	Edge      *adg.Edge
	Direction Direction
	Status    Status
	// Residual is the runtime assertion. Only set when Status is Assert.
	Residual string
	// Clauses are the disjuncts of Residual
	Clauses []string
	// Diagnostics describe the clauses of the policy that provably cannot hold
	Diagnostics []string
}

// Node returns the node governed by the verdict: the source of the edge for reads, the sink for writes
func (v Verdict) Node() *adg.Node {
	if v.Direction == Read {
		return v.Edge.Source
	}
	return v.Edge.Sink
}

// Position returns the position where the runtime assertion of the verdict is checked
func (v Verdict) Position() adg.Position {
	if v.Direction == Read {
		return v.Edge.SourcePosition
	}
	return v.Edge.SinkPosition
}

// Err returns the diagnostics of a failed verdict as errors wrapping ErrStaticPolicyFailure, or nil
func (v Verdict) Err() error {
	if v.Status != Fail {
		return nil
	}
	var errs []error
	for _, d := range v.Diagnostics {
		errs = append(errs, fmt.Errorf("%w: edge %s (%s): %s", ErrStaticPolicyFailure, v.Edge, v.Direction, d))
	}
	return errors.Join(errs...)
}

// A Resolver resolves policies
type Resolver struct {
	Evaluator   policy.Evaluator
	Binder      policy.Binder
	Hybrid      bool
	Parallelism int
	Logger      *config.LogGroup
}

// New returns a resolver configured by cfg, resolving Resource variables with props
func New(cfg *config.Config, logger *config.LogGroup, props policy.PropertyLookup) *Resolver {
	return &Resolver{
		Evaluator: policy.Engine{},
		Binder: policy.Binder{
			Props:         props,
			Hybrid:        cfg.HybridMode,
			CloudProvider: cfg.CloudProvider,
			Logger:        logger,
		},
		Hybrid:      cfg.HybridMode,
		Parallelism: cfg.Parallelism,
		Logger:      logger,
	}
}

// Resolve resolves the policy of edge e in direction dir. The error is only set for unsupported constructs;
// static failures are reported in the diagnostics of the verdict.
func (r *Resolver) Resolve(ctx context.Context, e *adg.Edge, dir Direction) (Verdict, error) {
	v := Verdict{Edge: e, Direction: dir}
	text := e.ReadPolicy
	if dir == Write {
		text = e.WritePolicy
	}
	p, err := policy.Parse(text)
	if err != nil {
		return v, fmt.Errorf("%s policy of edge %s: %w", dir, e, err)
	}
	if p.IsAllow() {
		v.Status = Pass
		return v, nil
	}
	bound, err := p.Bind(ctx, v.Node(), r.Binder)
	if err != nil {
		return v, fmt.Errorf("%s policy of edge %s: %w", dir, e, err)
	}

	if !r.Hybrid {
		v.Status = Assert
		v.Clauses = funcutil.Map(bound.Clauses, func(c *policy.Clause) string {
			return joinGroups(c.Groups)
		})
		v.Residual = joinClauses(v.Clauses)
		return v, nil
	}

	candidates := taint.Candidates(v.Node())
	var residuals []string
	var diagnostics []string
	for _, c := range bound.Clauses {
		res := r.resolveClause(c, candidates)
		if res.failed {
			diagnostics = append(diagnostics, res.diagnostics...)
			continue
		}
		if len(res.residual) == 0 {
			r.Logger.Debugf("%s policy of edge %s holds statically: %s", dir, e, c.Query())
			v.Status = Pass
			return v, nil
		}
		residuals = append(residuals, joinGroups(res.residual))
	}
	v.Diagnostics = diagnostics
	if len(residuals) == 0 {
		v.Status = Fail
		return v, nil
	}
	v.Status = Assert
	v.Clauses = residuals
	v.Residual = joinClauses(residuals)
	return v, nil
}

type clauseResult struct {
	residual    []*policy.Group
	failed      bool
	diagnostics []string
}

func (r *Resolver) resolveClause(c *policy.Clause, candidates []string) clauseResult {
	var res clauseResult
	for _, g := range c.Groups {
		residual, diagnostics := r.resolveGroup(g, candidates)
		if len(diagnostics) > 0 {
			res.failed = true
			res.diagnostics = append(res.diagnostics, diagnostics...)
			continue
		}
		if residual != nil {
			res.residual = append(res.residual, residual)
		}
	}
	return res
}

// resolveGroup returns the residual of g, nil when g holds, or the reasons why g cannot hold
func (r *Resolver) resolveGroup(g *policy.Group, candidates []string) (*policy.Group, []string) {
	var diagnostics []string
	kept := &policy.Group{}
	var dropped []string
	for _, p := range g.Predicates {
		if !p.Op.IsTaint() || p.Args[1].IsVariable() {
			kept.Predicates = append(kept.Predicates, p)
			continue
		}
		label := p.Args[1].Str
		if taint.AnyCouldMatch(candidates, label) {
			kept.Predicates = append(kept.Predicates, p)
			continue
		}
		switch p.Op {
		case policy.OpTaintSetIncludes:
			diagnostics = append(diagnostics, fmt.Sprintf("%s: no upstream node or function can carry taint %q",
				p, label))
		case policy.OpTaintSetExcludes:
			r.Logger.Debugf("%s holds statically: no upstream node or function can carry taint %q", p, label)
			if p.Args[0].IsVariable() {
				dropped = append(dropped, p.Args[0].Text)
			}
		}
	}
	if len(diagnostics) > 0 {
		return nil, diagnostics
	}
	kept.Predicates = dropUnusedBindings(kept.Predicates, dropped)
	if len(kept.Predicates) == 0 {
		return nil, nil
	}
	if kept.HasSessionVariables() || kept.HasTaintPredicates() {
		// the predicates known at analysis time can still rule the group out
		if static := staticPredicates(kept.Predicates); len(static) > 0 &&
			r.Evaluator.Ask(static) == policy.Disproven {
			return nil, []string{fmt.Sprintf("%s is statically false", (&policy.Group{Predicates: static}).Query())}
		}
		return kept, nil
	}
	switch r.Evaluator.Ask(kept.Predicates) {
	case policy.Disproven:
		return nil, []string{fmt.Sprintf("%s is statically false", kept.Query())}
	case policy.Proven:
		return nil, nil
	default:
		return kept, nil
	}
}

// staticPredicates returns the predicates that do not depend on the request or on runtime values
func staticPredicates(preds []*policy.Predicate) []*policy.Predicate {
	return funcutil.Filter(preds, func(p *policy.Predicate) bool {
		if p.Op.IsRuntimeOnly() {
			return false
		}
		for _, a := range p.Args {
			if a.IsPlaceholder() || (a.IsVariable() && strings.HasPrefix(a.Text, policy.SessionPrefix)) {
				return false
			}
		}
		return true
	})
}

// dropUnusedBindings removes the implicit predicates binding a variable of vars that no explicit predicate uses
func dropUnusedBindings(preds []*policy.Predicate, vars []string) []*policy.Predicate {
	if len(vars) == 0 {
		return preds
	}
	used := map[string]bool{}
	for _, p := range preds {
		if !p.Implicit {
			for _, v := range p.Variables() {
				used[v] = true
			}
		}
	}
	return funcutil.Filter(preds, func(p *policy.Predicate) bool {
		return !p.Implicit || used[p.Binds] || !funcutil.Contains(vars, p.Binds)
	})
}

func joinGroups(groups []*policy.Group) string {
	return strings.Join(funcutil.Map(groups, (*policy.Group).Query), " & ")
}

func joinClauses(clauses []string) string {
	if len(clauses) == 1 {
		return clauses[0]
	}
	return "(" + strings.Join(clauses, ") or (") + ")"
}

type item struct {
	edge *adg.Edge
	dir  Direction
}

type outcome struct {
	verdict Verdict
	err     error
}

// ResolveGraph resolves the read and write policies of every governed edge of g, in parallel. Verdicts are in edge
// order, read before write. The error joins the unsupported constructs and the static failures.
func (r *Resolver) ResolveGraph(ctx context.Context, g *adg.Graph) ([]Verdict, error) {
	var items []item
	for _, e := range g.Edges() {
		if e.IsGoverned() {
			items = append(items, item{e, Read}, item{e, Write})
		}
	}
	outcomes := funcutil.MapParallel(items, func(it item) outcome {
		v, err := r.Resolve(ctx, it.edge, it.dir)
		return outcome{v, err}
	}, r.Parallelism)

	var verdicts []Verdict
	var errs []error
	counts := map[Status]int{}
	for _, o := range outcomes {
		if o.err != nil {
			errs = append(errs, o.err)
			continue
		}
		verdicts = append(verdicts, o.verdict)
		counts[o.verdict.Status]++
		if err := o.verdict.Err(); err != nil {
			r.Logger.Errorf("%s", err)
			errs = append(errs, err)
		}
		if o.verdict.Status == Assert {
			r.Logger.Debugf("Runtime assertion on %s (%s): %s", o.verdict.Edge, o.verdict.Direction,
				o.verdict.Residual)
			for _, d := range o.verdict.Diagnostics {
				r.Logger.Errorf("  clause of %s (%s) cannot hold: %s", o.verdict.Edge, o.verdict.Direction, d)
			}
		}
	}
	r.Logger.Infof("Resolved %d policies: %s, %s, %s", len(verdicts),
		formatutil.Green(fmt.Sprintf("%d pass", counts[Pass])),
		formatutil.Yellow(fmt.Sprintf("%d assert", counts[Assert])),
		formatutil.Red(fmt.Sprintf("%d fail", counts[Fail])))
	return verdicts, errors.Join(errs...)
}
