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

package instrument

import (
	"fmt"

	"github.com/awslabs/adg-policy/analysis/adg"
	"github.com/awslabs/adg-policy/analysis/config"
	"github.com/awslabs/adg-policy/analysis/resolver"
)

// TreeLoader returns the code tree of file, a path relative to the application root, in the code of fn
type TreeLoader func(fn *adg.Function, file string) (adg.CodeTree, error)

// A Planner computes the instrumentation of a graph
type Planner struct {
	Graph    *adg.Graph
	Emitters map[string]Emitter
	Trees    TreeLoader
	Logger   *config.LogGroup

	plan      *Plan
	preambles map[string]bool
}

// NewPlanner returns a planner with the default emitters
func NewPlanner(g *adg.Graph, trees TreeLoader, logger *config.LogGroup) *Planner {
	return &Planner{Graph: g, Emitters: Emitters(), Trees: trees, Logger: logger}
}

// Plan returns the instrumentation of the graph and of the runtime assertions of verdicts:
//   - the runtime preamble of every instrumented file
//   - taint seeding at the start of the body of each function
//   - taint recording at the source and taint propagation at the sink of every data edge
//   - taint persistence at the source of every indirect edge out of an object store
//   - an assertion at the governed node of every ASSERT verdict
//
// Nodes of functions in languages without emitter, and nodes whose position does not match a statement, are
// skipped with a warning.
func (p *Planner) Plan(verdicts []resolver.Verdict) (*Plan, error) {
	p.plan = &Plan{}
	p.preambles = map[string]bool{}
	for _, fn := range p.Graph.Functions {
		if err := p.planParam(fn); err != nil {
			return nil, err
		}
	}
	for _, e := range p.Graph.Edges() {
		var err error
		switch e.Tag {
		case adg.DataEdge:
			err = p.at(e.Source, e.SourcePosition, SourceTaint, e.ID, func(em Emitter) []string {
				return em.SourceTaint(e.Source)
			})
			if err == nil {
				err = p.at(e.Sink, e.SinkPosition, SinkTaint, e.ID, func(em Emitter) []string {
					return em.SinkTaint(e.Sink, e.Source)
				})
			}
		case adg.IndirectEdge:
			if !isObjectStore(e.Source.Kind) {
				p.Logger.Debugf("No taint persistence for indirect edge %s out of %s", e, e.Source.Kind)
				continue
			}
			err = p.at(e.Source, e.SourcePosition, SaveTaint, e.ID, func(em Emitter) []string {
				return em.SaveTaint(e.Source)
			})
		}
		if err != nil {
			return nil, err
		}
	}
	for _, v := range verdicts {
		if v.Status != resolver.Assert {
			continue
		}
		clauses := v.Clauses
		if len(clauses) == 0 {
			clauses = []string{v.Residual}
		}
		err := p.at(v.Node(), v.Position(), Assertion, v.Edge.ID, func(em Emitter) []string {
			return em.Assertion(clauses)
		})
		if err != nil {
			return nil, err
		}
	}
	p.Logger.Infof("Planned %d insertion(s) in %d file(s)", len(p.plan.Insertions), len(p.plan.Files()))
	return p.plan, nil
}

func (p *Planner) emitter(fn *adg.Function) (Emitter, bool) {
	em, ok := p.Emitters[fn.Language()]
	if !ok {
		p.Logger.Warnf("No instrumentation for %s: unsupported runtime %s", fn.Name, fn.Runtime)
	}
	return em, ok
}

func fileOf(fn *adg.Function, pos adg.Position) string {
	if pos.File != "" {
		return pos.File
	}
	return fn.HandlerFile()
}

func (p *Planner) tree(fn *adg.Function, file string) (adg.CodeTree, error) {
	if fn.Code != nil && file == fn.HandlerFile() {
		return fn.Code, nil
	}
	t, err := p.Trees(fn, file)
	if err != nil {
		return nil, fmt.Errorf("could not load code of %s: %w", fn.Name, err)
	}
	if file == fn.HandlerFile() {
		fn.Code = t
	}
	return t, nil
}

// addPreamble adds the preamble of the runtime to file, once
func (p *Planner) addPreamble(fn *adg.Function, em Emitter, file string, t adg.CodeTree) {
	if p.preambles[file] {
		return
	}
	p.preambles[file] = true
	p.plan.Add(Insertion{Function: fn.Name, File: file, Line: t.PreambleLine(), Kind: Preamble, Lines: em.Preamble()})
}

func (p *Planner) planParam(fn *adg.Function) error {
	if fn.Param == nil || !fn.Param.Position.IsValid() {
		p.Logger.Debugf("No event parameter found for %s", fn.Name)
		return nil
	}
	em, ok := p.emitter(fn)
	if !ok {
		return nil
	}
	file := fileOf(fn, fn.Param.Position)
	t, err := p.tree(fn, file)
	if err != nil {
		return err
	}
	span, ok := t.BodyStart(fn.Param.Position.Line)
	if !ok {
		p.Logger.Warnf("No function body defined at %s:%d for %s", file, fn.Param.Position.Line, fn.Name)
		return nil
	}
	p.addPreamble(fn, em, file, t)
	p.plan.Add(Insertion{
		Function: fn.Name,
		File:     file,
		Line:     span.StartLine,
		Indent:   span.Indent,
		Kind:     ParamTaint,
		Lines:    em.ParamTaint(fn.Param),
	})
	return nil
}

// at adds the statements rendered by render before the statement enclosing pos, in the code of the function of n
func (p *Planner) at(n *adg.Node, pos adg.Position, kind Kind, edge int, render func(Emitter) []string) error {
	fn := n.Function
	if fn == nil {
		return nil
	}
	em, ok := p.emitter(fn)
	if !ok {
		return nil
	}
	if !pos.IsValid() {
		pos = n.Position
	}
	if !pos.IsValid() {
		p.Logger.Warnf("No position for %s of %s", kind, n)
		return nil
	}
	file := fileOf(fn, pos)
	t, err := p.tree(fn, file)
	if err != nil {
		return err
	}
	span, ok := t.StatementAt(pos.Line)
	if !ok {
		p.Logger.Warnf("No statement at %s:%d for %s of %s", file, pos.Line, kind, n)
		return nil
	}
	p.addPreamble(fn, em, file, t)
	p.plan.Add(Insertion{
		Function: fn.Name,
		File:     file,
		Line:     span.StartLine,
		Indent:   span.Indent,
		Kind:     kind,
		Edge:     edge,
		Lines:    render(em),
	})
	return nil
}
