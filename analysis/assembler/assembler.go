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

// Package assembler builds the application dependency graph from the per-function results of the static analyzer
// and the topology of the application.
//
// Assembly happens in the following order:
//   - [Assembler.GenerateIntraFunctionGraphs] and [Assembler.AddMetadataEdges] materialize the nodes and edges
//     reported by the analyzer for each function.
//   - [Assembler.ResolveStaticReferences] maps the global nodes to the declared resources they name.
//   - [Assembler.AddInterFunctionEdges] adds the edges inferred from the dependencies between resources and
//     functions: sequencing edges, trigger annotations and indirect flows through shared resources.
package assembler

import (
	"context"
	"fmt"
	"strings"

	"github.com/awslabs/adg-policy/analysis/adg"
	"github.com/awslabs/adg-policy/analysis/config"
	"github.com/awslabs/adg-policy/analysis/sarif"
	"github.com/awslabs/adg-policy/internal/funcutil"
	"golang.org/x/sync/errgroup"
)

// Assembler adds nodes and edges to a graph
type Assembler struct {
	Graph  *adg.Graph
	Config *config.Config
	Logger *config.LogGroup

	pairs    []functionPair
	pairSeen map[functionPair]bool
}

type functionPair struct {
	source *adg.Function
	target *adg.Function
}

// New returns an assembler adding to g
func New(g *adg.Graph, cfg *config.Config, logger *config.LogGroup) *Assembler {
	return &Assembler{
		Graph:    g,
		Config:   cfg,
		Logger:   logger,
		pairSeen: map[functionPair]bool{},
	}
}

// fragmentFlow is a flow inside a fragment. Either end may be nil.
type fragmentFlow struct {
	source *adg.Node
	sink   *adg.Node
}

// fragment is the set of flows reported for one function
type fragment struct {
	function *adg.Function
	flows    []fragmentFlow
}

// GenerateIntraFunctionGraphs adds the data flows reported in results for each function to the graph.
// Results are assigned to the function whose path is a prefix of their location.
func (a *Assembler) GenerateIntraFunctionGraphs(ctx context.Context, functions []*adg.Function,
	results *sarif.Log) error {
	return a.addFunctionFlows(ctx, functions, results, adg.DataEdge)
}

// AddMetadataEdges adds the metadata flows reported in results for each function to the graph. Metadata flows are
// added as data flows when the promote-metadata option is set.
func (a *Assembler) AddMetadataEdges(ctx context.Context, functions []*adg.Function, results *sarif.Log) error {
	tag := adg.MetadataEdge
	if a.Config.PromoteMetadata {
		tag = adg.DataEdge
	}
	return a.addFunctionFlows(ctx, functions, results, tag)
}

// addFunctionFlows parses the fragments of each function in parallel and merges them in the order of functions,
// so that node and edge identifiers do not depend on scheduling.
func (a *Assembler) addFunctionFlows(ctx context.Context, functions []*adg.Function, results *sarif.Log,
	tag adg.EdgeTag) error {
	if results == nil {
		return nil
	}
	fragments := make([]*fragment, len(functions))
	byDir := results.Assign(funcutil.Map(functions, func(f *adg.Function) string { return f.Path }))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(a.Config.Parallelism, 1))
	for i, fn := range functions {
		i, fn := i, fn
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			frag, err := buildFragment(fn, byDir[fn.Path])
			if err != nil {
				return fmt.Errorf("in function %s: %w", fn.Name, err)
			}
			fragments[i] = frag
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	before := len(a.Graph.Edges()) + len(a.Graph.MetadataEdges())
	for _, frag := range fragments {
		a.mergeFragment(frag, tag)
	}
	after := len(a.Graph.Edges()) + len(a.Graph.MetadataEdges())
	a.Logger.Debugf("Added %d %s edge(s) from analyzer results of %d function(s)", after-before, tag, len(functions))
	return nil
}

func buildFragment(fn *adg.Function, results []sarif.Result) (*fragment, error) {
	frag := &fragment{function: fn}
	for _, result := range results {
		for _, line := range result.Flows() {
			source, sink, err := ParseFlow(line)
			if err != nil {
				return nil, err
			}
			frag.flows = append(frag.flows, fragmentFlow{
				source: descriptorNode(source, fn, result),
				sink:   descriptorNode(sink, fn, result),
			})
		}
	}
	return frag, nil
}

func descriptorNode(d *Descriptor, fn *adg.Function, result sarif.Result) *adg.Node {
	if d == nil {
		return nil
	}
	pos, ok := result.RelatedPosition(d.LocationID)
	if !ok && len(result.Locations) > 0 {
		pos = result.Locations[0].Position()
	}
	return d.Node(fn, pos)
}

func (a *Assembler) mergeFragment(frag *fragment, tag adg.EdgeTag) {
	for _, flow := range frag.flows {
		var source, sink *adg.Node
		if flow.source != nil {
			source = a.Graph.AddNode(flow.source)
		}
		if flow.sink != nil {
			sink = a.Graph.AddNode(flow.sink)
		}
		if source == nil || sink == nil || source == sink {
			continue
		}
		e := a.Graph.AddEdge(&adg.Edge{
			Source:         source,
			Sink:           sink,
			Tag:            tag,
			Function:       frag.function,
			SourcePosition: flow.source.Position,
			SinkPosition:   flow.sink.Position,
		})
		a.Logger.Tracef("%s edge %s", tag, e)
	}
}

// ConnectFunctions adds an indirect edge from the return node of source to the parameter node of target.
func (a *Assembler) ConnectFunctions(source, target *adg.Function) error {
	if source.Return == nil {
		return fmt.Errorf("%w: function %s is chained to %s but has no return node", ErrUnsupported,
			source.Name, target.Name)
	}
	if target.Param == nil {
		return fmt.Errorf("%w: function %s is chained after %s but has no parameter node", ErrUnsupported,
			target.Name, source.Name)
	}
	e := a.Graph.Connect(source.Return, target.Param, adg.IndirectEdge, source)
	a.Logger.Debugf("Sequencing edge %s from %s to %s", e, source.Name, target.Name)
	return nil
}

// HandleTrigger records that resource triggers target: every global node of target representing the same kind of
// resource gains resource as a potential resource. Resources that are not data stores (APIs, schedules) have no
// node to annotate.
func (a *Assembler) HandleTrigger(resource *adg.Resource, target *adg.Function) {
	kind, ok := resource.Kind()
	if !ok {
		a.Logger.Debugf("Trigger %s (%s) of %s is not a data store", resource.Name, resource.Type, target.Name)
		return
	}
	for _, n := range a.Graph.NodesOf(target) {
		if n.IsGlobal() && n.Kind == kind {
			if n.AddPotentialResource(resource) {
				a.Logger.Tracef("%s may alias %s", n.Describe(), resource.Name)
			}
		}
	}
}

// AddPotentialIndirectFlows adds an indirect edge from every global sink node of source to every global source node
// of target when their potential resources intersect. Returns the number of edges inserted.
func (a *Assembler) AddPotentialIndirectFlows(source, target *adg.Function) int {
	count := 0
	targetNodes := a.Graph.NodesOf(target)
	for _, n1 := range a.Graph.NodesOf(source) {
		if !n1.IsGlobal() || !n1.IsSink {
			continue
		}
		for _, n2 := range targetNodes {
			if !n2.IsGlobal() || !n2.IsSource || n1 == n2 {
				continue
			}
			if n1.SharesPotentialResource(n2) {
				before := len(n1.Out)
				e := a.Graph.Connect(n1, n2, adg.IndirectEdge, source)
				if len(n1.Out) > before {
					count++
					a.Logger.Debugf("Indirect edge %s from %s to %s", e, source.Name, target.Name)
				}
			}
		}
	}
	return count
}

// AddInterFunctionEdges walks the dependencies of resources. A function followed by a function is a chain: the
// functions are connected and the pair is remembered. A resource followed by a function is a trigger: the trigger
// is handled, and every other function writing to the resource forms a pair with the triggered function. Any
// other shape is an error.
// Once all dependencies are handled, indirect flows are added for every pair.
func (a *Assembler) AddInterFunctionEdges(resources []adg.Entity) error {
	for _, source := range resources {
		for _, dep := range source.Base().Dependencies {
			target, ok := dep.(*adg.Function)
			if !ok {
				return fmt.Errorf("%w: dependency %s (%s) -> %s (%s)", ErrUnsupported,
					source.Base().Name, source.Base().Type, dep.Base().Name, dep.Base().Type)
			}
			switch src := source.(type) {
			case *adg.Function:
				if err := a.ConnectFunctions(src, target); err != nil {
					return err
				}
				a.addPair(src, target)
			case *adg.Resource:
				a.HandleTrigger(src, target)
				for _, writer := range a.writersOf(src) {
					a.addPair(writer, target)
				}
			default:
				return fmt.Errorf("%w: dependency source %T", ErrUnsupported, source)
			}
		}
	}
	total := 0
	for _, p := range a.pairs {
		total += a.AddPotentialIndirectFlows(p.source, p.target)
	}
	a.Logger.Infof("Added %d indirect edge(s) for %d function pair(s)", total, len(a.pairs))
	a.connectInvocations()
	return nil
}

func (a *Assembler) addPair(source, target *adg.Function) {
	p := functionPair{source: source, target: target}
	if source == target || a.pairSeen[p] {
		return
	}
	a.pairSeen[p] = true
	a.pairs = append(a.pairs, p)
}

// writersOf returns the functions with a global sink node that may alias r
func (a *Assembler) writersOf(r *adg.Resource) []*adg.Function {
	var writers []*adg.Function
	for _, fn := range a.Graph.Functions {
		for _, n := range a.Graph.NodesOf(fn) {
			if n.IsGlobal() && n.IsSink && hasResource(n.Attrs.PotentialResources, r) {
				writers = append(writers, fn)
				break
			}
		}
	}
	return writers
}

func hasResource(resources []*adg.Resource, r *adg.Resource) bool {
	for _, x := range resources {
		if x == r {
			return true
		}
	}
	return false
}

// connectInvocations adds an indirect edge from every direct invocation node to the parameter node of the invoked
// function, when the invoked function name is static.
func (a *Assembler) connectInvocations() {
	for _, n := range a.Graph.Nodes() {
		if n.Kind != adg.LambdaInvoke || !n.Resource.IsStatic() {
			continue
		}
		for _, fn := range a.Graph.Functions {
			if fn.Param == nil || fn == n.Function {
				continue
			}
			if strings.Contains(n.Resource.Name, fn.Name) || n.Resource.Name == fn.PhysicalName() {
				a.Graph.Connect(n, fn.Param, adg.IndirectEdge, n.Function)
			}
		}
	}
}

// ResolveStaticReferences maps every global node whose resource reference is static to the declared data store it
// names, by logical or physical name. The resource becomes the mapped resource of the node and one of its
// potential resources. With the alias-dynamic-references option, global nodes with a dynamic resource reference
// may alias every declared data store of the same kind.
func (a *Assembler) ResolveStaticReferences(resources []adg.Entity) {
	byName := map[string]*adg.Resource{}
	var stores []*adg.Resource
	for _, e := range resources {
		r, ok := e.(*adg.Resource)
		if !ok {
			continue
		}
		if _, isStore := r.Kind(); !isStore {
			continue
		}
		stores = append(stores, r)
		byName[r.Name] = r
		if _, exists := byName[r.PhysicalName()]; !exists {
			byName[r.PhysicalName()] = r
		}
	}
	mapped := 0
	undeclared := map[string]bool{}
	for _, n := range a.Graph.Nodes() {
		if !n.IsGlobal() {
			continue
		}
		if n.Resource.IsStatic() {
			r, ok := byName[n.Resource.Name]
			if !ok {
				undeclared[n.Resource.Name] = true
				continue
			}
			if kind, _ := r.Kind(); kind != n.Kind {
				a.Logger.Warnf("%s names %s but the resource is a %s", n.Describe(), r.Name, r.Type)
				continue
			}
			n.Attrs.Mapped = r
			n.AddPotentialResource(r)
			mapped++
		} else if a.Config.AliasDynamicReferences {
			for _, r := range stores {
				if kind, _ := r.Kind(); kind == n.Kind {
					n.AddPotentialResource(r)
				}
			}
		}
	}
	a.Logger.Debugf("Mapped %d global node(s) to declared resources", mapped)
	if len(undeclared) > 0 {
		a.Logger.Debugf("Resources used but not declared in the template: %s",
			strings.Join(funcutil.SetToOrderedSlice(undeclared), ", "))
	}
}
