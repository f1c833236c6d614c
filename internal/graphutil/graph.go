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

// Package graphutil adapts small integer-indexed graphs to the gonum and yourbasic graph libraries.
package graphutil

import (
	"sort"

	ybgraph "github.com/yourbasic/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Components partitions the vertices 0..n-1 of the undirected graph with the given edges into its connected
// components. Every component is sorted, and components are ordered by their smallest vertex.
func Components(n int, edges [][2]int) [][]int {
	if n == 0 {
		return nil
	}
	g := ybgraph.New(n)
	for _, e := range edges {
		g.AddBoth(e[0], e[1])
	}
	comps := ybgraph.Components(g)
	for _, c := range comps {
		sort.Ints(c)
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i][0] < comps[j][0] })
	return comps
}

// Cycles returns the strongly connected components of the directed graph over ids that contain a cycle: components
// with at least two nodes, and single nodes with an edge to themselves. Each component is sorted.
func Cycles(ids []int64, succ func(int64) []int64) [][]int64 {
	g := simple.NewDirectedGraph()
	for _, id := range ids {
		if g.Node(id) == nil {
			g.AddNode(simple.Node(id))
		}
	}
	selfLoops := map[int64]bool{}
	for _, id := range ids {
		for _, s := range succ(id) {
			if s == id {
				selfLoops[id] = true
				continue
			}
			if g.Node(s) == nil {
				g.AddNode(simple.Node(s))
			}
			g.SetEdge(g.NewEdge(simple.Node(id), simple.Node(s)))
		}
	}

	var cycles [][]int64
	for _, scc := range topo.TarjanSCC(g) {
		if len(scc) < 2 && !(len(scc) == 1 && selfLoops[scc[0].ID()]) {
			continue
		}
		c := make([]int64, 0, len(scc))
		for _, n := range scc {
			c = append(c, n.ID())
		}
		sort.Slice(c, func(i, j int) bool { return c[i] < c[j] })
		cycles = append(cycles, c)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}
