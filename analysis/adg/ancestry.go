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

package adg

import (
	"strings"

	"github.com/awslabs/adg-policy/analysis/config"
	"github.com/awslabs/adg-policy/internal/formatutil"
	"github.com/awslabs/adg-policy/internal/funcutil"
	"github.com/awslabs/adg-policy/internal/graphutil"
)

// PopulateAncestors computes, for every node, the set of nodes and functions from which data could reach it along
// data and indirect edges. Nodes are processed in topological order (Kahn's algorithm); each node adds itself, its
// function and its own ancestors to the ancestor sets of its successors.
//
// Returns the number of nodes left with a positive in-degree once the queue is drained. A positive result means
// the graph has a cycle: the ancestor sets of the nodes on or after the cycle are partial. This is logged as a
// warning and is not an error.
func (g *Graph) PopulateAncestors(logger *config.LogGroup) int {
	nodes := g.Nodes()
	edges := g.Edges()

	inDegree := make(map[*Node]int, len(nodes))
	for _, n := range nodes {
		n.AncestorNodes = map[*Node]bool{}
		n.AncestorFunctions = map[*Function]bool{}
		inDegree[n] = 0
	}
	for _, e := range edges {
		inDegree[e.Sink]++
	}

	queue := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, e := range n.Out {
			if e.Tag == MetadataEdge {
				continue
			}
			succ := e.Sink
			succ.AncestorNodes[n] = true
			funcutil.Union(succ.AncestorNodes, n.AncestorNodes)
			if n.Function != nil {
				succ.AncestorFunctions[n.Function] = true
			}
			funcutil.Union(succ.AncestorFunctions, n.AncestorFunctions)
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	residual := 0
	for _, n := range nodes {
		if inDegree[n] > 0 {
			residual++
		}
	}
	if residual > 0 {
		logger.Warnf("%d node(s) with residual in-degree after ancestry propagation: %s",
			residual, formatutil.Yellow("possible cycle"))
		for _, cycle := range g.cycles(nodes) {
			names := make([]string, len(cycle))
			for i, n := range cycle {
				names[i] = n.Describe()
			}
			logger.Warnf("  cycle: %s", strings.Join(names, " -> "))
		}
	}
	return residual
}

// cycles returns the strongly connected components of the data and indirect edges that contain a cycle
func (g *Graph) cycles(nodes []*Node) [][]*Node {
	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		ids[i] = int64(n.ID)
	}
	succ := func(id int64) []int64 {
		var res []int64
		for _, e := range nodes[id].Out {
			if e.Tag != MetadataEdge {
				res = append(res, int64(e.Sink.ID))
			}
		}
		return res
	}
	var res [][]*Node
	for _, component := range graphutil.Cycles(ids, succ) {
		c := make([]*Node, len(component))
		for i, id := range component {
			c[i] = nodes[id]
		}
		res = append(res, c)
	}
	return res
}
