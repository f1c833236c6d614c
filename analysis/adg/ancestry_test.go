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
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/awslabs/adg-policy/analysis/config"
)

// chain builds nodes 0..n-1 in fn and connects them with the given edges
func chain(g *Graph, fn *Function, n int, edges [][2]int) []*Node {
	nodes := make([]*Node, n)
	for i := range nodes {
		nodes[i] = g.AddNode(newTestNode(fn, fmt.Sprintf("r%d", i), "o", LocalFile, ScopeContainer))
	}
	for _, e := range edges {
		g.Connect(nodes[e[0]], nodes[e[1]], DataEdge, fn)
	}
	return nodes
}

func reaches(edges [][2]int, from, to int) bool {
	visited := map[int]bool{from: true}
	stack := []int{from}
	for len(stack) > 0 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range edges {
			if e[0] == x && !visited[e[1]] {
				if e[1] == to {
					return true
				}
				visited[e[1]] = true
				stack = append(stack, e[1])
			}
		}
	}
	return false
}

func TestPopulateAncestorsDAG(t *testing.T) {
	edges := [][2]int{{0, 1}, {1, 2}, {0, 3}, {3, 2}, {2, 4}, {5, 4}, {6, 7}}
	g := NewGraph("dag")
	fn := NewFunction("F", "AWS::Serverless::Function", "python3.12", "src/f")
	nodes := chain(g, fn, 8, edges)

	var buf bytes.Buffer
	if residual := g.PopulateAncestors(config.NewLogGroupWriter(config.WarnLevel, &buf)); residual != 0 {
		t.Fatalf("expected no residual in-degree on a DAG, got %d", residual)
	}
	if buf.Len() != 0 {
		t.Errorf("no warning expected on a DAG, got %q", buf.String())
	}
	for a := range nodes {
		for b := range nodes {
			got := nodes[a].AncestorNodes[nodes[b]]
			want := reaches(edges, b, a)
			if got != want {
				t.Errorf("ancestor(%d) contains %d: got %v, want %v", a, b, got, want)
			}
		}
	}
	if !nodes[4].AncestorFunctions[fn] {
		t.Errorf("function should be an ancestor function of node 4")
	}
	if len(nodes[0].AncestorFunctions) != 0 {
		t.Errorf("root node should have no ancestor function")
	}
}

func TestPopulateAncestorsAcrossFunctions(t *testing.T) {
	g := NewGraph("app")
	f1 := NewFunction("Upload", "AWS::Serverless::Function", "python3.12", "src/upload")
	f2 := NewFunction("Resize", "AWS::Serverless::Function", "python3.12", "src/resize")
	a := g.AddNode(newTestNode(f1, "bucket", "key", S3Bucket, ScopeGlobal))
	b := g.AddNode(newTestNode(f2, "bucket", "key", S3Bucket, ScopeGlobal))
	c := g.AddNode(newTestNode(f2, "tmp", "file", LocalFile, ScopeInvocation))
	g.Connect(a, b, IndirectEdge, nil)
	g.Connect(b, c, DataEdge, f2)
	// metadata edges do not carry data
	g.Connect(c, a, MetadataEdge, f2)

	if r := g.PopulateAncestors(config.NewLogGroupWriter(config.ErrLevel, &bytes.Buffer{})); r != 0 {
		t.Fatalf("metadata edges should be ignored, got residual %d", r)
	}
	if !c.AncestorNodes[a] || !c.AncestorNodes[b] {
		t.Errorf("c should have a and b as ancestors, got %v", c.Ancestors())
	}
	if !c.AncestorFunctions[f1] || !c.AncestorFunctions[f2] {
		t.Errorf("c should have both functions as ancestors, got %v", c.Functions())
	}
	if len(a.AncestorNodes) != 0 {
		t.Errorf("a should have no ancestor")
	}
}

func TestPopulateAncestorsCycle(t *testing.T) {
	g := NewGraph("cycle")
	fn := NewFunction("F", "AWS::Serverless::Function", "python3.12", "src/f")
	nodes := chain(g, fn, 4, [][2]int{{0, 1}, {1, 2}, {2, 1}, {2, 3}})

	var buf bytes.Buffer
	logger := config.NewLogGroupWriter(config.WarnLevel, &buf)
	logger.SetAllFlags(0)
	residual := g.PopulateAncestors(logger)
	if residual != 3 {
		t.Errorf("expected 3 nodes with residual in-degree, got %d", residual)
	}
	out := buf.String()
	if !strings.Contains(out, "possible cycle") {
		t.Errorf("expected a possible cycle warning, got %q", out)
	}
	if !strings.Contains(out, "cycle:") {
		t.Errorf("expected the cycle to be named, got %q", out)
	}
	// the sets after the cycle are partial, never larger than the reachable nodes
	if !nodes[1].AncestorNodes[nodes[0]] {
		t.Errorf("r1 should have r0 as ancestor")
	}
	if nodes[3].AncestorNodes[nodes[0]] || nodes[3].AncestorNodes[nodes[2]] {
		t.Errorf("r3 was never reached by propagation, got ancestors %v", nodes[3].AncestorNodes)
	}
}
