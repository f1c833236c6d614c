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
	"strings"
	"sync"
	"testing"
)

func newTestNode(fn *Function, res, obj string, kind ObjectKind, scope Scope) *Node {
	return &Node{
		Resource: StaticRef(res),
		Object:   DynamicRef(obj),
		Kind:     kind,
		Function: fn,
		Scope:    scope,
	}
}

func TestAddNodeIdempotent(t *testing.T) {
	g := NewGraph("test")
	fn := NewFunction("Upload", "AWS::Serverless::Function", "python3.12", "src/upload")
	a := g.AddNode(newTestNode(fn, "bucket", "key", S3Bucket, ScopeGlobal))
	b := newTestNode(fn, "bucket", "key", S3Bucket, ScopeGlobal)
	b.Position = Position{File: "app.py", Line: 42}
	b.IsSink = true
	if got := g.AddNode(b); got != a {
		t.Fatalf("structurally equal node should return the existing instance")
	}
	if len(g.Nodes()) != 1 {
		t.Errorf("graph should have one node, got %d", len(g.Nodes()))
	}
	if !a.IsSink {
		t.Errorf("sink flag should be merged into the existing node")
	}
	if len(fn.Nodes()) != 1 {
		t.Errorf("function should own one node, got %d", len(fn.Nodes()))
	}
	// a different scope is a different node
	c := g.AddNode(newTestNode(fn, "bucket", "key", S3Bucket, ScopeInvocation))
	if c == a || c.ID != 1 {
		t.Errorf("expected a new node with id 1, got %v", c)
	}
}

func TestAddEdgeIdempotent(t *testing.T) {
	g := NewGraph("test")
	fn := NewFunction("Upload", "AWS::Serverless::Function", "python3.12", "src/upload")
	src := g.AddNode(newTestNode(fn, "event", "body", Param, ScopeInvocation))
	dst := g.AddNode(newTestNode(fn, "bucket", "key", S3Bucket, ScopeGlobal))
	e1 := g.Connect(src, dst, DataEdge, fn)
	e2 := g.Connect(src, dst, DataEdge, fn)
	if e1 != e2 {
		t.Fatalf("duplicate edge insertion should return the existing edge")
	}
	if len(g.Edges()) != 1 || len(src.Out) != 1 || len(dst.In) != 1 {
		t.Errorf("duplicate edge insertion should not grow the graph")
	}
	m := g.Connect(src, dst, MetadataEdge, fn)
	if m == e1 {
		t.Errorf("edges with different tags are different edges")
	}
	if len(g.Edges()) != 1 || len(g.MetadataEdges()) != 1 {
		t.Errorf("metadata edges should be stored separately")
	}
	if e, ok := g.EdgeByID(e1.ID); !ok || e != e1 {
		t.Errorf("edge lookup by id failed")
	}
	if _, ok := g.EdgeByID(m.ID); ok {
		t.Errorf("metadata edges are not looked up by id")
	}
}

func TestParamAndReturnNodes(t *testing.T) {
	g := NewGraph("test")
	fn := NewFunction("Resize", "AWS::Serverless::Function", "python3.12", "src/resize")
	p := g.AddNode(newTestNode(fn, "event", "event", Param, ScopeInvocation))
	r := g.AddNode(newTestNode(fn, "return", "return", Return, ScopeInvocation))
	if fn.Param != p || fn.Return != r {
		t.Errorf("param and return nodes should be registered on the function")
	}
}

func TestGetOrCreate(t *testing.T) {
	g := NewGraph("test")
	fn := NewFunction("Resize", "AWS::Serverless::Function", "python3.12", "src/resize")
	a := g.GetOrCreate(*newTestNode(fn, "bucket", "key", S3Bucket, ScopeGlobal))
	b := g.GetOrCreate(*newTestNode(fn, "bucket", "key", S3Bucket, ScopeGlobal))
	if a != b {
		t.Errorf("GetOrCreate should return the same node for equal criteria")
	}
	if n, ok := g.Lookup(a.Key()); !ok || n != a {
		t.Errorf("Lookup should find the node")
	}
}

func TestConcurrentInsertion(t *testing.T) {
	g := NewGraph("test")
	fn := NewFunction("Resize", "AWS::Serverless::Function", "python3.12", "src/resize")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			src := g.AddNode(newTestNode(fn, "event", "body", Param, ScopeInvocation))
			dst := g.AddNode(newTestNode(fn, "bucket", "key", S3Bucket, ScopeGlobal))
			g.Connect(src, dst, DataEdge, fn)
		}()
	}
	wg.Wait()
	if len(g.Nodes()) != 2 || len(g.Edges()) != 1 {
		t.Errorf("concurrent insertions should deduplicate, got %s", g)
	}
}

func TestWriteDOT(t *testing.T) {
	g := NewGraph("app")
	fn := NewFunction("Resize", "AWS::Serverless::Function", "python3.12", "src/resize")
	src := g.AddNode(newTestNode(fn, "event", "body", Param, ScopeInvocation))
	dst := g.AddNode(newTestNode(fn, "bucket", "key", S3Bucket, ScopeGlobal))
	g.Connect(src, dst, DataEdge, fn)
	g.Connect(dst, dst, IndirectEdge, nil)
	var buf bytes.Buffer
	if err := g.WriteDOT(&buf); err != nil {
		t.Fatalf("failed to write dot: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"digraph", "n0", "n1", "DATA", "INDIRECT", "dashed"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}
