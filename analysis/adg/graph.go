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
	"fmt"
	"sync"
)

// Graph is an application dependency graph. Insertions are safe for concurrent use; reads are meant to happen
// once assembly is done.
type Graph struct {
	Name string

	// Functions and Resources are the declared entities of the application
	Functions []*Function
	Resources []Entity

	mu            sync.Mutex
	nodes         []*Node
	nodeIndex     map[NodeKey]*Node
	edges         []*Edge
	metadataEdges []*Edge
	edgeIndex     map[EdgeKey]*Edge
	edgeByID      map[int]*Edge
	edgeCount     int
}

// NewGraph returns an empty graph
func NewGraph(name string) *Graph {
	return &Graph{
		Name:      name,
		nodeIndex: map[NodeKey]*Node{},
		edgeIndex: map[EdgeKey]*Edge{},
		edgeByID:  map[int]*Edge{},
	}
}

// AddNode inserts n in the graph, or returns the node structurally equal to n if there is one. The source and sink
// flags of n are merged into the returned node.
func (g *Graph) AddNode(n *Node) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addNode(n)
}

func (g *Graph) addNode(n *Node) *Node {
	key := n.Key()
	if existing, ok := g.nodeIndex[key]; ok {
		existing.IsSource = existing.IsSource || n.IsSource
		existing.IsSink = existing.IsSink || n.IsSink
		return existing
	}
	n.ID = len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.nodeIndex[key] = n
	if fn := n.Function; fn != nil {
		fn.nodes = append(fn.nodes, n)
		switch n.Kind {
		case Param:
			fn.Param = n
		case Return:
			fn.Return = n
		}
	}
	return n
}

// GetOrCreate returns the node matching the identity fields of criteria, inserting criteria if there is none.
func (g *Graph) GetOrCreate(criteria Node) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.nodeIndex[criteria.Key()]; ok {
		return existing
	}
	n := criteria
	n.Out, n.In = nil, nil
	return g.addNode(&n)
}

// Lookup returns the node with identity key
func (g *Graph) Lookup(key NodeKey) (*Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodeIndex[key]
	return n, ok
}

// AddEdge inserts e in the graph, or returns the edge structurally equal to e if there is one. Both endpoints must
// already be nodes of the graph.
func (g *Graph) AddEdge(e *Edge) *Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := e.Key()
	if existing, ok := g.edgeIndex[key]; ok {
		return existing
	}
	e.ID = g.edgeCount
	g.edgeCount++
	g.edgeIndex[key] = e
	if e.Tag == MetadataEdge {
		g.metadataEdges = append(g.metadataEdges, e)
	} else {
		g.edges = append(g.edges, e)
		g.edgeByID[e.ID] = e
	}
	e.Source.Out = append(e.Source.Out, e)
	e.Sink.In = append(e.Sink.In, e)
	return e
}

// Connect adds an edge of tag between source and sink. The edge positions are the positions of the nodes.
func (g *Graph) Connect(source, sink *Node, tag EdgeTag, fn *Function) *Edge {
	return g.AddEdge(&Edge{
		Source:         source,
		Sink:           sink,
		Tag:            tag,
		Function:       fn,
		SourcePosition: source.Position,
		SinkPosition:   sink.Position,
	})
}

// Nodes returns the nodes of the graph in insertion order
func (g *Graph) Nodes() []*Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Node(nil), g.nodes...)
}

// Edges returns the data and indirect edges of the graph in insertion order
func (g *Graph) Edges() []*Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Edge(nil), g.edges...)
}

// MetadataEdges returns the metadata edges of the graph in insertion order
func (g *Graph) MetadataEdges() []*Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Edge(nil), g.metadataEdges...)
}

// NodesOf returns the nodes owned by fn
func (g *Graph) NodesOf(fn *Function) []*Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Node(nil), fn.nodes...)
}

// EdgeByID returns the data or indirect edge with identifier id
func (g *Graph) EdgeByID(id int) (*Edge, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.edgeByID[id]
	return e, ok
}

// FunctionNamed returns the function named name
func (g *Graph) FunctionNamed(name string) (*Function, bool) {
	for _, f := range g.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

func (g *Graph) String() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf("Graph with %d nodes, %d edges and %d metadata edges",
		len(g.nodes), len(g.edges), len(g.metadataEdges))
}
