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
	"io"
	"strconv"

	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/multi"
)

type dotNode struct {
	node *Node
}

func (n dotNode) ID() int64 { return int64(n.node.ID) }

func (n dotNode) DOTID() string { return fmt.Sprintf("n%d", n.node.ID) }

func (n dotNode) Attributes() []encoding.Attribute {
	shape := "ellipse"
	if n.node.IsGlobal() {
		shape = "box"
	}
	label := fmt.Sprintf("%s\n%s:%s", n.node.Kind, n.node.Resource, n.node.Object)
	if n.node.Function != nil {
		label = n.node.Function.Name + "\n" + label
	}
	return []encoding.Attribute{
		{Key: "label", Value: strconv.Quote(label)},
		{Key: "shape", Value: shape},
	}
}

type dotLine struct {
	multi.Line
	edge *Edge
}

func (l dotLine) Attributes() []encoding.Attribute {
	attrs := []encoding.Attribute{{Key: "label", Value: strconv.Quote(fmt.Sprintf("%d:%s", l.edge.ID, l.edge.Tag))}}
	switch l.edge.Tag {
	case IndirectEdge:
		attrs = append(attrs, encoding.Attribute{Key: "style", Value: "dashed"})
	case MetadataEdge:
		attrs = append(attrs, encoding.Attribute{Key: "style", Value: "dotted"})
	}
	return attrs
}

// WriteDOT writes the graph in Graphviz DOT format to w. Metadata edges are rendered dotted and indirect edges
// dashed.
func (g *Graph) WriteDOT(w io.Writer) error {
	mg := multi.NewDirectedGraph()
	nodes := g.Nodes()
	for _, n := range nodes {
		mg.AddNode(dotNode{node: n})
	}
	for _, edges := range [][]*Edge{g.Edges(), g.MetadataEdges()} {
		for _, e := range edges {
			line := mg.NewLine(dotNode{node: e.Source}, dotNode{node: e.Sink}).(multi.Line)
			mg.SetLine(dotLine{Line: line, edge: e})
		}
	}
	name := g.Name
	if name == "" {
		name = "adg"
	}
	b, err := dot.MarshalMulti(mg, name, "", "  ")
	if err != nil {
		return fmt.Errorf("could not render graph: %w", err)
	}
	_, err = w.Write(b)
	return err
}
