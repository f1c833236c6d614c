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
	"sort"
)

// A Node is one (function, resource reference, object reference, kind, scope) binding at one source position.
type Node struct {
	// ID is assigned when the node is inserted in a graph
	ID int

	Resource Reference
	Object   Reference
	Kind     ObjectKind
	Function *Function
	Position Position
	Scope    Scope

	// IsSource and IsSink are set by every analyzer descriptor that mentions the node
	IsSource bool
	IsSink   bool

	// Attrs holds the per-node facts accumulated during assembly
	Attrs Attrs

	Out []*Edge
	In  []*Edge

	// AncestorNodes and AncestorFunctions are written by PopulateAncestors
	AncestorNodes     map[*Node]bool
	AncestorFunctions map[*Function]bool
}

// Attrs are the mutable attributes of a node
type Attrs struct {
	// PotentialResources are the declared resources a GLOBAL node might alias, in insertion order
	PotentialResources []*Resource
	// Mapped is the declared resource a static reference resolved to, if any
	Mapped *Resource
	// Extra holds free-form annotations
	Extra map[string]string
}

// NodeKey is the structural identity of a node
type NodeKey struct {
	Resource Reference
	Kind     ObjectKind
	Object   Reference
	Function string
	Scope    Scope
}

// Key returns the structural identity of the node
func (n *Node) Key() NodeKey {
	k := NodeKey{Resource: n.Resource, Kind: n.Kind, Object: n.Object, Scope: n.Scope}
	if n.Function != nil {
		k.Function = n.Function.Name
	}
	return k
}

// String returns "<id>:<resource>:<object>", the form used in policy specifications
func (n *Node) String() string {
	return fmt.Sprintf("%d:%s:%s", n.ID, n.Resource, n.Object)
}

// Describe returns a human readable description of the node
func (n *Node) Describe() string {
	fn := ""
	if n.Function != nil {
		fn = n.Function.Name
	}
	return fmt.Sprintf("(%s:%s:%s:%s %s)", fn, n.Kind, n.Resource, n.Object, n.Scope)
}

// IsGlobal returns true when the node represents a resource itself
func (n *Node) IsGlobal() bool { return n.Scope == ScopeGlobal }

// AddPotentialResource adds r to the potential resources of the node. Returns false if r was already present.
func (n *Node) AddPotentialResource(r *Resource) bool {
	for _, x := range n.Attrs.PotentialResources {
		if x == r {
			return false
		}
	}
	n.Attrs.PotentialResources = append(n.Attrs.PotentialResources, r)
	return true
}

// SharesPotentialResource returns true when the potential resources of n and m intersect
func (n *Node) SharesPotentialResource(m *Node) bool {
	for _, x := range n.Attrs.PotentialResources {
		for _, y := range m.Attrs.PotentialResources {
			if x == y {
				return true
			}
		}
	}
	return false
}

// Ancestors returns the ancestor nodes ordered by id
func (n *Node) Ancestors() []*Node {
	res := make([]*Node, 0, len(n.AncestorNodes))
	for a := range n.AncestorNodes {
		res = append(res, a)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Functions returns the ancestor functions ordered by name
func (n *Node) Functions() []*Function {
	res := make([]*Function, 0, len(n.AncestorFunctions))
	for f := range n.AncestorFunctions {
		res = append(res, f)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}
