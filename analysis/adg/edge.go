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

import "fmt"

// An Edge is a directed flow from Source to Sink.
type Edge struct {
	ID     int
	Source *Node
	Sink   *Node
	Tag    EdgeTag
	// Function is the function in which the flow happens. Nil for flows across functions.
	Function *Function

	SourcePosition Position
	SinkPosition   Position

	// ReadPolicy governs the source and WritePolicy governs the sink. The empty string is an unconditional allow.
	ReadPolicy  string
	WritePolicy string
}

// EdgeKey is the structural identity of an edge
type EdgeKey struct {
	Source NodeKey
	Sink   NodeKey
	Tag    EdgeTag
}

// Key returns the structural identity of the edge
func (e *Edge) Key() EdgeKey {
	return EdgeKey{Source: e.Source.Key(), Sink: e.Sink.Key(), Tag: e.Tag}
}

// IsGoverned returns true when the edge carries policies: data and indirect flows that are not internal to one
// invocation.
func (e *Edge) IsGoverned() bool {
	if e.Tag == MetadataEdge {
		return false
	}
	return e.Source.Scope != ScopeInvocation || e.Sink.Scope != ScopeInvocation
}

func (e *Edge) String() string {
	return fmt.Sprintf("%s -%d-> %s", e.Source, e.ID, e.Sink)
}
