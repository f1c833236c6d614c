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

// Package adg defines the application dependency graph: the nodes, edges, functions and resources of a serverless
// application, and the passes that run over the whole graph once it is assembled.
//
// Nodes and edges have a structural identity (see [NodeKey] and [EdgeKey]). Inserting a node or an edge that is
// structurally equal to an existing one returns the existing instance, which makes it possible to merge the
// fragments produced for each function independently.
package adg

import (
	"fmt"
	"strings"
)

// RefTag indicates whether the name of a reference is known at analysis time.
type RefTag string

const (
	// Static references are literals known at analysis time
	Static RefTag = "STATIC"
	// Dynamic references are only known at runtime
	Dynamic RefTag = "DYNAMIC"
)

// ParseRefTag returns the tag named s
func ParseRefTag(s string) (RefTag, error) {
	switch RefTag(strings.ToUpper(strings.TrimSpace(s))) {
	case Static:
		return Static, nil
	case Dynamic:
		return Dynamic, nil
	}
	return "", fmt.Errorf("unknown reference tag %q", s)
}

// A Reference is a named identifier of a resource or an object. Two references are equal when both their tag and
// their name are equal.
type Reference struct {
	Tag  RefTag
	Name string
}

// StaticRef returns a static reference named name
func StaticRef(name string) Reference { return Reference{Tag: Static, Name: name} }

// DynamicRef returns a dynamic reference named name
func DynamicRef(name string) Reference { return Reference{Tag: Dynamic, Name: name} }

// IsStatic returns true when the reference name is a literal
func (r Reference) IsStatic() bool { return r.Tag == Static }

// String returns the name of the reference, prefixed by $ when the reference is dynamic
func (r Reference) String() string {
	if r.Tag == Dynamic {
		return "$" + r.Name
	}
	return r.Name
}

// Scope is the lifetime of the binding represented by a node
type Scope string

const (
	// ScopeContainer bindings live as long as the execution container
	ScopeContainer Scope = "CONTAINER"
	// ScopeInvocation bindings live for a single invocation
	ScopeInvocation Scope = "INVOCATION"
	// ScopeGlobal bindings are the resource itself
	ScopeGlobal Scope = "GLOBAL"
)

// ParseScope returns the scope named s
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToUpper(strings.TrimSpace(s))) {
	case ScopeContainer:
		return ScopeContainer, nil
	case ScopeInvocation:
		return ScopeInvocation, nil
	case ScopeGlobal:
		return ScopeGlobal, nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

// InterfaceType is the role of a node in a flow reported by the static analyzer
type InterfaceType string

const (
	Source InterfaceType = "SOURCE"
	Sink   InterfaceType = "SINK"
)

// ObjectKind is the kind of object a node represents. The set of kinds is open: the static analyzer may report
// kinds that have no constant here.
type ObjectKind string

const (
	S3Bucket      ObjectKind = "S3_BUCKET"
	GCPBucket     ObjectKind = "GCP_BUCKET"
	DynamoDBTable ObjectKind = "DYNAMODB_TABLE"
	SQSQueue      ObjectKind = "SQS_QUEUE"
	LocalFile     ObjectKind = "LOCAL_FILE"
	Param         ObjectKind = "PARAM"
	Return        ObjectKind = "RETURN"
	LambdaInvoke  ObjectKind = "LAMBDA_INVOKE"
)

// EdgeTag is the kind of flow an edge represents
type EdgeTag string

const (
	// DataEdge is an intra-function data flow
	DataEdge EdgeTag = "DATA"
	// MetadataEdge is a flow of object properties or conditions
	MetadataEdge EdgeTag = "METADATA"
	// IndirectEdge is an inferred cross-function flow, through a shared resource or through sequencing
	IndirectEdge EdgeTag = "INDIRECT"
)

// Position is a source position inside a function's code
type Position struct {
	File      string
	Line      int
	Column    int
	EndLine   int
	EndColumn int
}

// IsValid returns true when the position points to a line
func (p Position) IsValid() bool { return p.Line > 0 }

func (p Position) String() string {
	if !p.IsValid() {
		return "-"
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}
