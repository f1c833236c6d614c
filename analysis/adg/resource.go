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
	"path"
	"strings"
)

// Entity is either a *Resource or a *Function
type Entity interface {
	Base() *Resource
}

// A Resource is a declared resource of the application: a bucket, a table, a queue, an API, or a function.
type Resource struct {
	// Name is the logical name of the resource in the template
	Name string
	// Type is the declared type, e.g. AWS::S3::Bucket
	Type string
	// Metadata holds the declared properties of the resource
	Metadata map[string]any
	// Region is the region the resource is deployed in, when known
	Region string
	// Dependencies are the entities that consume the output of this resource, in declaration order
	Dependencies []Entity
	// Trigger is the entity whose output this resource consumes, if any
	Trigger Entity
}

// NewResource returns a resource with an empty metadata map
func NewResource(name, typ string) *Resource {
	return &Resource{Name: name, Type: typ, Metadata: map[string]any{}}
}

// Base returns the resource itself
func (r *Resource) Base() *Resource { return r }

func (r *Resource) String() string { return r.Name }

// physicalNameProperties maps resource types to the property holding the physical name of the resource
var physicalNameProperties = map[string]string{
	"AWS::S3::Bucket":               "BucketName",
	"AWS::DynamoDB::Table":          "TableName",
	"AWS::Serverless::SimpleTable":  "TableName",
	"AWS::SQS::Queue":               "QueueName",
	"AWS::Serverless::StateMachine": "Name",
	"GCP::Storage::Bucket":          "Name",
}

// PhysicalName returns the physical name declared for the resource, or its logical name when the template does not
// declare a literal one.
func (r *Resource) PhysicalName() string {
	if key, ok := physicalNameProperties[r.Type]; ok {
		if s, ok := r.Metadata[key].(string); ok && s != "" {
			return s
		}
	}
	return r.Name
}

// kindsOfTypes maps resource types to the kind of the nodes that represent them in function code
var kindsOfTypes = map[string]ObjectKind{
	"AWS::S3::Bucket":              S3Bucket,
	"AWS::DynamoDB::Table":         DynamoDBTable,
	"AWS::Serverless::SimpleTable": DynamoDBTable,
	"AWS::SQS::Queue":              SQSQueue,
	"GCP::Storage::Bucket":         GCPBucket,
}

// Kind returns the object kind of the nodes representing this resource. The boolean is false when the type of
// the resource is not a data store.
func (r *Resource) Kind() (ObjectKind, bool) {
	k, ok := kindsOfTypes[r.Type]
	return k, ok
}

// AddDependency records that to consumes the output of from
func AddDependency(from Entity, to Entity) {
	b := from.Base()
	b.Dependencies = append(b.Dependencies, to)
	to.Base().Trigger = from
}

// Span is the extent of a statement in a function's code
type Span struct {
	StartLine int
	EndLine   int
	// Indent is the leading whitespace of the first line of the statement
	Indent string
}

// CodeTree answers position queries on the code of a function
type CodeTree interface {
	// StatementAt returns the innermost statement enclosing line
	StatementAt(line int) (Span, bool)
	// BodyStart returns the first statement of the body of the function defined at defLine
	BodyStart(defLine int) (Span, bool)
	// PreambleLine returns the line before which file-level imports are inserted
	PreambleLine() int
}

// A Function is a resource with code.
type Function struct {
	Resource
	// Runtime is the runtime identifier, e.g. python3.12
	Runtime string
	// Path is the directory of the code of the function, relative to the application root
	Path string
	// Handler is the entry point of the function, e.g. app.lambda_handler
	Handler string
	// Code is the parsed code of the function. May be nil until instrumentation.
	Code CodeTree

	// Param is the node representing the event the function is invoked with
	Param *Node
	// Return is the node representing the value returned by the function
	Return *Node

	nodes []*Node
}

// NewFunction returns a new function
func NewFunction(name, typ, runtime, path string) *Function {
	return &Function{
		Resource: Resource{Name: name, Type: typ, Metadata: map[string]any{}},
		Runtime:  runtime,
		Path:     path,
	}
}

func (f *Function) String() string {
	return fmt.Sprintf("%s (%s)", f.Name, f.Path)
}

const (
	Python     = "python"
	JavaScript = "javascript"
	Go         = "go"
)

// Language returns the language of the runtime of the function, or "" if the runtime is not supported
func (f *Function) Language() string {
	switch {
	case strings.HasPrefix(f.Runtime, "python"):
		return Python
	case strings.HasPrefix(f.Runtime, "nodejs"):
		return JavaScript
	case strings.HasPrefix(f.Runtime, "go"), strings.HasPrefix(f.Runtime, "provided"):
		return Go
	}
	return ""
}

// HandlerFile returns the path of the file defining the entry point of the function, relative to the application
// root. Go functions are built from their main.go file.
func (f *Function) HandlerFile() string {
	switch f.Language() {
	case Python:
		return path.Join(f.Path, handlerModule(f.Handler)+".py")
	case JavaScript:
		return path.Join(f.Path, handlerModule(f.Handler)+".js")
	case Go:
		return path.Join(f.Path, "main.go")
	}
	return f.Path
}

// HandlerName returns the name of the entry point function, e.g. lambda_handler for app.lambda_handler
func (f *Function) HandlerName() string {
	if i := strings.LastIndex(f.Handler, "."); i >= 0 {
		return f.Handler[i+1:]
	}
	if f.Language() == Go {
		return "main"
	}
	return f.Handler
}

func handlerModule(handler string) string {
	if i := strings.LastIndex(handler, "."); i >= 0 {
		return handler[:i]
	}
	if handler == "" {
		return "app"
	}
	return handler
}

// Nodes returns the nodes owned by the function, in insertion order
func (f *Function) Nodes() []*Node {
	return f.nodes
}
