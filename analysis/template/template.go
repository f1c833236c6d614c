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

// Package template reads the infrastructure template of a serverless application: its functions, its resources,
// and the triggering relations between them.
//
// Three dialects are supported. SAM templates declare functions with their event sources, and may declare state
// machines whose definition chains functions. StepFunction templates are a single state machine definition, whose
// Task states name the functions. Terraform configurations of Google Cloud applications declare storage buckets and
// Cloud Functions triggered by bucket events.
package template

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/awslabs/adg-policy/analysis/adg"
	"github.com/awslabs/adg-policy/analysis/config"
	"gopkg.in/yaml.v3"
)

const (
	FunctionType     = "AWS::Serverless::Function"
	StateMachineType = "AWS::Serverless::StateMachine"
	APIType          = "AWS::Serverless::Api"
	RestAPIType      = "AWS::ApiGateway::RestApi"

	// DefaultRuntime is the runtime of functions whose template does not declare one
	DefaultRuntime = "python3.12"
)

// A Template is the parsed infrastructure of an application
type Template struct {
	// Functions are the functions of the application, in declaration order
	Functions []*adg.Function
	// Resources are all the entities of the application, functions included, in declaration order
	Resources []adg.Entity
}

// Function returns the function with logical or physical name name
func (t *Template) Function(name string) (*adg.Function, bool) {
	for _, f := range t.Functions {
		if f.Name == name || str(f.Metadata["FunctionName"]) == name {
			return f, true
		}
	}
	return nil, false
}

// Resource returns the entity with logical name name
func (t *Template) Resource(name string) (adg.Entity, bool) {
	for _, r := range t.Resources {
		if r.Base().Name == name {
			return r, true
		}
	}
	return nil, false
}

// Load reads the template of the application configured by cfg
func Load(cfg *config.Config, logger *config.LogGroup) (*Template, error) {
	var t *Template
	var err error
	if cfg.TemplateType == config.TemplateTerraform {
		t, err = LoadTerraform(cfg.TemplatePath, logger)
	} else {
		var b []byte
		if b, err = os.ReadFile(cfg.TemplatePath); err != nil {
			return nil, fmt.Errorf("could not read template: %w", err)
		}
		if cfg.TemplateType == config.TemplateStepFunction {
			t, err = ParseStateMachine(b, cfg.SrcDir, logger)
		} else {
			t, err = ParseSAM(b, filepath.Dir(cfg.TemplatePath), logger)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("could not parse template %s: %w", cfg.TemplatePath, err)
	}
	logger.Infof("Loaded %d function(s) and %d resource(s) from %s", len(t.Functions),
		len(t.Resources)-len(t.Functions), cfg.TemplatePath)
	return t, nil
}

func parseDocument(b []byte) (any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return decode(&doc)
}

// ParseSAM parses a SAM template. State machine definitions referred to by a DefinitionUri are read relative to
// dir.
func ParseSAM(b []byte, dir string, logger *config.LogGroup) (*Template, error) {
	doc, err := parseDocument(b)
	if err != nil {
		return nil, err
	}
	resources := mapping(get(doc, "Resources"))
	if resources == nil {
		return nil, fmt.Errorf("template has no Resources section")
	}
	globals := mapping(get(doc, "Globals", "Function"))

	t := &Template{}
	for _, name := range declarationOrder(b, resources) {
		decl := mapping(resources[name])
		typ := str(decl["Type"])
		props := mapping(decl["Properties"])
		if props == nil {
			props = map[string]any{}
		}
		switch {
		case typ == FunctionType:
			t.addFunction(newFunction(name, props, globals))
		case typ == StateMachineType, typ == APIType, typ == RestAPIType:
			t.addResource(name, typ, props)
		default:
			if _, ok := adg.NewResource(name, typ).Kind(); !ok {
				logger.Warnf("Unsupported resource type %s of %s", typ, name)
				continue
			}
			t.addResource(name, typ, props)
		}
	}

	for _, r := range t.Resources {
		if err := t.addEventDependencies(r, logger); err != nil {
			return nil, err
		}
	}
	for _, r := range t.Resources {
		if r.Base().Type == StateMachineType {
			states, err := stateMachineDefinition(r.Base(), dir)
			if err != nil {
				return nil, fmt.Errorf("state machine %s: %w", r.Base().Name, err)
			}
			if err := t.chainStates(r, states, logger); err != nil {
				return nil, fmt.Errorf("state machine %s: %w", r.Base().Name, err)
			}
		}
	}
	return t, nil
}

// declarationOrder returns the keys of resources in the order of the template text
func declarationOrder(b []byte, resources map[string]any) []string {
	var doc struct {
		Resources yaml.Node `yaml:"Resources"`
	}
	var names []string
	if err := yaml.Unmarshal(b, &doc); err == nil {
		for i := 0; i+1 < len(doc.Resources.Content); i += 2 {
			names = append(names, doc.Resources.Content[i].Value)
		}
	}
	if len(names) != len(resources) {
		return sortedKeys(resources)
	}
	return names
}

func newFunction(name string, props, globals map[string]any) *adg.Function {
	prop := func(key string) string {
		if s := str(props[key]); s != "" {
			return s
		}
		return str(globals[key])
	}
	runtime := prop("Runtime")
	if runtime == "" {
		runtime = DefaultRuntime
	}
	codeURI := prop("CodeUri")
	if codeURI == "" {
		codeURI = "."
	}
	f := adg.NewFunction(name, FunctionType, runtime, path.Clean(filepath.ToSlash(codeURI)))
	f.Handler = prop("Handler")
	f.Metadata = props
	return f
}

func (t *Template) addFunction(f *adg.Function) {
	t.Functions = append(t.Functions, f)
	t.Resources = append(t.Resources, f)
}

func (t *Template) addResource(name, typ string, props map[string]any) {
	r := adg.NewResource(name, typ)
	r.Metadata = props
	t.Resources = append(t.Resources, r)
}

// addEventDependencies makes the entities emitting the events of r trigger r
func (t *Template) addEventDependencies(r adg.Entity, logger *config.LogGroup) error {
	for _, name := range sortedKeys(mapping(r.Base().Metadata["Events"])) {
		event := mapping(mapping(r.Base().Metadata["Events"])[name])
		props := mapping(event["Properties"])
		var refs []string
		switch typ := str(event["Type"]); typ {
		case "S3":
			refs = append(refs, refName(props["Bucket"]))
		case "DynamoDB":
			refs = append(refs, refName(props["Stream"]))
		case "SQS":
			refs = append(refs, refName(props["Queue"]))
		case "Api":
			if api := refName(props["RestApiId"]); api != "" {
				refs = append(refs, api)
			}
		case "EventBridgeRule":
			for _, b := range sequence(get(props, "Pattern", "detail", "bucket", "name")) {
				refs = append(refs, refName(b))
			}
		default:
			logger.Warnf("Unsupported event type %s of %s", typ, r.Base().Name)
		}
		for _, ref := range refs {
			source, ok := t.Resource(ref)
			if !ok {
				return fmt.Errorf("event %s of %s refers to undeclared resource %q", name, r.Base().Name, ref)
			}
			addDependency(source, r)
		}
	}
	return nil
}

// addDependency records that to consumes the output of from, once
func addDependency(from, to adg.Entity) {
	for _, d := range from.Base().Dependencies {
		if d == to {
			return
		}
	}
	adg.AddDependency(from, to)
}

func removeDependency(from, to adg.Entity) {
	b := from.Base()
	for i, d := range b.Dependencies {
		if d == to {
			b.Dependencies = append(b.Dependencies[:i], b.Dependencies[i+1:]...)
			return
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
