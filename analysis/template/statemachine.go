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

package template

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/awslabs/adg-policy/analysis/adg"
	"github.com/awslabs/adg-policy/analysis/config"
)

// DefaultHandler is the handler of functions named by a state machine definition only
const DefaultHandler = "app.lambda_handler"

type states struct {
	startAt string
	states  map[string]map[string]any
	subs    map[string]string
}

func parseStates(def any, subs map[string]string) (*states, error) {
	s := &states{startAt: str(get(def, "StartAt")), states: map[string]map[string]any{}, subs: subs}
	for name, st := range mapping(get(def, "States")) {
		s.states[name] = mapping(st)
	}
	if _, ok := s.states[s.startAt]; !ok {
		return nil, fmt.Errorf("start state %q is not defined", s.startAt)
	}
	return s, nil
}

// stateMachineDefinition returns the states of the state machine r, from its inline Definition or from the file
// its DefinitionUri points to
func stateMachineDefinition(r *adg.Resource, dir string) (*states, error) {
	subs := map[string]string{}
	for k, v := range mapping(r.Metadata["DefinitionSubstitutions"]) {
		if name := refName(v); name != "" {
			subs[k] = name
		}
	}
	def := r.Metadata["Definition"]
	if def == nil {
		uri := str(r.Metadata["DefinitionUri"])
		if uri == "" {
			return nil, fmt.Errorf("no Definition or local DefinitionUri")
		}
		b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(uri)))
		if err != nil {
			return nil, fmt.Errorf("could not read definition: %w", err)
		}
		def, err = parseDocument(b)
		if err != nil {
			return nil, fmt.Errorf("could not parse definition %s: %w", uri, err)
		}
	}
	return parseStates(def, subs)
}

// functionName returns the name of the function a Task state invokes, or "" if the state invokes no function
func (s *states) functionName(st map[string]any) (string, error) {
	name := str(get(st, "Parameters", "FunctionName"))
	if name == "" {
		name = str(st["Resource"])
		if !strings.Contains(name, ":function:") && !strings.HasPrefix(name, "${") {
			return "", nil
		}
	}
	if strings.HasPrefix(name, "${") && strings.HasSuffix(name, "}") {
		sub, ok := s.subs[name[2:len(name)-1]]
		if !ok {
			return "", fmt.Errorf("no substitution for %s", name)
		}
		name = sub
	}
	if _, after, ok := strings.Cut(name, ":function:"); ok {
		name, _, _ = strings.Cut(after, ":")
	}
	return name, nil
}

// targets returns the names of the functions that run first when the state machine transitions to state name,
// skipping over Choice and Pass states
func (s *states) targets(name string, seen map[string]bool, logger *config.LogGroup) ([]string, error) {
	if seen[name] {
		return nil, nil
	}
	seen[name] = true
	st, ok := s.states[name]
	if !ok {
		return nil, fmt.Errorf("transition to undefined state %q", name)
	}
	switch typ := str(st["Type"]); typ {
	case "Task":
		fn, err := s.functionName(st)
		if err != nil || fn == "" {
			return nil, err
		}
		return []string{fn}, nil
	case "Choice":
		var next []string
		for _, c := range sequence(st["Choices"]) {
			next = append(next, str(mapping(c)["Next"]))
		}
		if d := str(st["Default"]); d != "" {
			next = append(next, d)
		}
		return s.targetsOf(next, seen, logger)
	case "Pass", "Wait":
		if n := str(st["Next"]); n != "" {
			return s.targets(n, seen, logger)
		}
		return nil, nil
	case "Succeed", "Fail":
		return nil, nil
	default:
		logger.Warnf("Unsupported state type %s of state %s", typ, name)
		return nil, nil
	}
}

func (s *states) targetsOf(names []string, seen map[string]bool, logger *config.LogGroup) ([]string, error) {
	var res []string
	for _, n := range names {
		t, err := s.targets(n, seen, logger)
		if err != nil {
			return nil, err
		}
		res = append(res, t...)
	}
	return res, nil
}

// successors returns the states a Task state transitions to: its Next state and the Next state of its catchers
func successors(st map[string]any) []string {
	var next []string
	if n := str(st["Next"]); n != "" {
		next = append(next, n)
	}
	for _, c := range sequence(st["Catch"]) {
		if n := str(mapping(c)["Next"]); n != "" {
			next = append(next, n)
		}
	}
	return next
}

// chain adds a dependency from every function of a Task state to the functions its successors run. Functions are
// resolved by name with fn. It returns the functions run by the start state.
func (s *states) chain(fn func(name string) (*adg.Function, error), logger *config.LogGroup) ([]*adg.Function,
	error) {
	resolve := func(names []string) ([]*adg.Function, error) {
		var res []*adg.Function
		for _, n := range names {
			f, err := fn(n)
			if err != nil {
				return nil, err
			}
			res = append(res, f)
		}
		return res, nil
	}
	startNames, err := s.targets(s.startAt, map[string]bool{}, logger)
	if err != nil {
		return nil, err
	}
	start, err := resolve(startNames)
	if err != nil {
		return nil, err
	}
	// visit states from the start so that functions are created in execution order
	order := []string{s.startAt}
	visited := map[string]bool{s.startAt: true}
	for i := 0; i < len(order); i++ {
		st := s.states[order[i]]
		next := successors(st)
		for _, c := range sequence(st["Choices"]) {
			next = append(next, str(mapping(c)["Next"]))
		}
		if d := str(st["Default"]); d != "" {
			next = append(next, d)
		}
		for _, n := range next {
			if _, ok := s.states[n]; ok && !visited[n] {
				visited[n] = true
				order = append(order, n)
			}
		}
	}
	for _, name := range order {
		st := s.states[name]
		if str(st["Type"]) != "Task" {
			continue
		}
		srcName, err := s.functionName(st)
		if err != nil {
			return nil, err
		}
		if srcName == "" {
			continue
		}
		src, err := fn(srcName)
		if err != nil {
			return nil, err
		}
		targetNames, err := s.targetsOf(successors(st), map[string]bool{}, logger)
		if err != nil {
			return nil, err
		}
		targets, err := resolve(targetNames)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			addDependency(src, t)
		}
	}
	return start, nil
}

// chainStates chains the functions of the state machine sm, and makes the triggers of sm trigger its start
// functions instead
func (t *Template) chainStates(sm adg.Entity, s *states, logger *config.LogGroup) error {
	start, err := s.chain(func(name string) (*adg.Function, error) {
		f, ok := t.Function(name)
		if !ok {
			return nil, fmt.Errorf("task invokes undeclared function %q", name)
		}
		return f, nil
	}, logger)
	if err != nil {
		return err
	}
	for _, parent := range t.Resources {
		if !hasDependency(parent, sm) {
			continue
		}
		removeDependency(parent, sm)
		for _, f := range start {
			addDependency(parent, f)
		}
	}
	return nil
}

func hasDependency(from, to adg.Entity) bool {
	for _, d := range from.Base().Dependencies {
		if d == to {
			return true
		}
	}
	return false
}

// ParseStateMachine parses a state machine definition as the whole template of an application. Each function
// named by a Task state is a function with code in the directory of its name under srcDir.
func ParseStateMachine(b []byte, srcDir string, logger *config.LogGroup) (*Template, error) {
	def, err := parseDocument(b)
	if err != nil {
		return nil, err
	}
	s, err := parseStates(def, map[string]string{})
	if err != nil {
		return nil, err
	}
	t := &Template{}
	_, err = s.chain(func(name string) (*adg.Function, error) {
		if f, ok := t.Function(name); ok {
			return f, nil
		}
		f := adg.NewFunction(name, FunctionType, DefaultRuntime, path.Join(filepath.ToSlash(srcDir), name))
		f.Handler = DefaultHandler
		t.addFunction(f)
		return f, nil
	}, logger)
	if err != nil {
		return nil, err
	}
	return t, nil
}
