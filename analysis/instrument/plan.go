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

// Package instrument plans and applies the runtime instrumentation of functions: taint seeding at invocation
// entry, taint propagation along the edges of the graph, and the assertions deferred by the resolver.
//
// Instrumentation is textual. Each insertion is a list of statements inserted before a statement of the source,
// with the indentation of that statement.
package instrument

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Kind is the purpose of an insertion
type Kind string

const (
	Preamble    Kind = "preamble"
	ParamTaint  Kind = "param-taint"
	SourceTaint Kind = "source-taint"
	SinkTaint   Kind = "sink-taint"
	SaveTaint   Kind = "save-taint"
	Assertion   Kind = "assertion"
)

// kindOrder is the order of insertions before one statement
var kindOrder = map[Kind]int{
	Preamble:    0,
	ParamTaint:  1,
	SourceTaint: 2,
	SinkTaint:   3,
	SaveTaint:   4,
	Assertion:   5,
}

// An Insertion is a list of statements inserted before the statement starting at Line of File
type Insertion struct {
	Function string `yaml:"function"`
	// File is relative to the application root
	File   string `yaml:"file"`
	Line   int    `yaml:"line"`
	Indent string `yaml:"indent,omitempty"`
	Kind   Kind   `yaml:"kind"`
	// Edge is the id of the edge the insertion instruments, if any
	Edge  int      `yaml:"edge,omitempty"`
	Lines []string `yaml:"lines"`
}

func (ins Insertion) key() string {
	return fmt.Sprintf("%s:%d:%s:%q", ins.File, ins.Line, ins.Kind, ins.Lines)
}

// A Plan is the instrumentation of an application
type Plan struct {
	Insertions []Insertion `yaml:"insertions"`
}

// Add adds ins to the plan, unless an insertion of the same statements at the same place exists
func (p *Plan) Add(ins Insertion) bool {
	if len(ins.Lines) == 0 {
		return false
	}
	k := ins.key()
	for _, x := range p.Insertions {
		if x.key() == k {
			return false
		}
	}
	p.Insertions = append(p.Insertions, ins)
	return true
}

// Files returns the files the plan modifies, sorted
func (p *Plan) Files() []string {
	seen := map[string]bool{}
	var files []string
	for _, ins := range p.Insertions {
		if !seen[ins.File] {
			seen[ins.File] = true
			files = append(files, ins.File)
		}
	}
	sort.Strings(files)
	return files
}

// For returns the insertions in file, by line and then by kind. Insertions of the same kind keep their order.
func (p *Plan) For(file string) []Insertion {
	var res []Insertion
	for _, ins := range p.Insertions {
		if ins.File == file {
			res = append(res, ins)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Line != res[j].Line {
			return res[i].Line < res[j].Line
		}
		return kindOrder[res[i].Kind] < kindOrder[res[j].Kind]
	})
	return res
}

// WriteTo writes the plan as yaml
func (p *Plan) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return 0, err
	}
	if err := enc.Close(); err != nil {
		return 0, err
	}
	return buf.WriteTo(w)
}

// Write writes the plan to the file at path, creating its directory
func (p *Plan) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = p.WriteTo(f)
	return err
}

// LoadPlan reads a plan written by Write
func LoadPlan(path string) (*Plan, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := &Plan{}
	if err := yaml.Unmarshal(b, p); err != nil {
		return nil, fmt.Errorf("could not parse plan %s: %w", path, err)
	}
	return p, nil
}
