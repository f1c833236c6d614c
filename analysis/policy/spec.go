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

package policy

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/awslabs/adg-policy/analysis/adg"
	"gopkg.in/yaml.v3"
)

// A Record is the developer-editable entry of one governed edge
type Record struct {
	ID       int    `yaml:"id" json:"id"`
	Source   string `yaml:"source" json:"source"`
	Sink     string `yaml:"sink" json:"sink"`
	Read     string `yaml:"read" json:"read"`
	Write    string `yaml:"write" json:"write"`
	Function string `yaml:"function,omitempty" json:"function,omitempty"`
}

// A Spec is the persisted policy specification of an application: one record per governed edge, in edge order.
type Spec []Record

// BuildSpec returns the policy specification of the governed edges of g, with their current policies
func BuildSpec(g *adg.Graph) Spec {
	var spec Spec
	for _, e := range g.Edges() {
		if !e.IsGoverned() {
			continue
		}
		r := Record{
			ID:     e.ID,
			Source: e.Source.String(),
			Sink:   e.Sink.String(),
			Read:   orAllow(e.ReadPolicy),
			Write:  orAllow(e.WritePolicy),
		}
		if e.Function != nil {
			r.Function = e.Function.Name
		}
		spec = append(spec, r)
	}
	return spec
}

func orAllow(text string) string {
	if text == "" {
		return Allow
	}
	return text
}

// WriteTo writes the specification in YAML to w
func (s Spec) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return 0, fmt.Errorf("could not encode policy specification: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, err
	}
	return buf.WriteTo(w)
}

// Write writes the specification to the file at path, creating its directory if needed
func (s Spec) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create directory of policy specification: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create policy specification: %w", err)
	}
	if _, err := s.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ParseSpec decodes a specification. JSON input is accepted.
func ParseSpec(b []byte) (Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("could not decode policy specification: %w", err)
	}
	return s, nil
}

// LoadSpec reads the specification at path
func LoadSpec(path string) (Spec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read policy specification: %w", err)
	}
	return ParseSpec(b)
}

// Attach sets the policies of the records on the edges of g. Every record must designate an edge of g by its
// identifier, with the same source and sink, and its policies must parse.
func (s Spec) Attach(g *adg.Graph) error {
	for _, r := range s {
		e, ok := g.EdgeByID(r.ID)
		if !ok {
			return fmt.Errorf("policy record %d does not match any edge", r.ID)
		}
		if e.Source.String() != r.Source || e.Sink.String() != r.Sink {
			return fmt.Errorf("policy record %d is %s -> %s but the edge is %s -> %s", r.ID, r.Source, r.Sink,
				e.Source, e.Sink)
		}
		read, err := Parse(r.Read)
		if err != nil {
			return fmt.Errorf("read policy of record %d: %w", r.ID, err)
		}
		write, err := Parse(r.Write)
		if err != nil {
			return fmt.Errorf("write policy of record %d: %w", r.ID, err)
		}
		e.ReadPolicy = read.Text
		e.WritePolicy = write.Text
	}
	return nil
}
