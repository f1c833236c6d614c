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

// Package sarif loads the results of the static dataflow analyzer, reported in the SARIF 2.1 format.
//
// Only the fields used to assemble the application dependency graph are decoded: the message of each result,
// holding the flow descriptors, the primary location, used to assign a result to a function, and the related
// locations, giving the source positions of the descriptors.
package sarif

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/awslabs/adg-policy/analysis/adg"
)

// Log is a SARIF log
type Log struct {
	Version string `json:"version"`
	Schema  string `json:"$schema,omitempty"`
	Runs    []Run  `json:"runs"`
}

// Run is a single run of the analyzer
type Run struct {
	Tool    Tool     `json:"tool"`
	Results []Result `json:"results"`
}

type Tool struct {
	Driver Driver `json:"driver"`
}

type Driver struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Result is one result of the analyzer. The message text contains one flow per line.
type Result struct {
	RuleID           string     `json:"ruleId"`
	Message          Message    `json:"message"`
	Locations        []Location `json:"locations,omitempty"`
	RelatedLocations []Location `json:"relatedLocations,omitempty"`
}

type Message struct {
	Text string `json:"text"`
}

type Location struct {
	ID               int              `json:"id"`
	PhysicalLocation PhysicalLocation `json:"physicalLocation"`
	Message          *Message         `json:"message,omitempty"`
}

type PhysicalLocation struct {
	ArtifactLocation ArtifactLocation `json:"artifactLocation"`
	Region           Region           `json:"region"`
}

type ArtifactLocation struct {
	URI string `json:"uri"`
}

type Region struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn,omitempty"`
	EndLine     int `json:"endLine,omitempty"`
	EndColumn   int `json:"endColumn,omitempty"`
}

// Load reads the SARIF log at path
func Load(path string) (*Log, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read analyzer results: %w", err)
	}
	return Parse(b)
}

// Parse decodes a SARIF log
func Parse(b []byte) (*Log, error) {
	log := &Log{}
	if err := json.Unmarshal(b, log); err != nil {
		return nil, fmt.Errorf("could not decode analyzer results: %w", err)
	}
	return log, nil
}

// Results returns the results of all runs
func (l *Log) Results() []Result {
	var res []Result
	for _, run := range l.Runs {
		res = append(res, run.Results...)
	}
	return res
}

// ResultsFor returns the results whose primary location is in the directory dir or below it. The directories "."
// and "" contain every result.
func (l *Log) ResultsFor(dir string) []Result {
	return l.Assign([]string{dir})[dir]
}

// Assign distributes the results among the directories dirs, keyed as given. A result belongs to the most specific
// directory containing its primary location; results in none of dirs are dropped.
func (l *Log) Assign(dirs []string) map[string][]Result {
	res := make(map[string][]Result, len(dirs))
	for _, r := range l.Results() {
		uri := r.URI()
		if uri == "" {
			continue
		}
		uri = path.Clean(strings.TrimPrefix(uri, "./"))
		best, bestLen := "", -1
		for _, dir := range dirs {
			clean := path.Clean(dir)
			if n := containment(clean, uri); n > bestLen {
				best, bestLen = dir, n
			}
		}
		if bestLen >= 0 {
			res[best] = append(res[best], r)
		}
	}
	return res
}

// containment returns how specific dir is as a container of the file uri, or -1 if dir does not contain it
func containment(dir, uri string) int {
	switch {
	case dir == ".":
		return 0
	case uri == dir || strings.HasPrefix(uri, dir+"/"):
		return len(dir)
	default:
		return -1
	}
}

// URI returns the artifact of the primary location of the result
func (r Result) URI() string {
	if len(r.Locations) == 0 {
		return ""
	}
	return r.Locations[0].PhysicalLocation.ArtifactLocation.URI
}

// Flows returns the non-empty lines of the message of the result
func (r Result) Flows() []string {
	var flows []string
	for _, line := range strings.Split(r.Message.Text, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			flows = append(flows, s)
		}
	}
	return flows
}

// RelatedPosition returns the position of the related location with identifier id. When no location declares
// that id, the location at index id-1 is used.
func (r Result) RelatedPosition(id int) (adg.Position, bool) {
	for _, loc := range r.RelatedLocations {
		if loc.ID == id {
			return loc.Position(), true
		}
	}
	if id >= 1 && id <= len(r.RelatedLocations) {
		return r.RelatedLocations[id-1].Position(), true
	}
	return adg.Position{}, false
}

// Position converts the location to a graph position
func (l Location) Position() adg.Position {
	reg := l.PhysicalLocation.Region
	return adg.Position{
		File:      l.PhysicalLocation.ArtifactLocation.URI,
		Line:      reg.StartLine,
		Column:    reg.StartColumn,
		EndLine:   reg.EndLine,
		EndColumn: reg.EndColumn,
	}
}
