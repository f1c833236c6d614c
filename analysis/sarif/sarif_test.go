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

package sarif

import (
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	log, err := Load(filepath.Join("testdata", "dataflows.sarif"))
	if err != nil {
		t.Fatalf("failed to load results: %v", err)
	}
	if len(log.Results()) != 2 {
		t.Fatalf("expected 2 results, got %d", len(log.Results()))
	}
	resize := log.ResultsFor("src/resize")
	if len(resize) != 1 {
		t.Fatalf("expected 1 result for src/resize, got %d", len(resize))
	}
	if flows := resize[0].Flows(); len(flows) != 1 {
		t.Errorf("expected one flow, got %v", flows)
	}
	pos, ok := resize[0].RelatedPosition(2)
	if !ok || pos.Line != 12 || pos.Column != 5 || pos.File != "src/resize/app.py" {
		t.Errorf("unexpected related position %v", pos)
	}
	if _, ok := resize[0].RelatedPosition(3); ok {
		t.Errorf("related position 3 should not exist")
	}
}

func TestRelatedPositionByIndex(t *testing.T) {
	log, err := Load(filepath.Join("testdata", "dataflows.sarif"))
	if err != nil {
		t.Fatalf("failed to load results: %v", err)
	}
	upload := log.ResultsFor("./src/upload")
	if len(upload) != 1 {
		t.Fatalf("expected 1 result for src/upload, got %d", len(upload))
	}
	pos, ok := upload[0].RelatedPosition(2)
	if !ok || pos.Line != 8 {
		t.Errorf("locations without ids should be found by index, got %v", pos)
	}
}

func TestParseError(t *testing.T) {
	if _, err := Parse([]byte("{not json")); err == nil {
		t.Errorf("expected a decoding error")
	}
}

func resultAt(uri string) Result {
	return Result{Locations: []Location{{PhysicalLocation: PhysicalLocation{ArtifactLocation: ArtifactLocation{URI: uri}}}}}
}

func TestResultsForDirectoryBoundary(t *testing.T) {
	log := &Log{Runs: []Run{{Results: []Result{
		resultAt("src/resize/app.py"),
		resultAt("src/resize_thumbs/app.py"),
		resultAt("app.py"),
	}}}}
	if got := log.ResultsFor("src/resize"); len(got) != 1 || got[0].URI() != "src/resize/app.py" {
		t.Errorf("src/resize should only contain its own result, got %v", got)
	}
	if got := log.ResultsFor("./src/resize/"); len(got) != 1 {
		t.Errorf("equivalent directory spellings should contain the same results, got %v", got)
	}
	if got := log.ResultsFor("."); len(got) != 3 {
		t.Errorf("the current directory should contain every result, got %d", len(got))
	}
	if got := log.ResultsFor(""); len(got) != 3 {
		t.Errorf("an empty directory should contain every result, got %d", len(got))
	}
}

func TestAssignMostSpecific(t *testing.T) {
	log := &Log{Runs: []Run{{Results: []Result{
		resultAt("src/resize/app.py"),
		resultAt("./src/resize_thumbs/app.py"),
		resultAt("app.py"),
		resultAt("lib/util.py"),
	}}}}
	byDir := log.Assign([]string{".", "src/resize", "src/resize_thumbs"})
	if n := len(byDir["src/resize"]); n != 1 {
		t.Errorf("expected 1 result for src/resize, got %d", n)
	}
	if n := len(byDir["src/resize_thumbs"]); n != 1 {
		t.Errorf("expected 1 result for src/resize_thumbs, got %d", n)
	}
	if n := len(byDir["."]); n != 2 {
		t.Errorf("expected the unclaimed results in ., got %d", n)
	}

	byDir = log.Assign([]string{"src/resize"})
	if len(byDir) != 1 || len(byDir["src/resize"]) != 1 {
		t.Errorf("results outside every directory should be dropped, got %v", byDir)
	}
}
