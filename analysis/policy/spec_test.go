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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/awslabs/adg-policy/analysis/adg"
)

func specGraph() *adg.Graph {
	g := adg.NewGraph("app")
	fn := adg.NewFunction("Resize", "AWS::Serverless::Function", "python3.12", "src/resize")
	event := g.AddNode(&adg.Node{Resource: adg.StaticRef("event"), Object: adg.StaticRef("event"),
		Kind: adg.Param, Function: fn, Scope: adg.ScopeInvocation})
	tmp := g.AddNode(&adg.Node{Resource: adg.StaticRef("tmp"), Object: adg.DynamicRef("path"),
		Kind: adg.LocalFile, Function: fn, Scope: adg.ScopeInvocation})
	bucket := g.AddNode(&adg.Node{Resource: adg.StaticRef("thumbnails"), Object: adg.DynamicRef("key"),
		Kind: adg.S3Bucket, Function: fn, Scope: adg.ScopeGlobal})
	g.Connect(event, tmp, adg.DataEdge, fn)
	g.Connect(tmp, bucket, adg.DataEdge, fn)
	g.Connect(event, bucket, adg.MetadataEdge, fn)
	return g
}

func TestBuildSpec(t *testing.T) {
	spec := BuildSpec(specGraph())
	if len(spec) != 1 {
		t.Fatalf("only the edge leaving the invocation is governed, got %v", spec)
	}
	r := spec[0]
	if r.Source != "1:tmp:$path" || r.Sink != "2:thumbnails:$key" || r.Read != Allow || r.Write != Allow ||
		r.Function != "Resize" {
		t.Errorf("unexpected record %+v", r)
	}
}

func TestSpecRoundTrip(t *testing.T) {
	g := specGraph()
	spec := BuildSpec(g)
	spec[0].Write = "eq(ResourceRegion, 'us-east-1')"

	path := filepath.Join(t.TempDir(), "out", "policy_spec.yaml")
	if err := spec.Write(path); err != nil {
		t.Fatalf("failed to write spec: %v", err)
	}
	loaded, err := LoadSpec(path)
	if err != nil {
		t.Fatalf("failed to load spec: %v", err)
	}
	if len(loaded) != 1 || loaded[0] != spec[0] {
		t.Fatalf("round trip changed the spec: %+v", loaded)
	}
	if err := loaded.Attach(g); err != nil {
		t.Fatalf("failed to attach: %v", err)
	}
	e := g.Edges()[1]
	if e.WritePolicy != "eq(ResourceRegion, 'us-east-1')" || e.ReadPolicy != "" {
		t.Errorf("unexpected policies %q %q", e.ReadPolicy, e.WritePolicy)
	}
	if again := BuildSpec(g); again[0].Write != spec[0].Write {
		t.Errorf("attached policies should be written back, got %q", again[0].Write)
	}
}

func TestParseSpecJSON(t *testing.T) {
	spec, err := ParseSpec([]byte(`[{"id": 1, "source": "1:tmp:$path", "sink": "2:thumbnails:$key",
		"read": "allow", "write": "allow"}]`))
	if err != nil {
		t.Fatalf("failed to parse JSON spec: %v", err)
	}
	if len(spec) != 1 || spec[0].ID != 1 || spec[0].Sink != "2:thumbnails:$key" {
		t.Errorf("unexpected spec %+v", spec)
	}
}

func TestAttachErrors(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		want   string
	}{
		{"unknown id", Record{ID: 7, Source: "1:tmp:$path", Sink: "2:thumbnails:$key"}, "does not match"},
		{"moved edge", Record{ID: 1, Source: "0:event:event", Sink: "2:thumbnails:$key"}, "but the edge is"},
		{"bad policy", Record{ID: 1, Source: "1:tmp:$path", Sink: "2:thumbnails:$key", Read: "eq(X"}, "read policy"},
	}
	for _, tt := range tests {
		err := Spec{tt.record}.Attach(specGraph())
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: expected an error containing %q, got %v", tt.name, tt.want, err)
		}
	}
}

func TestWriteTo(t *testing.T) {
	var buf bytes.Buffer
	if _, err := BuildSpec(specGraph()).WriteTo(&buf); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if !strings.Contains(buf.String(), "write: allow") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
	if _, err := LoadSpec(filepath.Join(os.TempDir(), "does-not-exist", "spec.yaml")); err == nil {
		t.Errorf("expected an error for a missing file")
	}
}

func TestWriteErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := BuildSpec(specGraph()).Write(filepath.Join(file, "policy_spec.yaml")); err == nil {
		t.Errorf("writing under a regular file should fail")
	}
	path := filepath.Join(dir, "policy_spec.yaml")
	if err := BuildSpec(specGraph()).Write(path); err != nil {
		t.Fatalf("failed to write spec: %v", err)
	}
	if b, err := os.ReadFile(path); err != nil || len(b) == 0 {
		t.Errorf("written file should not be empty: %v", err)
	}
}
