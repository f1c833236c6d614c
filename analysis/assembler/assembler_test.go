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

package assembler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/awslabs/adg-policy/analysis/adg"
	"github.com/awslabs/adg-policy/analysis/config"
	"github.com/awslabs/adg-policy/analysis/sarif"
	"golang.org/x/tools/txtar"
)

// loadArchive returns the analyzer results stored in the txtar archive name
func loadArchive(t *testing.T, name string) map[string]*sarif.Log {
	t.Helper()
	ar, err := txtar.ParseFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read archive: %v", err)
	}
	logs := map[string]*sarif.Log{}
	for _, f := range ar.Files {
		log, err := sarif.Parse(f.Data)
		if err != nil {
			t.Fatalf("failed to parse %s: %v", f.Name, err)
		}
		logs[f.Name] = log
	}
	return logs
}

type testApp struct {
	graph  *adg.Graph
	upload *adg.Function
	resize *adg.Function
	bucket *adg.Resource
	thumbs *adg.Resource
	asm    *Assembler
}

func newTestApp(cfg *config.Config) *testApp {
	upload := adg.NewFunction("Upload", "AWS::Serverless::Function", "python3.12", "src/upload")
	resize := adg.NewFunction("Resize", "AWS::Serverless::Function", "python3.12", "src/resize")
	bucket := adg.NewResource("UploadsBucket", "AWS::S3::Bucket")
	bucket.Metadata["BucketName"] = "uploads"
	thumbs := adg.NewResource("thumbnails", "AWS::S3::Bucket")
	adg.AddDependency(bucket, resize)

	g := adg.NewGraph("ImageProcessing")
	g.Functions = []*adg.Function{upload, resize}
	g.Resources = []adg.Entity{upload, resize, bucket, thumbs}
	return &testApp{
		graph:  g,
		upload: upload,
		resize: resize,
		bucket: bucket,
		thumbs: thumbs,
		asm:    New(g, cfg, config.NewLogGroup(cfg)),
	}
}

func TestGenerateIntraFunctionGraphs(t *testing.T) {
	logs := loadArchive(t, "imageprocessing.txtar")
	app := newTestApp(config.NewDefault())
	if err := app.asm.GenerateIntraFunctionGraphs(context.Background(), app.graph.Functions,
		logs["dataflows.sarif"]); err != nil {
		t.Fatalf("failed to generate graphs: %v", err)
	}

	// upload: event, uploads, return; resize: uploads, tmp, thumbnails, event
	if n := len(app.graph.Nodes()); n != 7 {
		t.Errorf("expected 7 nodes, got %d", n)
	}
	if n := len(app.graph.Edges()); n != 4 {
		t.Errorf("expected 4 edges, got %d", n)
	}
	if app.upload.Param == nil || app.upload.Return == nil {
		t.Errorf("upload should have a parameter and a return node")
	}
	if app.resize.Param == nil {
		t.Errorf("resize should have a parameter node from the single-sided flow")
	}

	// the uploads bucket is read by two results of resize and must be one node
	key := adg.NodeKey{
		Resource: adg.StaticRef("uploads"),
		Kind:     adg.S3Bucket,
		Object:   adg.DynamicRef("key"),
		Function: "Resize",
		Scope:    adg.ScopeGlobal,
	}
	n, ok := app.graph.Lookup(key)
	if !ok {
		t.Fatalf("uploads node of resize not found")
	}
	if len(n.Out) != 2 {
		t.Errorf("the uploads node should have the out edges of both records, got %d", len(n.Out))
	}
	if !n.IsSource || n.IsSink {
		t.Errorf("the uploads node of resize is a source only")
	}
	if n.Position.Line != 12 {
		t.Errorf("the node should keep the position of the first record, got %v", n.Position)
	}
	if e := n.Out[1]; e.SourcePosition.Line != 20 {
		t.Errorf("the edge should keep the position of its own record, got %v", e.SourcePosition)
	}
}

func TestAddMetadataEdges(t *testing.T) {
	logs := loadArchive(t, "imageprocessing.txtar")
	for _, promote := range []bool{false, true} {
		cfg := config.NewDefault()
		cfg.PromoteMetadata = promote
		app := newTestApp(cfg)
		ctx := context.Background()
		if err := app.asm.GenerateIntraFunctionGraphs(ctx, app.graph.Functions, logs["dataflows.sarif"]); err != nil {
			t.Fatalf("failed to generate graphs: %v", err)
		}
		if err := app.asm.AddMetadataEdges(ctx, app.graph.Functions, logs["metadataflows.sarif"]); err != nil {
			t.Fatalf("failed to add metadata edges: %v", err)
		}
		wantData, wantMeta := 4, 1
		if promote {
			wantData, wantMeta = 5, 0
		}
		if len(app.graph.Edges()) != wantData || len(app.graph.MetadataEdges()) != wantMeta {
			t.Errorf("promote=%v: expected %d data and %d metadata edges, got %d and %d", promote,
				wantData, wantMeta, len(app.graph.Edges()), len(app.graph.MetadataEdges()))
		}
	}
}

func TestInterFunctionEdges(t *testing.T) {
	logs := loadArchive(t, "imageprocessing.txtar")
	app := newTestApp(config.NewDefault())
	if err := app.asm.GenerateIntraFunctionGraphs(context.Background(), app.graph.Functions,
		logs["dataflows.sarif"]); err != nil {
		t.Fatalf("failed to generate graphs: %v", err)
	}
	app.asm.ResolveStaticReferences(app.graph.Resources)

	written, _ := app.graph.Lookup(adg.NodeKey{Resource: adg.StaticRef("uploads"), Kind: adg.S3Bucket,
		Object: adg.DynamicRef("key"), Function: "Upload", Scope: adg.ScopeGlobal})
	if written == nil || written.Attrs.Mapped != app.bucket {
		t.Fatalf("the uploads node of upload should map to the bucket by physical name")
	}
	thumbs, _ := app.graph.Lookup(adg.NodeKey{Resource: adg.StaticRef("thumbnails"), Kind: adg.S3Bucket,
		Object: adg.DynamicRef("key"), Function: "Resize", Scope: adg.ScopeGlobal})
	if thumbs == nil || thumbs.Attrs.Mapped != app.thumbs {
		t.Fatalf("the thumbnails node should map to the thumbnails bucket by logical name")
	}

	before := len(app.graph.Edges())
	if err := app.asm.AddInterFunctionEdges(app.graph.Resources); err != nil {
		t.Fatalf("failed to add inter-function edges: %v", err)
	}
	edges := app.graph.Edges()
	if len(edges) != before+1 {
		t.Fatalf("expected one indirect edge, got %d new edges", len(edges)-before)
	}
	e := edges[len(edges)-1]
	if e.Tag != adg.IndirectEdge || e.Source != written || e.Sink.Function != app.resize {
		t.Errorf("unexpected indirect edge %s", e)
	}
	// running again does not add edges
	if err := app.asm.AddInterFunctionEdges(app.graph.Resources); err != nil {
		t.Fatalf("failed to add inter-function edges: %v", err)
	}
	if len(app.graph.Edges()) != before+1 {
		t.Errorf("inter-function edges should be idempotent")
	}
}

func TestAliasDynamicReferences(t *testing.T) {
	cfg := config.NewDefault()
	cfg.AliasDynamicReferences = true
	app := newTestApp(cfg)
	n := app.graph.AddNode(&adg.Node{Resource: adg.DynamicRef("bucket_name"), Object: adg.DynamicRef("key"),
		Kind: adg.S3Bucket, Function: app.upload, Scope: adg.ScopeGlobal, IsSink: true})
	app.asm.ResolveStaticReferences(app.graph.Resources)
	if len(n.Attrs.PotentialResources) != 2 {
		t.Errorf("a dynamic bucket reference should alias both buckets, got %v", n.Attrs.PotentialResources)
	}
	if n.Attrs.Mapped != nil {
		t.Errorf("a dynamic reference is never mapped")
	}
}

func TestConnectFunctions(t *testing.T) {
	app := newTestApp(config.NewDefault())
	err := app.asm.ConnectFunctions(app.upload, app.resize)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected an unsupported error without return node, got %v", err)
	}
	ret := app.graph.AddNode(&adg.Node{Resource: adg.StaticRef("return"), Object: adg.StaticRef("return"),
		Kind: adg.Return, Function: app.upload, Scope: adg.ScopeInvocation})
	param := app.graph.AddNode(&adg.Node{Resource: adg.StaticRef("event"), Object: adg.StaticRef("event"),
		Kind: adg.Param, Function: app.resize, Scope: adg.ScopeInvocation})
	if err := app.asm.ConnectFunctions(app.upload, app.resize); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	edges := app.graph.Edges()
	if len(edges) != 1 || edges[0].Source != ret || edges[0].Sink != param || edges[0].Tag != adg.IndirectEdge {
		t.Errorf("expected an indirect edge from return to param, got %v", edges)
	}
}

func TestUnsupportedDependency(t *testing.T) {
	app := newTestApp(config.NewDefault())
	adg.AddDependency(app.upload, app.thumbs)
	err := app.asm.AddInterFunctionEdges([]adg.Entity{app.upload})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("a function feeding a bucket is not a supported dependency, got %v", err)
	}
}

func TestMalformedResults(t *testing.T) {
	log, err := sarif.Parse([]byte(`{"runs": [{"results": [{"message": {"text": "[SOURCE, GLOBAL](1)"},
		"locations": [{"physicalLocation": {"artifactLocation": {"uri": "src/upload/app.py"}}}]}]}]}`))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	app := newTestApp(config.NewDefault())
	err = app.asm.GenerateIntraFunctionGraphs(context.Background(), app.graph.Functions, log)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected an unsupported construct error, got %v", err)
	}
	if len(app.graph.Nodes()) != 0 {
		t.Errorf("a failed generation should not add nodes")
	}
}
