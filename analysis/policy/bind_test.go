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
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/awslabs/adg-policy/analysis/adg"
)

type fakeLookup map[string]string

func (f fakeLookup) Lookup(_ context.Context, prop string, n *adg.Node) (string, error) {
	if v, ok := f[prop]; ok {
		return v, nil
	}
	return "", fmt.Errorf("no property %s for %s", prop, n.Resource)
}

func bucketNode(res adg.Reference) *adg.Node {
	return &adg.Node{
		Resource: res,
		Object:   adg.DynamicRef("key"),
		Kind:     adg.S3Bucket,
		Function: adg.NewFunction("Resize", "AWS::Serverless::Function", "python3.12", "src/resize"),
		Scope:    adg.ScopeGlobal,
	}
}

func implicitOf(g *Group) map[string]string {
	res := map[string]string{}
	for _, p := range g.Predicates {
		if p.Implicit {
			res[p.Binds] = p.Args[1].Str
		}
	}
	return res
}

func TestBind(t *testing.T) {
	p := MustParse("eq(InstRegion, ResourceRegion) & eq(SessionUser, 'alice') & taintSetExcludes(Node, 'secrets:*')")
	b := Binder{Props: fakeLookup{"ResourceRegion": "us-east-1"}, Hybrid: true}
	bound, err := p.Bind(context.Background(), bucketNode(adg.StaticRef("images")), b)
	if err != nil {
		t.Fatalf("failed to bind: %v", err)
	}
	if len(bound.Clauses[0].Groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(bound.Clauses[0].Groups))
	}
	region := implicitOf(bound.Clauses[0].Groups[0])
	if region["InstRegion"] != "{getInstProp('InstRegion')}" {
		t.Errorf("unexpected InstRegion binding %q", region["InstRegion"])
	}
	if region["ResourceRegion"] != "us-east-1" {
		t.Errorf("ResourceRegion should be looked up, got %q", region["ResourceRegion"])
	}
	session := implicitOf(bound.Clauses[0].Groups[1])
	if session["SessionUser"] != "{getSessionProp(event, 'SessionUser')}" {
		t.Errorf("unexpected SessionUser binding %q", session["SessionUser"])
	}
	tnt := implicitOf(bound.Clauses[0].Groups[2])
	if tnt["Node"] != "images:{key}" {
		t.Errorf("the taint argument should be bound to the online label, got %q", tnt["Node"])
	}
	// the original policy is unchanged
	if n := len(p.Clauses[0].Groups[0].Predicates); n != 1 {
		t.Errorf("binding should not modify the policy, got %d predicates", n)
	}
}

func TestBindDeferred(t *testing.T) {
	p := MustParse("eq(ResourceRegion, 'us-east-1') & eq(SessionUser, 'alice')")
	placeholder := "{getResourceProp('ResourceRegion', 'S3_BUCKET', 'images')}"
	tests := []struct {
		name string
		node *adg.Node
		b    Binder
		want string
	}{
		{"hybrid off", bucketNode(adg.StaticRef("images")),
			Binder{Props: fakeLookup{"ResourceRegion": "us-east-1"}}, placeholder},
		{"lookup failure", bucketNode(adg.StaticRef("images")),
			Binder{Props: fakeLookup{}, Hybrid: true}, placeholder},
		{"no lookup", bucketNode(adg.StaticRef("images")), Binder{Hybrid: true}, placeholder},
		{"dynamic resource", bucketNode(adg.DynamicRef("bucket")),
			Binder{Props: fakeLookup{"ResourceRegion": "us-east-1"}, Hybrid: true},
			"{getResourceProp('ResourceRegion', 'S3_BUCKET', 'bucket')}"},
	}
	for _, tt := range tests {
		bound, err := p.Bind(context.Background(), tt.node, tt.b)
		if err != nil {
			t.Fatalf("%s: failed to bind: %v", tt.name, err)
		}
		got := implicitOf(bound.Clauses[0].Groups[0])["ResourceRegion"]
		if got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.name, tt.want, got)
		}
	}
}

func TestBindGCP(t *testing.T) {
	p := MustParse("eq(SessionUser, 'alice')")
	bound, err := p.Bind(context.Background(), bucketNode(adg.StaticRef("images")), Binder{CloudProvider: "GCP"})
	if err != nil {
		t.Fatalf("failed to bind: %v", err)
	}
	got := implicitOf(bound.Clauses[0].Groups[0])["SessionUser"]
	if got != "{getSessionProp(request, 'SessionUser')}" {
		t.Errorf("GCP session properties come from the request, got %q", got)
	}
}

func TestBindUnsupportedVariable(t *testing.T) {
	p := MustParse("eq(Region, 'us-east-1')")
	_, err := p.Bind(context.Background(), bucketNode(adg.StaticRef("images")), Binder{})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected an unsupported construct error, got %v", err)
	}
}

func TestBoundQueryEvaluation(t *testing.T) {
	p := MustParse("eq(ResourceRegion, 'us-east-1')")
	for _, region := range []string{"us-east-1", "eu-west-1"} {
		bound, err := p.Bind(context.Background(), bucketNode(adg.StaticRef("images")),
			Binder{Props: fakeLookup{"ResourceRegion": region}, Hybrid: true})
		if err != nil {
			t.Fatalf("failed to bind: %v", err)
		}
		want := Proven
		if region != "us-east-1" {
			want = Disproven
		}
		if got := (Engine{}).Ask(bound.Clauses[0].Groups[0].Predicates); got != want {
			t.Errorf("region %s: expected %s, got %s", region, want, got)
		}
	}
}
