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
	"errors"
	"testing"

	"github.com/awslabs/adg-policy/analysis/adg"
)

func TestParseDescriptor(t *testing.T) {
	d, err := ParseDescriptor("[SOURCE, GLOBAL, S3_BUCKET:STATIC:imageprocessingbenchmark, STATIC:sample_2.png](1)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Descriptor{
		Interface:  adg.Source,
		Scope:      adg.ScopeGlobal,
		Kind:       adg.S3Bucket,
		Resource:   adg.StaticRef("imageprocessingbenchmark"),
		Object:     adg.StaticRef("sample_2.png"),
		LocationID: 1,
	}
	if *d != want {
		t.Errorf("expected %v, got %v", want, d)
	}
}

func TestParseFlow(t *testing.T) {
	src, sink, err := ParseFlow("[SOURCE, GLOBAL, S3_BUCKET:STATIC:bucket, STATIC:sample.png](1)\n" +
		"==>[SINK, CONTAINER, LOCAL_FILE:STATIC:tempfs, DYNAMIC:tempFile](2)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src == nil || sink == nil {
		t.Fatalf("expected both sides")
	}
	if sink.Interface != adg.Sink || sink.Scope != adg.ScopeContainer || sink.Object != adg.DynamicRef("tempFile") {
		t.Errorf("unexpected sink %v", sink)
	}
	if sink.LocationID != 2 {
		t.Errorf("expected location 2, got %d", sink.LocationID)
	}

	src, sink, err = ParseFlow("None ==>[SINK, GLOBAL, DYNAMODB_TABLE:STATIC:Claims, DYNAMIC:item](4)")
	if err != nil || src != nil || sink == nil || sink.Kind != adg.DynamoDBTable {
		t.Errorf("None sources should be skipped, got %v %v %v", src, sink, err)
	}

	src, sink, err = ParseFlow("[SINK, INVOCATION, RETURN:STATIC:return, STATIC:return](7)")
	if err != nil || src == nil || sink != nil {
		t.Errorf("a single descriptor is a node record, got %v %v %v", src, sink, err)
	}
}

func TestParseDescriptorErrors(t *testing.T) {
	for _, s := range []string{
		"[SOURCE, GLOBAL, S3_BUCKET:STATIC:bucket](1)",
		"[SOURCE, EVERYWHERE, S3_BUCKET:STATIC:bucket, STATIC:key](1)",
		"[READ, GLOBAL, S3_BUCKET:STATIC:bucket, STATIC:key](1)",
		"[SOURCE, GLOBAL, S3_BUCKET:MAYBE:bucket, STATIC:key](1)",
		"[SOURCE, GLOBAL, S3_BUCKET:STATIC:bucket, STATIC:key]",
	} {
		if _, err := ParseDescriptor(s); !errors.Is(err, ErrUnsupported) {
			t.Errorf("expected an unsupported construct error for %q, got %v", s, err)
		}
	}
	if _, _, err := ParseFlow("a ==> b ==> c"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected an error for a flow with three sides, got %v", err)
	}
}
