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

package funcutil

import (
	"strconv"
	"testing"
)

func TestMapParallelKeepsOrder(t *testing.T) {
	var in []int
	for i := 0; i < 100; i++ {
		in = append(in, i)
	}
	out := MapParallel(in, strconv.Itoa, 7)
	if len(out) != len(in) {
		t.Fatalf("expected %d results, got %d", len(in), len(out))
	}
	for i, s := range out {
		if s != strconv.Itoa(i) {
			t.Errorf("result %d is %q", i, s)
		}
	}
}

func TestMapParallelNoRoutines(t *testing.T) {
	out := MapParallel([]int{1, 2}, func(x int) int { return x * 2 }, 0)
	if out[0] != 2 || out[1] != 4 {
		t.Errorf("unexpected %v", out)
	}
}

func TestSetToOrderedSlice(t *testing.T) {
	s := SetToOrderedSlice(map[string]bool{"b": true, "a": true, "c": false})
	if len(s) != 2 || s[0] != "a" || s[1] != "b" {
		t.Errorf("unexpected %v", s)
	}
}

func TestFilterAndContains(t *testing.T) {
	evens := Filter([]int{1, 2, 3, 4}, func(x int) bool { return x%2 == 0 })
	if !Contains(evens, 4) || Contains(evens, 3) {
		t.Errorf("unexpected %v", evens)
	}
}
