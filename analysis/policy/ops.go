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

// Op is a predicate of the policy language. The set of predicates is closed: adding one means adding a constant,
// its name and arity, and its evaluation in the Engine.
type Op int

const (
	OpEq Op = iota + 1
	OpNeq
	OpLt
	OpLe
	OpGt
	OpGe
	// OpAdd is add(X, Y, Z): X = Y + Z
	OpAdd
	// OpSub is sub(X, Y, Z): X = Y - Z
	OpSub
	// OpMul is mul(X, Y, Z): X = Y * Z
	OpMul
	// OpDiv is div(X, Y, Z): X = Y / Z
	OpDiv
	// OpIsPrefix is isPrefix(S, P): S starts with P
	OpIsPrefix
	// OpIsSuffix is isSuffix(S, P): S ends with P
	OpIsSuffix
	// OpHasSubstr is hasSubstr(S, P): S contains P
	OpHasSubstr
	// OpConcat is concat(C, S1, S2): C = S1 + S2
	OpConcat
	// OpIPToCountry is ipToCountry(IP, Country). Only evaluated at runtime.
	OpIPToCountry
	// OpTaintSetIncludes is taintSetIncludes(Node, Label): the taint set of Node includes a label matching Label
	OpTaintSetIncludes
	// OpTaintSetExcludes is taintSetExcludes(Node, Label): the taint set of Node has no label matching Label
	OpTaintSetExcludes
)

type opInfo struct {
	name  string
	arity int
}

var ops = map[Op]opInfo{
	OpEq:               {"eq", 2},
	OpNeq:              {"neq", 2},
	OpLt:               {"lt", 2},
	OpLe:               {"le", 2},
	OpGt:               {"gt", 2},
	OpGe:               {"ge", 2},
	OpAdd:              {"add", 3},
	OpSub:              {"sub", 3},
	OpMul:              {"mul", 3},
	OpDiv:              {"div", 3},
	OpIsPrefix:         {"isPrefix", 2},
	OpIsSuffix:         {"isSuffix", 2},
	OpHasSubstr:        {"hasSubstr", 2},
	OpConcat:           {"concat", 3},
	OpIPToCountry:      {"ipToCountry", 2},
	OpTaintSetIncludes: {"taintSetIncludes", 2},
	OpTaintSetExcludes: {"taintSetExcludes", 2},
}

var opsByName = func() map[string]Op {
	m := make(map[string]Op, len(ops))
	for op, info := range ops {
		m[info.name] = op
	}
	return m
}()

// LookupOp returns the predicate named name
func LookupOp(name string) (Op, bool) {
	op, ok := opsByName[name]
	return op, ok
}

func (o Op) String() string {
	if info, ok := ops[o]; ok {
		return info.name
	}
	return "unknown"
}

// Arity returns the number of arguments of the predicate
func (o Op) Arity() int {
	return ops[o].arity
}

// IsTaint returns true for the taint set predicates
func (o Op) IsTaint() bool {
	return o == OpTaintSetIncludes || o == OpTaintSetExcludes
}

// IsRuntimeOnly returns true for predicates that can never be evaluated at analysis time
func (o Op) IsRuntimeOnly() bool {
	return o.IsTaint() || o == OpIPToCountry
}
