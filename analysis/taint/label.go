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

// Package taint computes the taint labels of graph nodes and functions, and compares them.
//
// A label has the shape "<resource>:<object>". The offline label of a node is the most conservative label
// derivable without running the program: dynamic parts are replaced by the wildcard "?". The online label of a node
// has the same shape, but dynamic parts are runtime-format placeholders "{name}" that the instrumented code
// resolves when it executes.
package taint

import (
	"strings"

	"github.com/awslabs/adg-policy/analysis/adg"
)

const (
	// Separator separates the segments of a label
	Separator = ":"
	// Any matches any segment
	Any = "*"
	// Unknown is a segment only known at runtime
	Unknown = "?"

	functionNamespace = "function"
)

// OfflineLabel returns the offline label of n
func OfflineLabel(n *adg.Node) string {
	return offlinePart(n.Resource) + Separator + offlinePart(n.Object)
}

func offlinePart(r adg.Reference) string {
	if r.IsStatic() {
		return r.Name
	}
	return Unknown
}

// FunctionLabel returns the label of a function, in its own namespace
func FunctionLabel(f *adg.Function) string {
	return functionNamespace + Separator + f.Name
}

// OnlineLabel returns the runtime-format label of n
func OnlineLabel(n *adg.Node) string {
	return onlinePart(n.Resource) + Separator + onlinePart(n.Object)
}

func onlinePart(r adg.Reference) string {
	if r.IsStatic() {
		return r.Name
	}
	return "{" + r.Name + "}"
}

// MatchResult is the result of comparing two labels
type MatchResult int

const (
	NoMatch MatchResult = iota
	PossibleMatch
	FullMatch
)

func (m MatchResult) String() string {
	switch m {
	case FullMatch:
		return "MATCH"
	case PossibleMatch:
		return "POSSIBLE_MATCH"
	default:
		return "NO_MATCH"
	}
}

// Match compares two labels segment by segment. A "*" segment on either side matches, a "?" segment on either side
// possibly matches, and other segments match when they are equal. A missing segment compares as the empty string.
// The result is NoMatch if any segment does not match, PossibleMatch if some segment possibly matches, and FullMatch
// otherwise.
func Match(a, b string) MatchResult {
	pa := strings.Split(a, Separator)
	pb := strings.Split(b, Separator)
	n := max(len(pa), len(pb))
	res := FullMatch
	for i := 0; i < n; i++ {
		switch matchSegment(segment(pa, i), segment(pb, i)) {
		case NoMatch:
			return NoMatch
		case PossibleMatch:
			res = PossibleMatch
		}
	}
	return res
}

func segment(parts []string, i int) string {
	if i < len(parts) {
		return parts[i]
	}
	return ""
}

func matchSegment(a, b string) MatchResult {
	switch {
	case a == Any || b == Any:
		return FullMatch
	case a == Unknown || b == Unknown:
		return PossibleMatch
	case a == b:
		return FullMatch
	default:
		return NoMatch
	}
}

// CouldMatch returns true unless a and b provably do not match
func CouldMatch(a, b string) bool {
	return Match(a, b) != NoMatch
}

// Candidates returns the offline labels of everything whose taint could have reached n: the node itself, its
// ancestors, its own function and the ancestor functions. Ancestry must have been populated.
func Candidates(n *adg.Node) []string {
	labels := []string{OfflineLabel(n)}
	for _, a := range n.Ancestors() {
		labels = append(labels, OfflineLabel(a))
	}
	if n.Function != nil {
		labels = append(labels, FunctionLabel(n.Function))
	}
	for _, f := range n.Functions() {
		if f != n.Function {
			labels = append(labels, FunctionLabel(f))
		}
	}
	return labels
}

// AnyCouldMatch returns true if some label in candidates could match label
func AnyCouldMatch(candidates []string, label string) bool {
	for _, c := range candidates {
		if CouldMatch(c, label) {
			return true
		}
	}
	return false
}
