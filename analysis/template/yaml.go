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

package template

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// decode converts a yaml node to plain values: map[string]any, []any, string, int, float64, bool or nil.
// Short-form intrinsic functions are expanded to their long form, e.g. `!Ref X` is {"Ref": "X"} and
// `!GetAtt X.Arn` is {"Fn::GetAtt": ["X", "Arn"]}.
func decode(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return decode(n.Content[0])
	case yaml.AliasNode:
		return decode(n.Alias)
	}
	v, err := decodeUntagged(n)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(n.Tag, "!") || strings.HasPrefix(n.Tag, "!!") {
		return v, nil
	}
	name := n.Tag[1:]
	switch name {
	case "Ref", "Condition":
		return map[string]any{name: v}, nil
	case "GetAtt":
		if s, ok := v.(string); ok {
			resource, attr, _ := strings.Cut(s, ".")
			v = []any{resource, attr}
		}
		return map[string]any{"Fn::GetAtt": v}, nil
	default:
		return map[string]any{"Fn::" + name: v}, nil
	}
}

func decodeUntagged(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			v, err := decode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			m[k.Value] = v
		}
		return m, nil
	case yaml.SequenceNode:
		s := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := decode(c)
			if err != nil {
				return nil, err
			}
			s = append(s, v)
		}
		return s, nil
	case yaml.ScalarNode:
		return scalar(n), nil
	}
	return nil, fmt.Errorf("line %d: unexpected yaml node kind %d", n.Line, n.Kind)
}

func scalar(n *yaml.Node) any {
	switch n.ShortTag() {
	case "!!int":
		if i, err := strconv.Atoi(n.Value); err == nil {
			return i
		}
	case "!!float":
		if f, err := strconv.ParseFloat(n.Value, 64); err == nil {
			return f
		}
	case "!!bool":
		if b, err := strconv.ParseBool(n.Value); err == nil {
			return b
		}
	case "!!null":
		return nil
	}
	return n.Value
}

// Accessors over decoded values. Missing keys and type mismatches give zero values.

func mapping(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func sequence(v any) []any {
	s, _ := v.([]any)
	return s
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func get(v any, path ...string) any {
	for _, k := range path {
		v = mapping(v)[k]
	}
	return v
}

// refName returns the logical name referred to by v: the target of a Ref, of a GetAtt, or of a Sub made of one
// variable, or v itself if it is a plain name.
func refName(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case map[string]any:
		if r, ok := x["Ref"].(string); ok {
			return r
		}
		if ga, ok := x["Fn::GetAtt"]; ok {
			switch a := ga.(type) {
			case []any:
				if len(a) > 0 {
					return str(a[0])
				}
			case string:
				resource, _, _ := strings.Cut(a, ".")
				return resource
			}
		}
		if sub, ok := x["Fn::Sub"].(string); ok && strings.HasPrefix(sub, "${") && strings.HasSuffix(sub, "}") &&
			strings.Count(sub, "${") == 1 {
			resource, _, _ := strings.Cut(sub[2:len(sub)-1], ".")
			return resource
		}
	}
	return ""
}
