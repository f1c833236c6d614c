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

package codetree

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
)

// grammar describes the node types of a tree-sitter language
type grammar struct {
	language func() *sitter.Language
	// isStatement returns true for node types before which code can be inserted
	isStatement func(typ string) bool
	// functions are the node types of function definitions
	functions map[string]bool
	// body is the node type of function bodies made of statements
	body string
}

var pythonGrammar = grammar{
	language: python.GetLanguage,
	isStatement: func(typ string) bool {
		return strings.HasSuffix(typ, "_statement") || typ == "function_definition" ||
			typ == "class_definition" || typ == "decorated_definition"
	},
	functions: map[string]bool{"function_definition": true},
	body:      "block",
}

var javascriptGrammar = grammar{
	language: javascript.GetLanguage,
	isStatement: func(typ string) bool {
		return strings.HasSuffix(typ, "_statement") || strings.HasSuffix(typ, "_declaration")
	},
	functions: map[string]bool{
		"function_declaration":           true,
		"generator_function_declaration": true,
		"function":                       true,
		"function_expression":            true,
		"arrow_function":                 true,
		"method_definition":              true,
	},
	body: "statement_block",
}

func parseSitter(ctx context.Context, g grammar, src []byte) (*Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(g.language())
	st, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer st.Close()
	root := st.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("syntax error in source")
	}
	t := newTree(src)
	walk(root, func(n *sitter.Node) {
		typ := n.Type()
		if g.isStatement(typ) {
			t.addStatement(line(n.StartPoint()), line(n.EndPoint()))
		}
		if g.functions[typ] {
			body := n.ChildByFieldName("body")
			if body == nil || body.Type() != g.body {
				return
			}
			for i := 0; i < int(body.NamedChildCount()); i++ {
				c := body.NamedChild(i)
				if c.Type() != "comment" {
					t.addBody(line(n.StartPoint()), line(c.StartPoint()), line(c.EndPoint()))
					break
				}
			}
		}
	})
	return t.finish(), nil
}

func line(p sitter.Point) int {
	return int(p.Row) + 1
}

func walk(n *sitter.Node, f func(*sitter.Node)) {
	f(n)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), f)
	}
}
