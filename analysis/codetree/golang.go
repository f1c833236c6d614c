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
	"go/parser"
	"go/token"

	"github.com/dave/dst"
	"github.com/dave/dst/decorator"
)

func parseGo(filename string, src []byte) (*Tree, error) {
	fset := token.NewFileSet()
	d := decorator.NewDecorator(fset)
	f, err := d.ParseFile(filename, src, parser.ParseComments)
	if err != nil {
		return nil, err
	}
	t := newTree(src)
	lines := func(n dst.Node) (int, int) {
		a := d.Ast.Nodes[n]
		if a == nil {
			return 0, 0
		}
		return fset.Position(a.Pos()).Line, fset.Position(a.End()).Line
	}
	body := func(def dst.Node, b *dst.BlockStmt) {
		if b == nil || len(b.List) == 0 {
			return
		}
		defLine, _ := lines(def)
		start, end := lines(b.List[0])
		if defLine > 0 && start > 0 {
			t.addBody(defLine, start, end)
		}
	}
	if len(f.Decls) > 0 {
		t.preamble, _ = lines(f.Decls[0])
	} else {
		t.preamble = len(t.Lines) + 1
	}
	dst.Inspect(f, func(n dst.Node) bool {
		switch x := n.(type) {
		case *dst.FuncDecl:
			body(x, x.Body)
		case *dst.FuncLit:
			body(x, x.Body)
		case *dst.BlockStmt, *dst.CaseClause, *dst.CommClause:
			// code cannot be inserted before these
		case dst.Stmt:
			if start, end := lines(x); start > 0 {
				t.addStatement(start, end)
			}
		}
		return true
	})
	return t.finish(), nil
}
