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

// Package codetree answers position queries on the code of functions: which statement encloses a line, and where
// the body of a function starts. Python and JavaScript code is parsed with tree-sitter, Go code with dst.
package codetree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/awslabs/adg-policy/analysis/adg"
)

// ErrUnsupportedLanguage is returned for functions whose runtime has no parser
var ErrUnsupportedLanguage = fmt.Errorf("unsupported language")

// A Tree is the statement structure of one source file. It implements adg.CodeTree.
type Tree struct {
	// Lines are the lines of the source, without line terminators
	Lines []string

	stmts    []extent
	bodies   map[int]extent
	preamble int
}

var _ adg.CodeTree = (*Tree)(nil)

// extent is the line range of a syntax node, 1-based and inclusive
type extent struct {
	start, end int
}

func newTree(src []byte) *Tree {
	return &Tree{
		Lines:    strings.Split(strings.ReplaceAll(string(src), "\r\n", "\n"), "\n"),
		bodies:   map[int]extent{},
		preamble: 1,
	}
}

func (t *Tree) addStatement(start, end int) {
	t.stmts = append(t.stmts, extent{start, end})
}

func (t *Tree) addBody(defLine, start, end int) {
	if _, ok := t.bodies[defLine]; !ok {
		t.bodies[defLine] = extent{start, end}
	}
}

// finish sorts statements by start line, and outermost first for equal starts
func (t *Tree) finish() *Tree {
	sort.Slice(t.stmts, func(i, j int) bool {
		if t.stmts[i].start != t.stmts[j].start {
			return t.stmts[i].start < t.stmts[j].start
		}
		return t.stmts[i].end > t.stmts[j].end
	})
	return t
}

func (t *Tree) span(x extent) adg.Span {
	return adg.Span{StartLine: x.start, EndLine: x.end, Indent: t.Indent(x.start)}
}

// Indent returns the leading whitespace of line
func (t *Tree) Indent(line int) string {
	if line < 1 || line > len(t.Lines) {
		return ""
	}
	l := t.Lines[line-1]
	return l[:len(l)-len(strings.TrimLeft(l, " \t"))]
}

// StatementAt returns the innermost statement enclosing line
func (t *Tree) StatementAt(line int) (adg.Span, bool) {
	best := -1
	for i, s := range t.stmts {
		if s.start > line {
			break
		}
		if s.end >= line && (best < 0 || s.end-s.start <= t.stmts[best].end-t.stmts[best].start) {
			best = i
		}
	}
	if best < 0 {
		return adg.Span{}, false
	}
	return t.span(t.stmts[best]), true
}

// BodyStart returns the first statement of the body of the function defined at defLine
func (t *Tree) BodyStart(defLine int) (adg.Span, bool) {
	x, ok := t.bodies[defLine]
	if !ok {
		return adg.Span{}, false
	}
	return t.span(x), true
}

// PreambleLine returns the line before which file-level imports are inserted: the first line for Python and
// JavaScript, the first declaration after the package clause for Go.
func (t *Tree) PreambleLine() int {
	return t.preamble
}

// Parse parses the source of a file in language, one of adg.Python, adg.JavaScript or adg.Go
func Parse(ctx context.Context, language string, filename string, src []byte) (*Tree, error) {
	switch language {
	case adg.Python:
		return parseSitter(ctx, pythonGrammar, src)
	case adg.JavaScript:
		return parseSitter(ctx, javascriptGrammar, src)
	case adg.Go:
		return parseGo(filename, src)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
}

// Load parses file, a path relative to the application root dir, in the language of fn
func Load(ctx context.Context, root string, fn *adg.Function, file string) (*Tree, error) {
	filename := filepath.Join(root, filepath.FromSlash(file))
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read code of %s: %w", fn.Name, err)
	}
	t, err := Parse(ctx, fn.Language(), filename, src)
	if err != nil {
		return nil, fmt.Errorf("could not parse code of %s: %w", fn.Name, err)
	}
	return t, nil
}
