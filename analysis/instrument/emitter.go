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

package instrument

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/awslabs/adg-policy/analysis/adg"
	"github.com/awslabs/adg-policy/analysis/taint"
)

// An Emitter renders the runtime statements of one language. The taint store of the invocation is created by the
// param taint statements and passed explicitly to every other runtime call.
type Emitter interface {
	// Preamble returns the file-level imports of the runtime
	Preamble() []string
	// ParamTaint returns the statements seeding the taint store from the event of the invocation
	ParamTaint(param *adg.Node) []string
	// SourceTaint returns the statements recording the taint of the data read at n
	SourceTaint(n *adg.Node) []string
	// SinkTaint returns the statements propagating the taint of source to the data written at sink
	SinkTaint(sink, source *adg.Node) []string
	// SaveTaint returns the statements persisting the taint of the object written at n, for the functions reading it
	SaveTaint(n *adg.Node) []string
	// Assertion returns the statements checking that one of the clauses holds
	Assertion(clauses []string) []string
}

// Emitters returns the emitters of the supported languages, by language name
func Emitters() map[string]Emitter {
	return map[string]Emitter{
		adg.Python:     PythonEmitter{},
		adg.JavaScript: JavaScriptEmitter{Module: DefaultJavaScriptRuntime},
		adg.Go:         GoEmitter{ImportPath: DefaultGoRuntime},
	}
}

var (
	placeholderRegex = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	requestRegex     = regexp.MustCompile(`getSessionProp\(([A-Za-z_][A-Za-z0-9_]*)\s*,`)
)

func isObjectStore(k adg.ObjectKind) bool {
	return k == adg.S3Bucket || k == adg.GCPBucket
}

// PythonTaintStore is the name of the taint store in instrumented Python code
const PythonTaintStore = "adg_taints"

// PythonEmitter emits calls to the adg_runtime module, and pyDatalog queries for assertions
type PythonEmitter struct{}

func pyString(s string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s) + "'"
}

func pyLabel(n *adg.Node) string {
	return "f" + pyString(taint.OnlineLabel(n))
}

func pyRef(r adg.Reference) string {
	if r.IsStatic() {
		return pyString(r.Name)
	}
	return r.Name
}

func eventName(param *adg.Node) string {
	if !param.Object.IsStatic() && param.Object.Name != "" {
		return param.Object.Name
	}
	return "event"
}

func (PythonEmitter) call(fn string, args ...string) string {
	return fmt.Sprintf("%s(%s)", fn, strings.Join(append([]string{PythonTaintStore}, args...), ", "))
}

// Preamble implements Emitter
func (PythonEmitter) Preamble() []string {
	return []string{"from adg_runtime import *"}
}

// ParamTaint implements Emitter
func (e PythonEmitter) ParamTaint(param *adg.Node) []string {
	return []string{
		fmt.Sprintf("%s = adg_extract_param_taint(%s, %s)", PythonTaintStore, pyLabel(param), eventName(param)),
		e.call("adg_add_self_taint", pyLabel(param)),
	}
}

// SourceTaint implements Emitter
func (e PythonEmitter) SourceTaint(n *adg.Node) []string {
	var lines []string
	switch {
	case isObjectStore(n.Kind):
		lines = append(lines, e.call("adg_add_s3_object_taint", pyLabel(n), pyRef(n.Resource), pyRef(n.Object)))
	case n.Kind == adg.LocalFile:
		lines = append(lines, e.call("adg_add_file_taint", pyLabel(n), pyRef(n.Object)))
	}
	return append(lines, e.call("adg_add_self_taint", pyLabel(n)))
}

// SinkTaint implements Emitter
func (e PythonEmitter) SinkTaint(sink, source *adg.Node) []string {
	lines := []string{
		e.call("adg_add_source_taint", pyLabel(sink), pyLabel(source)),
		e.call("adg_add_self_taint", pyLabel(sink)),
	}
	if sink.Kind == adg.LocalFile {
		lines = append(lines, e.call("adg_update_file_taint", pyRef(sink.Object), pyLabel(sink)))
	}
	return lines
}

// SaveTaint implements Emitter
func (e PythonEmitter) SaveTaint(n *adg.Node) []string {
	return []string{
		e.call("adg_add_self_taint", pyLabel(n)),
		e.call("adg_save_s3_taint", pyLabel(n), pyRef(n.Resource), pyRef(n.Object)),
	}
}

// Assertion implements Emitter
func (e PythonEmitter) Assertion(clauses []string) []string {
	if len(clauses) == 0 {
		return nil
	}
	var lines []string
	asks := make([]string, len(clauses))
	for i, c := range clauses {
		if strings.Contains(c, "taintSet") && len(lines) == 0 {
			lines = append(lines, e.call("adg_load_taint_facts"))
		}
		asks[i] = fmt.Sprintf(`pyDatalog.ask(f"%s") != None`, strings.ReplaceAll(c, `"`, `\"`))
	}
	return append(lines, fmt.Sprintf("assert %s, 'Policy evaluated to be false'", strings.Join(asks, " or ")))
}

const (
	// DefaultGoRuntime is the import path of the Go runtime of instrumented functions
	DefaultGoRuntime = "adgrt"
	// GoTaintStore is the name of the taint store in instrumented Go code
	GoTaintStore = "adgTaints"
)

// GoEmitter emits calls to the Go runtime package at ImportPath
type GoEmitter struct {
	ImportPath string
}

func goRef(r adg.Reference) string {
	if r.IsStatic() {
		return strconv.Quote(r.Name)
	}
	return r.Name
}

// goLabel renders an online label as a call concatenating its static text and the runtime values of its
// placeholders
func goLabel(n *adg.Node) string {
	label := taint.OnlineLabel(n)
	matches := placeholderRegex.FindAllStringSubmatchIndex(label, -1)
	if len(matches) == 0 {
		return strconv.Quote(label)
	}
	var args []string
	last := 0
	for _, m := range matches {
		if m[0] > last {
			args = append(args, strconv.Quote(label[last:m[0]]))
		}
		args = append(args, label[m[2]:m[3]])
		last = m[1]
	}
	if last < len(label) {
		args = append(args, strconv.Quote(label[last:]))
	}
	return "adgrt.Label(" + strings.Join(args, ", ") + ")"
}

func (GoEmitter) call(fn string, args ...string) string {
	return fmt.Sprintf("adgrt.%s(%s)", fn, strings.Join(append([]string{GoTaintStore}, args...), ", "))
}

// Preamble implements Emitter
func (e GoEmitter) Preamble() []string {
	return []string{fmt.Sprintf("import adgrt %s", strconv.Quote(e.ImportPath))}
}

// ParamTaint implements Emitter
func (e GoEmitter) ParamTaint(param *adg.Node) []string {
	return []string{
		fmt.Sprintf("%s := adgrt.ExtractParamTaint(%s, %s)", GoTaintStore, goLabel(param), eventName(param)),
		"_ = " + GoTaintStore,
		e.call("AddSelfTaint", goLabel(param)),
	}
}

// SourceTaint implements Emitter
func (e GoEmitter) SourceTaint(n *adg.Node) []string {
	var lines []string
	switch {
	case isObjectStore(n.Kind):
		lines = append(lines, e.call("AddObjectTaint", goLabel(n), goRef(n.Resource), goRef(n.Object)))
	case n.Kind == adg.LocalFile:
		lines = append(lines, e.call("AddFileTaint", goLabel(n), goRef(n.Object)))
	}
	return append(lines, e.call("AddSelfTaint", goLabel(n)))
}

// SinkTaint implements Emitter
func (e GoEmitter) SinkTaint(sink, source *adg.Node) []string {
	lines := []string{
		e.call("AddSourceTaint", goLabel(sink), goLabel(source)),
		e.call("AddSelfTaint", goLabel(sink)),
	}
	if sink.Kind == adg.LocalFile {
		lines = append(lines, e.call("UpdateFileTaint", goRef(sink.Object), goLabel(sink)))
	}
	return lines
}

// SaveTaint implements Emitter
func (e GoEmitter) SaveTaint(n *adg.Node) []string {
	return []string{
		e.call("AddSelfTaint", goLabel(n)),
		e.call("SaveObjectTaint", goLabel(n), goRef(n.Resource), goRef(n.Object)),
	}
}

// Assertion implements Emitter. The runtime evaluates the placeholders of the clauses with the values bound in
// the Vars argument.
func (e GoEmitter) Assertion(clauses []string) []string {
	if len(clauses) == 0 {
		return nil
	}
	names := assertionVars(clauses)
	bindings := make([]string, len(names))
	for i, v := range names {
		bindings[i] = fmt.Sprintf("%s: %s", strconv.Quote(v), v)
	}
	args := []string{"adgrt.Vars{" + strings.Join(bindings, ", ") + "}"}
	for _, c := range clauses {
		args = append(args, strconv.Quote(c))
	}
	return []string{e.call("Assert", args...)}
}

// assertionVars returns the sorted names of the program variables the clauses read at runtime: the placeholders and
// the events passed to getSessionProp
func assertionVars(clauses []string) []string {
	vars := map[string]bool{}
	for _, c := range clauses {
		for _, m := range placeholderRegex.FindAllStringSubmatch(c, -1) {
			vars[m[1]] = true
		}
		for _, m := range requestRegex.FindAllStringSubmatch(c, -1) {
			vars[m[1]] = true
		}
	}
	names := make([]string, 0, len(vars))
	for v := range vars {
		names = append(names, v)
	}
	sort.Strings(names)
	return names
}

const (
	// DefaultJavaScriptRuntime is the module required by instrumented JavaScript code
	DefaultJavaScriptRuntime = "adg-runtime"
	// JavaScriptTaintStore is the name of the taint store in instrumented JavaScript code
	JavaScriptTaintStore = "adgTaints"
)

// JavaScriptEmitter emits calls to the runtime module Module. Labels are template literals.
type JavaScriptEmitter struct {
	Module string
}

var jsEscaper = strings.NewReplacer(`\`, `\\`, "`", "\\`", "$", `\$`)

// jsLabel renders the online label of n as a template literal
func jsLabel(n *adg.Node) string {
	label := jsEscaper.Replace(taint.OnlineLabel(n))
	return "`" + placeholderRegex.ReplaceAllString(label, "$${${1}}") + "`"
}

func jsRef(r adg.Reference) string {
	if r.IsStatic() {
		return strconv.Quote(r.Name)
	}
	return r.Name
}

func (JavaScriptEmitter) call(fn string, args ...string) string {
	return fmt.Sprintf("adgrt.%s(%s);", fn, strings.Join(append([]string{JavaScriptTaintStore}, args...), ", "))
}

// Preamble implements Emitter
func (e JavaScriptEmitter) Preamble() []string {
	return []string{fmt.Sprintf("const adgrt = require(%s);", strconv.Quote(e.Module))}
}

// ParamTaint implements Emitter
func (e JavaScriptEmitter) ParamTaint(param *adg.Node) []string {
	return []string{
		fmt.Sprintf("const %s = adgrt.extractParamTaint(%s, %s);", JavaScriptTaintStore, jsLabel(param),
			eventName(param)),
		e.call("addSelfTaint", jsLabel(param)),
	}
}

// SourceTaint implements Emitter
func (e JavaScriptEmitter) SourceTaint(n *adg.Node) []string {
	var lines []string
	switch {
	case isObjectStore(n.Kind):
		lines = append(lines, e.call("addObjectTaint", jsLabel(n), jsRef(n.Resource), jsRef(n.Object)))
	case n.Kind == adg.LocalFile:
		lines = append(lines, e.call("addFileTaint", jsLabel(n), jsRef(n.Object)))
	}
	return append(lines, e.call("addSelfTaint", jsLabel(n)))
}

// SinkTaint implements Emitter
func (e JavaScriptEmitter) SinkTaint(sink, source *adg.Node) []string {
	lines := []string{
		e.call("addSourceTaint", jsLabel(sink), jsLabel(source)),
		e.call("addSelfTaint", jsLabel(sink)),
	}
	if sink.Kind == adg.LocalFile {
		lines = append(lines, e.call("updateFileTaint", jsRef(sink.Object), jsLabel(sink)))
	}
	return lines
}

// SaveTaint implements Emitter
func (e JavaScriptEmitter) SaveTaint(n *adg.Node) []string {
	return []string{
		e.call("addSelfTaint", jsLabel(n)),
		e.call("saveObjectTaint", jsLabel(n), jsRef(n.Resource), jsRef(n.Object)),
	}
}

// Assertion implements Emitter. As for Go, the runtime evaluates the placeholders of the clauses with the values
// of the vars object.
func (e JavaScriptEmitter) Assertion(clauses []string) []string {
	if len(clauses) == 0 {
		return nil
	}
	names := assertionVars(clauses)
	bindings := make([]string, len(names))
	for i, v := range names {
		bindings[i] = fmt.Sprintf("%s: %s", strconv.Quote(v), v)
	}
	args := []string{"{" + strings.Join(bindings, ", ") + "}"}
	for _, c := range clauses {
		args = append(args, strconv.Quote(c))
	}
	return []string{e.call("assert", args...)}
}
