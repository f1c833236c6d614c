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
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/awslabs/adg-policy/analysis/adg"
	"github.com/awslabs/adg-policy/analysis/config"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

const (
	GCPBucketType   = "GCP::Storage::Bucket"
	GCPFunctionType = "GCP::CloudFunctions::Function"

	tfBucket          = "google_storage_bucket"
	tfBucketObject    = "google_storage_bucket_object"
	tfFunction        = "google_cloudfunctions_function"
	tfFunction2       = "google_cloudfunctions2_function"
	tfArchive         = "archive_file"
	defaultGCPRuntime = "python312"
)

// LoadTerraform reads the Terraform configuration in the .tf files of dir, or in the single file dir
func LoadTerraform(dir string, logger *config.LogGroup) (*Template, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("could not read terraform configuration: %w", err)
	}
	files := []string{dir}
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(dir, "*.tf"))
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no .tf file in %s", dir)
		}
	}
	sources := map[string][]byte{}
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("could not read terraform configuration: %w", err)
		}
		sources[filepath.Base(f)] = b
	}
	return ParseTerraform(sources, logger)
}

// tfParser holds the values needed to evaluate the attributes of a Terraform configuration
type tfParser struct {
	ctx      *hcl.EvalContext
	region   string
	archives map[string]string // archive_file data source -> source_dir
	objects  map[string]string // bucket object -> archive_file data source
	logger   *config.LogGroup
}

// ParseTerraform parses Terraform files, keyed by file name. Buckets and Cloud Functions are the resources of the
// template; the storage event triggers of functions are their dependencies. Attributes are evaluated with the
// defaults of the declared variables, and the code of a function is the source directory of the archive it is
// deployed from.
func ParseTerraform(sources map[string][]byte, logger *config.LogGroup) (*Template, error) {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	parser := hclparse.NewParser()
	var decls []*hclsyntax.Block
	for _, name := range names {
		f, diags := parser.ParseHCL(sources[name], name)
		if diags.HasErrors() {
			return nil, diags
		}
		body, ok := f.Body.(*hclsyntax.Body)
		if !ok {
			return nil, fmt.Errorf("%s is not in native syntax", name)
		}
		decls = append(decls, body.Blocks...)
	}

	p := &tfParser{archives: map[string]string{}, objects: map[string]string{}, logger: logger}
	p.ctx = &hcl.EvalContext{Variables: map[string]cty.Value{"var": p.variables(decls)}}
	for _, b := range decls {
		switch {
		case b.Type == "provider" && label(b, 0) == "google":
			if s, ok := p.literal(attr(b.Body, "region")); ok {
				p.region = s
			}
		case b.Type == "data" && label(b, 0) == tfArchive:
			if s, ok := p.literal(attr(b.Body, "source_dir")); ok {
				p.archives[label(b, 1)] = s
			}
		case b.Type == "resource" && label(b, 0) == tfBucketObject:
			if ref := reference(attr(b.Body, "source")); len(ref) >= 3 && ref[0] == "data" && ref[1] == tfArchive {
				p.objects[label(b, 1)] = ref[2]
			}
		}
	}

	t := &Template{}
	triggers := map[*adg.Function][]hclsyntax.Expression{}
	for _, b := range decls {
		if b.Type != "resource" {
			continue
		}
		typ, name := label(b, 0), label(b, 1)
		switch typ {
		case tfBucket:
			t.addResource(name, GCPBucketType, p.bucketMetadata(b.Body))
			t.Resources[len(t.Resources)-1].Base().Region = p.bucketRegion(b.Body)
		case tfFunction, tfFunction2:
			fn, trigger := p.function(typ, name, b.Body)
			t.addFunction(fn)
			triggers[fn] = trigger
		case tfBucketObject:
		default:
			logger.Warnf("Unsupported resource type %s of %s", typ, name)
		}
	}

	for _, fn := range t.Functions {
		for _, expr := range triggers[fn] {
			source, ok := p.triggerSource(t, expr)
			if !ok {
				return nil, fmt.Errorf("event trigger of %s does not refer to a declared bucket", fn.Name)
			}
			addDependency(source, fn)
		}
	}
	return t, nil
}

// variables returns the object of the default values of the declared variables
func (p *tfParser) variables(decls []*hclsyntax.Block) cty.Value {
	vars := map[string]cty.Value{}
	for _, b := range decls {
		if b.Type != "variable" {
			continue
		}
		expr := attr(b.Body, "default")
		if expr == nil {
			continue
		}
		if v, diags := expr.Value(nil); !diags.HasErrors() {
			vars[label(b, 0)] = v
		}
	}
	return cty.ObjectVal(vars)
}

func (p *tfParser) bucketMetadata(body *hclsyntax.Body) map[string]any {
	m := map[string]any{}
	if s, ok := p.literal(attr(body, "name")); ok {
		m["Name"] = s
	}
	if s, ok := p.literal(attr(body, "location")); ok {
		m["Location"] = s
	}
	return m
}

// bucketRegion returns the lowercased location of a bucket, or the region of the provider
func (p *tfParser) bucketRegion(body *hclsyntax.Body) string {
	if s, ok := p.literal(attr(body, "location")); ok {
		return strings.ToLower(s)
	}
	return p.region
}

// function returns the function declared by body, and the expressions naming the sources of its event triggers
func (p *tfParser) function(typ, name string, body *hclsyntax.Body) (*adg.Function, []hclsyntax.Expression) {
	build := body
	var archiveRef, triggers []hclsyntax.Expression
	if typ == tfFunction2 {
		if b := block(body, "build_config"); b != nil {
			build = b
			if src := block(b, "source", "storage_source"); src != nil {
				archiveRef = append(archiveRef, attr(src, "object"))
			}
		}
		if ev := block(body, "event_trigger"); ev != nil {
			for _, f := range blocks(ev, "event_filters") {
				if s, _ := p.literal(attr(f, "attribute")); s == "bucket" {
					triggers = append(triggers, attr(f, "value"))
				}
			}
		}
	} else {
		archiveRef = append(archiveRef, attr(body, "source_archive_object"))
		if ev := block(body, "event_trigger"); ev != nil {
			if s, _ := p.literal(attr(ev, "event_type")); strings.HasPrefix(s, "google.storage.") {
				triggers = append(triggers, attr(ev, "resource"))
			} else {
				p.logger.Warnf("Unsupported event type %q of %s", s, name)
			}
		}
	}

	runtime, ok := p.literal(attr(build, "runtime"))
	if !ok {
		runtime = defaultGCPRuntime
	}
	codePath := "."
	for _, expr := range archiveRef {
		if ref := reference(expr); len(ref) >= 2 && ref[0] == tfBucketObject {
			if dir, ok := p.archives[p.objects[ref[1]]]; ok {
				codePath = path.Clean(filepath.ToSlash(dir))
			}
		}
	}
	if codePath == "." {
		p.logger.Debugf("No archive source directory found for %s, its code is the application root", name)
	}

	fn := adg.NewFunction(name, GCPFunctionType, runtime, codePath)
	entry, _ := p.literal(attr(build, "entry_point"))
	fn.Metadata["EntryPoint"] = entry
	switch fn.Language() {
	case adg.Python:
		fn.Handler = "main." + entry
	case adg.JavaScript:
		fn.Handler = "index." + entry
	default:
		fn.Handler = entry
	}
	fn.Region = p.region
	if s, ok := p.literal(attr(body, "region")); ok {
		fn.Region = s
	} else if s, ok := p.literal(attr(body, "location")); ok {
		fn.Region = s
	}
	return fn, triggers
}

// triggerSource returns the bucket named by expr: a reference to a bucket resource, or the physical name of one
func (p *tfParser) triggerSource(t *Template, expr hclsyntax.Expression) (adg.Entity, bool) {
	if ref := reference(expr); len(ref) >= 2 && ref[0] == tfBucket {
		return t.Resource(ref[1])
	}
	if s, ok := p.literal(expr); ok {
		for _, r := range t.Resources {
			if r.Base().Type == GCPBucketType && r.Base().PhysicalName() == s {
				return r, true
			}
		}
	}
	return nil, false
}

// literal returns the string value of expr, when it does not depend on other resources
func (p *tfParser) literal(expr hclsyntax.Expression) (string, bool) {
	if expr == nil {
		return "", false
	}
	v, diags := expr.Value(p.ctx)
	if diags.HasErrors() || v.IsNull() || !v.IsKnown() || v.Type() != cty.String {
		return "", false
	}
	return v.AsString(), true
}

// reference returns the names of the static traversal expr, e.g. [google_storage_bucket uploads name]
func reference(expr hclsyntax.Expression) []string {
	if expr == nil {
		return nil
	}
	trav, diags := hcl.AbsTraversalForExpr(expr)
	if diags.HasErrors() {
		return nil
	}
	names := []string{trav.RootName()}
	for _, step := range trav[1:] {
		if a, ok := step.(hcl.TraverseAttr); ok {
			names = append(names, a.Name)
		}
	}
	return names
}

func label(b *hclsyntax.Block, i int) string {
	if i < len(b.Labels) {
		return b.Labels[i]
	}
	return ""
}

func attr(body *hclsyntax.Body, name string) hclsyntax.Expression {
	if body == nil {
		return nil
	}
	if a, ok := body.Attributes[name]; ok {
		return a.Expr
	}
	return nil
}

func blocks(body *hclsyntax.Body, typ string) []*hclsyntax.Body {
	var res []*hclsyntax.Body
	for _, b := range body.Blocks {
		if b.Type == typ {
			res = append(res, b.Body)
		}
	}
	return res
}

// block returns the first nested block along the chain of block types
func block(body *hclsyntax.Body, types ...string) *hclsyntax.Body {
	for _, typ := range types {
		bs := blocks(body, typ)
		if len(bs) == 0 {
			return nil
		}
		body = bs[0]
	}
	return body
}
