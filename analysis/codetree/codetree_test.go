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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/awslabs/adg-policy/analysis/adg"
)

const pythonSource = `import boto3

s3 = boto3.client("s3")


def lambda_handler(event, context):
    key = event["key"]
    if key:
        s3.download_file("uploads", key,
                         "/tmp/img")
    return {"ok": True}
`

const javascriptSource = `const AWS = require("aws-sdk");

exports.handler = async (event) => {
  const params = {
    Bucket: "uploads",
  };
  await s3.getObject(params).promise();
  return params;
};
`

const goSource = "package main\n" +
	"\n" +
	"import \"github.com/aws/aws-lambda-go/lambda\"\n" +
	"\n" +
	"func handler(event map[string]string) (string, error) {\n" +
	"\tkey := event[\"key\"]\n" +
	"\tif key != \"\" {\n" +
	"\t\treturn key, nil\n" +
	"\t}\n" +
	"\treturn \"\", nil\n" +
	"}\n" +
	"\n" +
	"func main() {\n" +
	"\tlambda.Start(handler)\n" +
	"}\n"

type query struct {
	line   int
	ok     bool
	start  int
	end    int
	indent string
}

func checkQueries(t *testing.T, what string, f func(int) (adg.Span, bool), queries []query) {
	t.Helper()
	for _, q := range queries {
		s, ok := f(q.line)
		if ok != q.ok {
			t.Errorf("%s(%d): expected found=%v, got %v", what, q.line, q.ok, ok)
			continue
		}
		if ok && (s.StartLine != q.start || s.EndLine != q.end || s.Indent != q.indent) {
			t.Errorf("%s(%d): expected %d-%d indented %q, got %d-%d indented %q", what, q.line, q.start, q.end,
				q.indent, s.StartLine, s.EndLine, s.Indent)
		}
	}
}

func TestPython(t *testing.T) {
	tree, err := Parse(context.Background(), adg.Python, "app.py", []byte(pythonSource))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	checkQueries(t, "StatementAt", tree.StatementAt, []query{
		{1, true, 1, 1, ""},
		{2, false, 0, 0, ""},
		{6, true, 6, 11, ""},
		{8, true, 8, 10, "    "},
		{10, true, 9, 10, "        "},
		{11, true, 11, 11, "    "},
	})
	if tree.PreambleLine() != 1 {
		t.Errorf("imports should be inserted at the top of the file, got line %d", tree.PreambleLine())
	}
	checkQueries(t, "BodyStart", tree.BodyStart, []query{
		{6, true, 7, 7, "    "},
		{7, false, 0, 0, ""},
	})
}

func TestJavaScript(t *testing.T) {
	tree, err := Parse(context.Background(), adg.JavaScript, "index.js", []byte(javascriptSource))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	checkQueries(t, "StatementAt", tree.StatementAt, []query{
		{1, true, 1, 1, ""},
		{5, true, 4, 6, "  "},
		{7, true, 7, 7, "  "},
		{9, true, 3, 9, ""},
	})
	checkQueries(t, "BodyStart", tree.BodyStart, []query{
		{3, true, 4, 6, "  "},
	})
}

func TestGo(t *testing.T) {
	tree, err := Parse(context.Background(), adg.Go, "main.go", []byte(goSource))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	checkQueries(t, "StatementAt", tree.StatementAt, []query{
		{3, false, 0, 0, ""},
		{6, true, 6, 6, "\t"},
		{7, true, 7, 9, "\t"},
		{8, true, 8, 8, "\t\t"},
		{14, true, 14, 14, "\t"},
	})
	if tree.PreambleLine() != 3 {
		t.Errorf("imports should be inserted before the first declaration, got line %d", tree.PreambleLine())
	}
	checkQueries(t, "BodyStart", tree.BodyStart, []query{
		{5, true, 6, 6, "\t"},
		{13, true, 14, 14, "\t"},
	})
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse(context.Background(), "java", "App.java", nil); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}
	if _, err := Parse(context.Background(), adg.Go, "main.go", []byte("package main\nfunc {")); err == nil {
		t.Errorf("expected a syntax error")
	}
	if _, err := Parse(context.Background(), adg.Python, "app.py", []byte("def f(:\n")); err == nil {
		t.Errorf("expected a syntax error")
	}
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	fn := adg.NewFunction("Resize", "AWS::Serverless::Function", "python3.12", "src/resize")
	fn.Handler = "app.lambda_handler"
	dir := filepath.Join(root, "src", "resize")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.py"), []byte(pythonSource), 0o644); err != nil {
		t.Fatal(err)
	}
	tree, err := Load(context.Background(), root, fn, fn.HandlerFile())
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if span, ok := tree.BodyStart(6); !ok || span.StartLine != 7 {
		t.Errorf("expected the body of lambda_handler to start at line 7, got %v", span)
	}
	missing := adg.NewFunction("Tag", "AWS::Serverless::Function", "python3.12", "src/tag")
	if _, err := Load(context.Background(), root, missing, missing.HandlerFile()); err == nil {
		t.Errorf("expected an error for a missing handler file")
	}
}
