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

package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.AppName != "ImageProcessing" {
		t.Errorf("expected app name ImageProcessing, got %q", cfg.AppName)
	}
	if cfg.TemplatePath != filepath.Join("testdata", "app", "template.yaml") {
		t.Errorf("template path not resolved relative to config: %q", cfg.TemplatePath)
	}
	if cfg.DataflowResults != filepath.Join("testdata", "results", "dataflows.sarif") {
		t.Errorf("dataflow results not resolved relative to config: %q", cfg.DataflowResults)
	}
	if cfg.TemplateType != TemplateSAM {
		t.Errorf("expected default template type SAM, got %q", cfg.TemplateType)
	}
	if !cfg.HybridMode {
		t.Errorf("hybrid mode should be on by default")
	}
	if !cfg.PromoteMetadata {
		t.Errorf("promote-metadata should be set")
	}
	if cfg.Parallelism != 8 {
		t.Errorf("expected parallelism 8, got %d", cfg.Parallelism)
	}
	if !cfg.Verbose() {
		t.Errorf("log-level 4 should be verbose")
	}
	wantOut := filepath.Join("testdata", "app", "adg_ImageProcessing")
	if cfg.OutputDir != wantOut {
		t.Errorf("expected output dir %q, got %q", wantOut, cfg.OutputDir)
	}
	if cfg.PolicySpecPath != filepath.Join(wantOut, "policy_spec.yaml") {
		t.Errorf("unexpected policy spec path %q", cfg.PolicySpecPath)
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse("config.yaml", []byte("template-path: /abs/template.yaml\noptions:\n  hybrid-mode: false\n"))
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	if cfg.TemplatePath != "/abs/template.yaml" {
		t.Errorf("absolute template path should be unchanged, got %q", cfg.TemplatePath)
	}
	if cfg.HybridMode {
		t.Errorf("hybrid mode should be off")
	}
	if cfg.LogLevel != int(InfoLevel) {
		t.Errorf("expected default log level %d, got %d", InfoLevel, cfg.LogLevel)
	}
	if cfg.Parallelism != DefaultParallelism {
		t.Errorf("expected default parallelism, got %d", cfg.Parallelism)
	}
	if cfg.CloudProvider != ProviderAWS {
		t.Errorf("expected default provider AWS, got %q", cfg.CloudProvider)
	}
}

func TestParseTerraformWithLookups(t *testing.T) {
	text := "template-type: Terraform\ntemplate-path: infra\ncloud-provider: GCP\n" +
		"options:\n  aws-lookups: true\n  aws-profile: audit\n  aws-region: eu-west-1\n"
	cfg, err := Parse(filepath.Join("conf", "c.yaml"), []byte(text))
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	if cfg.TemplateType != TemplateTerraform || cfg.TemplatePath != filepath.Join("conf", "infra") {
		t.Errorf("unexpected template %s at %q", cfg.TemplateType, cfg.TemplatePath)
	}
	if cfg.AppRoot() != cfg.TemplatePath || cfg.OutputDir != filepath.Join("conf", "infra", "adg_app") {
		t.Errorf("terraform code and output should be under the configuration directory, got %q", cfg.OutputDir)
	}
	if !cfg.AWSLookups || cfg.AWSProfile != "audit" || cfg.AWSRegion != "eu-west-1" {
		t.Errorf("unexpected AWS lookup options %+v", cfg.Options)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join("testdata", "bad-provider.yaml")); err == nil {
		t.Errorf("expected an error for an unsupported provider")
	}
	if _, err := Parse("c.yaml", []byte("template-type: CloudFormation\ntemplate-path: t.yaml\n")); err == nil {
		t.Errorf("expected an error for an unsupported template type")
	}
	if _, err := Parse("c.yaml", []byte("app-name: x\n")); err == nil {
		t.Errorf("expected an error for a missing template path")
	}
	if _, err := Load(filepath.Join("testdata", "missing.yaml")); err == nil {
		t.Errorf("expected an error for a missing file")
	}
}

func TestLogGroupLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogGroupWriter(WarnLevel, &buf)
	l.SetAllFlags(0)
	l.Infof("hidden %d", 1)
	l.Debugf("hidden %d", 2)
	l.Warnf("shown %d", 3)
	l.Errorf("shown %d", 4)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("messages above the group level should be discarded: %q", out)
	}
	if strings.Count(out, "shown") != 2 {
		t.Errorf("expected the warning and the error in the output: %q", out)
	}
}
