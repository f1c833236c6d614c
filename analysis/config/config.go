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
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// TemplateSAM is the template type of AWS SAM templates
	TemplateSAM = "SAM"
	// TemplateStepFunction is the template type of a standalone state machine definition
	TemplateStepFunction = "StepFunction"
	// TemplateTerraform is the template type of Terraform configurations of Google Cloud applications
	TemplateTerraform = "Terraform"

	// ProviderAWS is the AWS cloud provider
	ProviderAWS = "AWS"
	// ProviderGCP is the Google Cloud cloud provider
	ProviderGCP = "GCP"

	// DefaultParallelism is the number of goroutines used by parallel analysis steps when the option is not set
	DefaultParallelism = 4
)

// Config contains the paths and options of an analysis run.
// If some field is not defined in the config file, it will be empty/zero in the struct, except for the fields that
// have a default in NewDefault.
// private fields are not populated from a yaml file, but computed after loading
type Config struct {
	Options `yaml:"options"`

	sourceFile string

	// AppName is the name of the analyzed application
	AppName string `yaml:"app-name"`

	// TemplatePath is the path to the infrastructure template of the application
	TemplatePath string `yaml:"template-path"`

	// TemplateType is the dialect of the template: SAM, StepFunction or Terraform. TemplatePath is a directory of
	// .tf files for Terraform.
	TemplateType string `yaml:"template-type"`

	// SrcDir is the directory containing the functions' code, relative to the template
	SrcDir string `yaml:"src-dir"`

	// DataflowResults is the path to the static analyzer's dataflow results (SARIF)
	DataflowResults string `yaml:"dataflow-results"`

	// MetadataResults is the path to the static analyzer's metadata flow results (SARIF). Optional.
	MetadataResults string `yaml:"metadata-results"`

	// OutputDir is the directory where the policy specification, graph and instrumented code are written
	OutputDir string `yaml:"output-dir"`

	// PolicySpecPath is the path of the developer-editable policy specification
	PolicySpecPath string `yaml:"policy-spec-path"`

	// CloudProvider is the provider the application is deployed on: AWS or GCP
	CloudProvider string `yaml:"cloud-provider"`
}

// Options groups the settings that change the behavior of the analysis
type Options struct {
	// LogLevel controls the verbosity of the tool
	LogLevel int `yaml:"log-level"`

	// HybridMode enables static resolution of policies. When false, every policy is deferred to a runtime assertion.
	HybridMode bool `yaml:"hybrid-mode"`

	// PromoteMetadata makes metadata flows security-relevant: they are added to the graph as DATA edges
	PromoteMetadata bool `yaml:"promote-metadata"`

	// AliasDynamicReferences makes global nodes with dynamic resource references potential aliases of every declared
	// resource of the same kind
	AliasDynamicReferences bool `yaml:"alias-dynamic-references"`

	// Parallelism is the number of goroutines used for building per-function graphs and resolving policies
	Parallelism int `yaml:"parallelism"`

	// GCSLookups enables looking up bucket properties in Google Cloud Storage
	GCSLookups bool `yaml:"gcs-lookups"`

	// GCSCredentials is a path to a service account key used for Google Cloud Storage lookups
	GCSCredentials string `yaml:"gcs-credentials"`

	// AWSLookups enables looking up the region of S3 buckets and DynamoDB tables in the deployed account
	AWSLookups bool `yaml:"aws-lookups"`

	// AWSProfile is the shared config profile used for AWS lookups. The default credential chain is used when empty.
	AWSProfile string `yaml:"aws-profile"`

	// AWSRegion is the region of the AWS API endpoints used for lookups
	AWSRegion string `yaml:"aws-region"`

	// SilenceWarn suppresses warnings
	SilenceWarn bool `yaml:"silence-warn"`
}

// NewDefault returns a default config.
func NewDefault() *Config {
	return &Config{
		sourceFile:    "",
		TemplateType:  TemplateSAM,
		CloudProvider: ProviderAWS,
		Options: Options{
			LogLevel:    int(InfoLevel),
			HybridMode:  true,
			Parallelism: DefaultParallelism,
		},
	}
}

// Load reads a configuration from a file
func Load(filename string) (*Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	return Parse(filename, b)
}

// Parse reads a configuration from the content b of the file filename. The filename is used to resolve relative paths.
func Parse(filename string, b []byte) (*Config, error) {
	cfg := NewDefault()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config file %s: %w", filename, err)
	}
	cfg.sourceFile = filename

	// If logLevel has not been specified (i.e. it is 0) set the default to Info
	if cfg.LogLevel == 0 {
		cfg.LogLevel = int(InfoLevel)
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}

	switch cfg.TemplateType {
	case TemplateSAM, TemplateStepFunction, TemplateTerraform:
	default:
		return nil, fmt.Errorf("unsupported template-type %q", cfg.TemplateType)
	}
	switch cfg.CloudProvider {
	case ProviderAWS, ProviderGCP:
	default:
		return nil, fmt.Errorf("unsupported cloud-provider %q", cfg.CloudProvider)
	}
	if cfg.TemplatePath == "" {
		return nil, fmt.Errorf("config %s does not specify a template-path", filename)
	}

	cfg.TemplatePath = cfg.RelPath(cfg.TemplatePath)
	if cfg.DataflowResults != "" {
		cfg.DataflowResults = cfg.RelPath(cfg.DataflowResults)
	}
	if cfg.MetadataResults != "" {
		cfg.MetadataResults = cfg.RelPath(cfg.MetadataResults)
	}
	if cfg.GCSCredentials != "" {
		cfg.GCSCredentials = cfg.RelPath(cfg.GCSCredentials)
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(cfg.AppRoot(), "adg_"+cfg.appName())
	} else {
		cfg.OutputDir = cfg.RelPath(cfg.OutputDir)
	}
	if cfg.PolicySpecPath == "" {
		cfg.PolicySpecPath = filepath.Join(cfg.OutputDir, "policy_spec.yaml")
	} else {
		cfg.PolicySpecPath = cfg.RelPath(cfg.PolicySpecPath)
	}
	return cfg, nil
}

func (c Config) appName() string {
	if c.AppName == "" {
		return "app"
	}
	return c.AppName
}

// RelPath returns filename path relative to the config source file. Absolute paths are returned unchanged.
func (c Config) RelPath(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(filepath.Dir(c.sourceFile), filename)
}

// AppRoot returns the directory the code paths of functions are relative to: the directory of the template, or the
// template path itself for Terraform configurations
func (c Config) AppRoot() string {
	if c.TemplateType == TemplateTerraform {
		return c.TemplatePath
	}
	return filepath.Dir(c.TemplatePath)
}

// GraphPath returns the path of the DOT rendering of the graph
func (c Config) GraphPath() string {
	return filepath.Join(c.OutputDir, "adg.dot")
}

// PlanPath returns the path of the instrumentation plan
func (c Config) PlanPath() string {
	return filepath.Join(c.OutputDir, "instrumentation.yaml")
}

// InstrumentedDir returns the directory where the instrumented copies of the functions are written
func (c Config) InstrumentedDir() string {
	return filepath.Join(c.OutputDir, c.appName()+"_instrumented")
}

// Verbose returns true is the configuration verbosity setting is larger than Info (i.e. Debug or Trace)
func (c Config) Verbose() bool {
	return c.LogLevel >= int(DebugLevel)
}
