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

/*
Package config manages the configuration of an ADG policy analysis run.

Use [Load](filename) to load a configuration from a specific filename.

A config file is in yaml format. The top-level fields are the fields of the [Config] struct, and the options are
grouped under options. Relative paths are resolved against the directory of the config file. For example, a valid
config file is as follows:

	app-name: ImageProcessing
	template-path: template.yaml
	template-type: SAM
	dataflow-results: results/dataflows_python.sarif
	metadata-results: results/metadataflows_python.sarif
	cloud-provider: AWS
	options:
	  log-level: 4
	  hybrid-mode: true
	  promote-metadata: false

# Deployment profile

Templates are SAM templates, StepFunction definitions, or, with template-type Terraform, a directory of .tf files
declaring a Google Cloud application. The gcs-lookups and aws-lookups options let the analysis resolve the region of
storage resources by querying the deployed project or account (see aws-profile and aws-region).

The promote-metadata option controls whether flows of object properties and conditions (METADATA edges) are treated
as data flows and governed by policies. The alias-dynamic-references option makes every global node whose resource is
only known at runtime a potential alias of every declared resource of the same kind.
*/
package config
