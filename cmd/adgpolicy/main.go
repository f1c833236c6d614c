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


// adgpolicy builds the application dependency graph of a serverless application and enforces the information-flow
// policies attached to its edges.
//
// Usage:
//
//	adgpolicy analyze --config config.yaml
//	adgpolicy enforce --config config.yaml
//	adgpolicy render --config config.yaml [--out adg.dot]
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/awslabs/adg-policy/analysis/resolver"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		errExit(err)
	}
}

func errExit(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	if hint := hintFor(err); hint != "" {
		fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	}
	if errors.Is(err, resolver.ErrStaticPolicyFailure) {
		os.Exit(1)
	}
	os.Exit(2)
}

func hintFor(err error) string {
	msg := err.Error()
	switch {
	case errors.Is(err, resolver.ErrStaticPolicyFailure):
		return "edit the policy specification, or the code of the functions, so that the flows can satisfy it"
	case strings.Contains(msg, "could not read policy specification"):
		return "run `adgpolicy analyze` first to write the policy specification"
	case strings.Contains(msg, "does not match the application"):
		return "the application changed since the specification was written, run `adgpolicy analyze` again"
	case strings.Contains(msg, "could not read config file"):
		return "pass the path of the configuration with --config"
	}
	return ""
}
