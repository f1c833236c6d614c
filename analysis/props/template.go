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

package props

import (
	"context"
	"fmt"

	"github.com/awslabs/adg-policy/analysis/adg"
)

// TemplateLookup resolves properties from the resource declarations of the application template. Nodes are
// matched to their declared resource through the mapping made by the assembler.
type TemplateLookup struct{}

// Lookup implements policy.PropertyLookup
func (TemplateLookup) Lookup(_ context.Context, prop string, node *adg.Node) (string, error) {
	switch prop {
	case Resource, ResourceName:
		return node.Resource.Name, nil
	}
	r := node.Attrs.Mapped
	if r == nil {
		return "", fmt.Errorf("%w: %s of %s: resource is not declared in the template", ErrUnknownProperty, prop,
			node.Resource)
	}
	switch prop {
	case ResourceRegion:
		if r.Region != "" {
			return r.Region, nil
		}
		if s, ok := r.Metadata["Region"].(string); ok && s != "" {
			return s, nil
		}
	case ResourceType:
		return r.Type, nil
	}
	return "", fmt.Errorf("%w: %s of %s", ErrUnknownProperty, prop, r)
}
