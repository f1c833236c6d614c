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

// Package props implements the lookups resolving Resource variables of policies at analysis time.
//
// A lookup returns the value of a property of the resource represented by a node, or an error when the property
// cannot be known before deployment. Callers defer failed lookups to runtime.
package props

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/awslabs/adg-policy/analysis/adg"
	"github.com/awslabs/adg-policy/analysis/policy"
	"golang.org/x/sync/singleflight"
)

// ErrUnknownProperty is returned when a lookup cannot resolve the property
var ErrUnknownProperty = errors.New("unknown property")

const (
	Resource       = "Resource"
	ResourceName   = "ResourceName"
	ResourceRegion = "ResourceRegion"
	ResourceType   = "ResourceType"
)

// A Chain tries each lookup in order and returns the first value found
type Chain []policy.PropertyLookup

// Lookup implements policy.PropertyLookup
func (c Chain) Lookup(ctx context.Context, prop string, node *adg.Node) (string, error) {
	var errs []error
	for _, l := range c {
		v, err := l.Lookup(ctx, prop, node)
		if err == nil {
			return v, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%w: %s of %s", ErrUnknownProperty, prop, node.Resource)
	}
	return "", errors.Join(errs...)
}

// Cached memoizes lookups per property and resource, and runs at most one lookup per key at a time.
type Cached struct {
	lookup policy.PropertyLookup
	group  singleflight.Group

	mu     sync.RWMutex
	values map[string]cachedValue
}

type cachedValue struct {
	value string
	err   error
}

// NewCached returns a cache over l
func NewCached(l policy.PropertyLookup) *Cached {
	return &Cached{lookup: l, values: map[string]cachedValue{}}
}

// Lookup implements policy.PropertyLookup. Failed lookups are cached too.
func (c *Cached) Lookup(ctx context.Context, prop string, node *adg.Node) (string, error) {
	key := strings.Join([]string{prop, string(node.Kind), node.Resource.String()}, "|")
	c.mu.RLock()
	v, ok := c.values[key]
	c.mu.RUnlock()
	if ok {
		return v.value, v.err
	}
	res, _, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		v, ok := c.values[key]
		c.mu.RUnlock()
		if ok {
			return v, nil
		}
		value, err := c.lookup.Lookup(ctx, prop, node)
		v = cachedValue{value, err}
		c.mu.Lock()
		c.values[key] = v
		c.mu.Unlock()
		return v, nil
	})
	v = res.(cachedValue)
	return v.value, v.err
}
