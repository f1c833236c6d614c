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

package assembler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/awslabs/adg-policy/analysis/adg"
)

// ErrUnsupported is returned for malformed analyzer descriptors and for dependency shapes the assembler does not
// handle.
var ErrUnsupported = errors.New("unsupported construct")

// FlowSeparator separates the source and the sink descriptors of a flow
const FlowSeparator = "==>"

// descriptorRegex matches [IFACE, SCOPE, KIND:TAG:NAME, TAG:NAME](id)
var descriptorRegex = regexp.MustCompile(
	`^\[\s*([^,\s]+)\s*,\s*([^,\s]+)\s*,\s*([^:,]+):([^:,]+):([^,]*),\s*([^:,\]]+):([^\]]*)\]\((\d+)\)$`)

// A Descriptor is a node descriptor reported by the static analyzer
type Descriptor struct {
	Interface  adg.InterfaceType
	Scope      adg.Scope
	Kind       adg.ObjectKind
	Resource   adg.Reference
	Object     adg.Reference
	LocationID int
}

// ParseDescriptor parses a node descriptor. It returns nil and no error if the descriptor is a None side.
func ParseDescriptor(s string) (*Descriptor, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "None") || strings.HasPrefix(s, "[None") {
		return nil, nil
	}
	m := descriptorRegex.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("%w: malformed node descriptor %q", ErrUnsupported, s)
	}
	d := &Descriptor{Kind: adg.ObjectKind(strings.TrimSpace(m[3]))}
	switch adg.InterfaceType(strings.ToUpper(m[1])) {
	case adg.Source:
		d.Interface = adg.Source
	case adg.Sink:
		d.Interface = adg.Sink
	default:
		return nil, fmt.Errorf("%w: unknown interface %q in %q", ErrUnsupported, m[1], s)
	}
	var err error
	if d.Scope, err = adg.ParseScope(m[2]); err != nil {
		return nil, fmt.Errorf("%w: %v in %q", ErrUnsupported, err, s)
	}
	resTag, err := adg.ParseRefTag(m[4])
	if err != nil {
		return nil, fmt.Errorf("%w: %v in %q", ErrUnsupported, err, s)
	}
	objTag, err := adg.ParseRefTag(m[6])
	if err != nil {
		return nil, fmt.Errorf("%w: %v in %q", ErrUnsupported, err, s)
	}
	d.Resource = adg.Reference{Tag: resTag, Name: strings.TrimSpace(m[5])}
	d.Object = adg.Reference{Tag: objTag, Name: strings.TrimSpace(m[7])}
	// the regex only accepts digits
	d.LocationID, _ = strconv.Atoi(m[8])
	return d, nil
}

// ParseFlow parses a line of the analyzer's results. A line is either a single node descriptor, in which case
// sink is nil, or a flow "A ==> B". Either side of a flow may be None.
func ParseFlow(s string) (source *Descriptor, sink *Descriptor, err error) {
	sides := strings.Split(s, FlowSeparator)
	switch len(sides) {
	case 1:
		source, err = ParseDescriptor(sides[0])
		return source, nil, err
	case 2:
		if source, err = ParseDescriptor(sides[0]); err != nil {
			return nil, nil, err
		}
		if sink, err = ParseDescriptor(sides[1]); err != nil {
			return nil, nil, err
		}
		return source, sink, nil
	default:
		return nil, nil, fmt.Errorf("%w: flow with %d sides %q", ErrUnsupported, len(sides), s)
	}
}

// Node returns a new node for the descriptor, owned by fn, at position pos
func (d *Descriptor) Node(fn *adg.Function, pos adg.Position) *adg.Node {
	return &adg.Node{
		Resource: d.Resource,
		Object:   d.Object,
		Kind:     d.Kind,
		Function: fn,
		Position: pos,
		Scope:    d.Scope,
		IsSource: d.Interface == adg.Source,
		IsSink:   d.Interface == adg.Sink,
	}
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("[%s, %s, %s:%s:%s, %s:%s](%d)", d.Interface, d.Scope, d.Kind,
		d.Resource.Tag, d.Resource.Name, d.Object.Tag, d.Object.Name, d.LocationID)
}
