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

package policy

import (
	"math"
	"strconv"
	"strings"
)

// Outcome is the result of asking an Evaluator whether a conjunction of predicates holds
type Outcome int

const (
	// Unknown means the predicates cannot be decided at analysis time
	Unknown Outcome = iota
	// Proven means the predicates hold
	Proven
	// Disproven means the predicates cannot hold
	Disproven
)

func (o Outcome) String() string {
	switch o {
	case Proven:
		return "proven"
	case Disproven:
		return "disproven"
	default:
		return "unknown"
	}
}

// An Evaluator decides conjunctions of predicates at analysis time
type Evaluator interface {
	Ask(preds []*Predicate) Outcome
}

// Engine is the built-in Evaluator. Predicates are functional relations over string and number literals: the
// engine binds variables from predicates whose other arguments are known, until no predicate makes progress.
// Runtime placeholders, taint predicates and ipToCountry are Unknown, and so are type errors and predicates left
// with unbound variables.
type Engine struct{}

var _ Evaluator = Engine{}

type value struct {
	isNum bool
	num   float64
	str   string
}

func numValue(f float64) value { return value{isNum: true, num: f} }

func strValue(s string) value { return value{str: s} }

func (v value) String() string {
	if v.isNum {
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return v.str
}

// number returns the numeric value of v, parsing strings
func (v value) number() (float64, bool) {
	if v.isNum {
		return v.num, true
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
	return f, err == nil
}

type status int

const (
	pending status = iota
	holds
	fails
	undecidable
)

type env map[string]value

func (e env) resolve(t Term) (value, bool) {
	switch t.Kind {
	case StringLit:
		return strValue(t.Str), true
	case NumberLit:
		return numValue(t.Num), true
	default:
		v, ok := e[t.Text]
		return v, ok
	}
}

// Ask implements Evaluator
func (Engine) Ask(preds []*Predicate) Outcome {
	for _, p := range preds {
		if p.Op.IsRuntimeOnly() {
			return Unknown
		}
		for _, a := range p.Args {
			if a.IsPlaceholder() {
				return Unknown
			}
		}
	}
	bindings := env{}
	remaining := append([]*Predicate(nil), preds...)
	for progress := true; progress && len(remaining) > 0; {
		progress = false
		next := remaining[:0]
		for _, p := range remaining {
			switch bindings.step(p) {
			case holds:
				progress = true
			case fails:
				return Disproven
			case undecidable:
				return Unknown
			default:
				next = append(next, p)
			}
		}
		remaining = next
	}
	if len(remaining) > 0 {
		return Unknown
	}
	return Proven
}

// step evaluates p under the current bindings, binding at most one variable
func (e env) step(p *Predicate) status {
	switch p.Op {
	case OpEq:
		return e.unify(p.Args[0], p.Args[1])
	case OpNeq:
		a, okA := e.resolve(p.Args[0])
		b, okB := e.resolve(p.Args[1])
		if !okA || !okB {
			return pending
		}
		return truth(!equal(a, b))
	case OpLt, OpLe, OpGt, OpGe:
		return e.compare(p)
	case OpAdd, OpSub, OpMul, OpDiv:
		return e.arithmetic(p)
	case OpIsPrefix, OpIsSuffix, OpHasSubstr:
		s, okS := e.resolve(p.Args[0])
		sub, okSub := e.resolve(p.Args[1])
		if !okS || !okSub {
			return pending
		}
		switch p.Op {
		case OpIsPrefix:
			return truth(strings.HasPrefix(s.String(), sub.String()))
		case OpIsSuffix:
			return truth(strings.HasSuffix(s.String(), sub.String()))
		default:
			return truth(strings.Contains(s.String(), sub.String()))
		}
	case OpConcat:
		return e.concat(p)
	}
	return undecidable
}

func truth(b bool) status {
	if b {
		return holds
	}
	return fails
}

func equal(a, b value) bool {
	if a.isNum || b.isNum {
		x, okX := a.number()
		y, okY := b.number()
		return okX && okY && x == y
	}
	return a.str == b.str
}

// unify makes t1 and t2 equal, binding the one that is an unbound variable
func (e env) unify(t1, t2 Term) status {
	a, okA := e.resolve(t1)
	b, okB := e.resolve(t2)
	switch {
	case okA && okB:
		return truth(equal(a, b))
	case okA:
		e[t2.Text] = a
		return holds
	case okB:
		e[t1.Text] = b
		return holds
	}
	return pending
}

// bind binds t to v, or checks that t equals v when t is known
func (e env) bind(t Term, v value) status {
	if known, ok := e.resolve(t); ok {
		return truth(equal(known, v))
	}
	e[t.Text] = v
	return holds
}

func (e env) compare(p *Predicate) status {
	a, okA := e.resolve(p.Args[0])
	b, okB := e.resolve(p.Args[1])
	if !okA || !okB {
		return pending
	}
	var c int
	if !a.isNum && !b.isNum {
		c = strings.Compare(a.str, b.str)
	} else {
		x, okX := a.number()
		y, okY := b.number()
		if !okX || !okY {
			return undecidable
		}
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	}
	switch p.Op {
	case OpLt:
		return truth(c < 0)
	case OpLe:
		return truth(c <= 0)
	case OpGt:
		return truth(c > 0)
	default:
		return truth(c >= 0)
	}
}

// arithmetic evaluates op(X, Y, Z), X = Y op Z, in any direction where two of the arguments are known
func (e env) arithmetic(p *Predicate) status {
	var nums [3]float64
	var known [3]bool
	for i, t := range p.Args {
		v, ok := e.resolve(t)
		if !ok {
			continue
		}
		f, isNum := v.number()
		if !isNum {
			return undecidable
		}
		nums[i], known[i] = f, true
	}
	x, y, z := nums[0], nums[1], nums[2]
	var target int
	var result float64
	switch {
	case known[1] && known[2]:
		target = 0
		switch p.Op {
		case OpAdd:
			result = y + z
		case OpSub:
			result = y - z
		case OpMul:
			result = y * z
		case OpDiv:
			if z == 0 {
				return undecidable
			}
			result = y / z
		}
	case known[0] && known[1]:
		// solve for Z
		target = 2
		switch p.Op {
		case OpAdd:
			result = x - y
		case OpSub:
			result = y - x
		case OpMul:
			if y == 0 {
				return undecidable
			}
			result = x / y
		case OpDiv:
			if x == 0 {
				return undecidable
			}
			result = y / x
		}
	case known[0] && known[2]:
		// solve for Y
		target = 1
		switch p.Op {
		case OpAdd:
			result = x - z
		case OpSub:
			result = x + z
		case OpMul:
			if z == 0 {
				return undecidable
			}
			result = x / z
		case OpDiv:
			result = x * z
		}
	default:
		return pending
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return undecidable
	}
	return e.bind(p.Args[target], numValue(result))
}

// concat evaluates concat(C, S1, S2), C = S1 + S2
func (e env) concat(p *Predicate) status {
	c, okC := e.resolve(p.Args[0])
	s1, ok1 := e.resolve(p.Args[1])
	s2, ok2 := e.resolve(p.Args[2])
	switch {
	case ok1 && ok2:
		return e.bind(p.Args[0], strValue(s1.String()+s2.String()))
	case okC && ok1:
		rest, found := strings.CutPrefix(c.String(), s1.String())
		if !found {
			return fails
		}
		return e.bind(p.Args[2], strValue(rest))
	case okC && ok2:
		rest, found := strings.CutSuffix(c.String(), s2.String())
		if !found {
			return fails
		}
		return e.bind(p.Args[1], strValue(rest))
	}
	return pending
}
