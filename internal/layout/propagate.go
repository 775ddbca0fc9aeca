/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package layout

import (
	"github.com/oleiade/lane"
	log "github.com/sirupsen/logrus"

	"github.com/cloudwego/relayout/tir"
)

// propagate pushes anchor layouts forward to a fixpoint. Candidate sets only
// ever grow and layouts are drawn from the finite set seeded by the anchors,
// so termination is guaranteed.
func (p *propagation) propagate() {
	q := lane.NewQueue()
	for _, v := range p.layouts.values() {
		q.Enqueue(v)
	}

	for !q.Empty() {
		v := q.Dequeue().(*tir.Value)
		info, _ := p.layouts.get(v)
		candidates := append([]tir.Layout(nil), info.layouts...)

		changed := p.propagateToUsers(v, candidates)
		if len(changed) != 0 {
			log.Tracef("relayout: %d value(s) gained a candidate from %s", len(changed), v.Type())
		}
		for _, c := range changed {
			q.Enqueue(c)
		}
	}
}

// propagateToUsers derives the layouts v's candidates induce on each of its
// users and records them, returning the values whose candidate set grew.
func (p *propagation) propagateToUsers(v *tir.Value, candidates []tir.Layout) []*tir.Value {
	var changed []*tir.Value

	for _, use := range v.Uses() {
		user := use.Op
		switch {
		case user.Code() == tir.OpFor:
			if use.Index < 3 {
				continue // loop bounds carry no layout
			}
			arg := user.IterArg(use.Index - 3)
			result := user.Result(use.Index - 3)
			p.setLayouts([]*tir.Value{arg, result}, candidates, user, &changed)

		case user.Code() == tir.OpWhile:
			arg := user.Before().Arg(use.Index)
			p.setLayouts([]*tir.Value{arg}, candidates, user, &changed)

		case user.Code() == tir.OpYield:
			parent := user.Parent().Owner()
			if parent == nil {
				continue
			}
			var targets []*tir.Value
			switch parent.Code() {
			case tir.OpFor:
				targets = []*tir.Value{parent.Result(use.Index), parent.IterArg(use.Index)}
			case tir.OpIf:
				targets = []*tir.Value{parent.Result(use.Index)}
			case tir.OpWhile:
				targets = []*tir.Value{parent.Before().Arg(use.Index), parent.Operand(use.Index)}
			default:
				continue
			}
			p.setLayouts(targets, candidates, user, &changed)

		case user.Code() == tir.OpCondition:
			if use.Index == 0 {
				continue // the boolean decides control flow, not data layout
			}
			while := user.Parent().Owner()
			i := use.Index - 1
			p.setLayouts([]*tir.Value{while.After().Arg(i), while.Result(i)}, candidates, user, &changed)

		case user.Code() == tir.OpConvert,
			user.Code().IsElementwise(),
			user.Code().IsLayoutPreserving(),
			user.Code().IsShapeChanging():
			p.setLayouts(user.Results(), candidates, user, &changed)
		}
		// every other user kind is a propagation boundary
	}
	return changed
}

// setLayouts inserts the destination layouts the candidates induce through
// user into each target value's entry.
func (p *propagation) setLayouts(values []*tir.Value, candidates []tir.Layout, user *tir.Op, changed *[]*tir.Value) {
	for _, value := range values {
		if !value.Type().Tensor() {
			continue
		}
		grew := false
		for _, enc := range candidates {
			var dst tir.Layout
			var ok bool
			if user.Code() == tir.OpConvert {
				// try to erase the conversion by making its result match
				// the source layout directly
				dst, ok = enc, true
			} else {
				dst, ok = p.oracle.InferDestLayout(user, enc)
			}
			if ok && p.layouts.add(value, dst) {
				grew = true
			}
		}
		if grew {
			*changed = append(*changed, value)
		}
	}
}
