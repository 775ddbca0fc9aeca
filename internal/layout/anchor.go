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
	"github.com/cloudwego/relayout/tir"
)

// propagation carries the per-invocation state of layout assignment for one
// function: the candidate map filled by the forward pass and the rewrite
// bookkeeping used when the chosen layouts are materialized.
type propagation struct {
	fn      *tir.Func
	oracle  tir.Oracle
	layouts *layoutMap

	/* rewrite state */
	mapping   map[rewriteKey]*tir.Value
	converted map[rewriteKey]*tir.Value
	dead      []*tir.Op
}

// rewriteKey addresses the rewritten twin of a value under a specific layout.
type rewriteKey struct {
	value *tir.Value
	enc   tir.Layout
}

func newPropagation(fn *tir.Func, oracle tir.Oracle) *propagation {
	return &propagation{
		fn:        fn,
		oracle:    oracle,
		layouts:   newLayoutMap(),
		mapping:   make(map[rewriteKey]*tir.Value),
		converted: make(map[rewriteKey]*tir.Value),
	}
}

// isLayoutAnchor reports whether op fixes the layout of its results. Matrix
// multiplies and atomics always do; loads and stores only when the cost model
// marks them expensive. A reorder-permitting reshape is treated as an anchor
// so that forward propagation stops at it and the backward passes get a
// chance to fix it up.
func isLayoutAnchor(op *tir.Op, oracle tir.Oracle) bool {
	code := op.Code()
	switch {
	case code.IsMemory():
		return oracle.ExpensiveMemoryOp(op)
	case code == tir.OpDot || code.IsAtomic():
		return true
	case code == tir.OpReshape:
		return op.AllowReorder()
	default:
		return false
	}
}

// initAnchors seeds the candidate map with one layout per anchor value, in a
// fixed order: function parameters first, then results in program order.
func (p *propagation) initAnchors() {
	for _, arg := range p.fn.Params() {
		p.maybeAddAnchor(arg)
	}
	p.fn.Walk(func(op *tir.Op) {
		if isLayoutAnchor(op, p.oracle) {
			for _, res := range op.Results() {
				p.maybeAddAnchor(res)
			}
		}
	})
}

func (p *propagation) maybeAddAnchor(v *tir.Value) {
	t := v.Type()
	if !t.Tensor() {
		return
	}
	// An accelerator-tile layout is only worth propagating when something
	// downstream converts back into the tile family; otherwise it would drag
	// reductions and elementwise code onto a slower layout for nothing.
	if tl, ok := t.Layout.(tir.TileLayout); ok && v.Def() != nil && !hasConvertToTileUse(v.Def(), tl) {
		return
	}
	p.layouts.add(v, t.Layout)
}

// hasConvertToTileUse searches the transitive users of op's first result,
// following loop-carried values back through the iteration arguments, for a
// conversion into the accelerator-tile family.
func hasConvertToTileUse(op *tir.Op, enc tir.TileLayout) bool {
	queue := []*tir.Value{op.Result(0)}
	fwd := newOpSet()
	seen := make(map[*tir.Value]bool)

	for len(queue) != 0 {
		current := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		forwardSlice(current, fwd)

		for _, user := range fwd.order {
			if user.Code() == tir.OpConvert {
				dst := user.Result(0).Type().Layout
				if tl, ok := dst.(tir.TileLayout); ok {
					if tl.Version > 1 {
						return true
					}
					return tl == enc
				}
				if tir.IsOperand(dst) {
					return enc.Version > 1
				}
			}
			if user.Code() != tir.OpYield {
				continue
			}
			parent := user.Parent().Owner()
			if parent == nil || parent.Code() != tir.OpFor {
				continue
			}
			for i, operand := range user.Operands() {
				def := operand.Def()
				if def != nil && fwd.contains(def) && !seen[operand] {
					seen[operand] = true
					queue = append(queue, parent.IterArg(i))
				}
			}
		}
	}
	return false
}

// forwardSlice accumulates every op transitively using v into set.
func forwardSlice(v *tir.Value, set *opSet) {
	for _, u := range v.Uses() {
		if !set.add(u.Op) {
			continue
		}
		for _, res := range u.Op.Results() {
			forwardSlice(res, set)
		}
	}
}
