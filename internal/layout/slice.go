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
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/cloudwego/relayout/internal/opts"
	"github.com/cloudwego/relayout/tir"
)

// convertBackwardSlice walks the producers of root, assigning each visited
// value the layout it would need for root to carry rootEnc without any
// conversion. It reports false when the slice cannot be retyped: a loop
// result (which would entangle the whole iteration space), a producer whose
// operand layout cannot be derived, or a block argument that is not a
// loop-carried one.
func convertBackwardSlice(root *tir.Value, rootEnc tir.Layout, slice *valueSet, layouts map[*tir.Value]tir.Layout, oracle tir.Oracle, stop func(*tir.Op) bool) bool {
	type item struct {
		v   *tir.Value
		enc tir.Layout
	}
	seen := make(map[item]bool)
	var queue []item
	enqueue := func(v *tir.Value, enc tir.Layout) {
		it := item{v, enc}
		if seen[it] {
			return
		}
		seen[it] = true
		queue = append(queue, it)
	}
	enqueue(root, rootEnc)

	for len(queue) != 0 {
		it := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		v, enc := it.v, it.enc
		if !v.Type().Tensor() {
			continue
		}

		def := v.Def()
		if def != nil && def.Code() == tir.OpFor {
			return false
		}
		slice.add(v)
		layouts[v] = enc

		if def != nil && def.Code() == tir.OpIf {
			// descend into whichever branch produced the value
			idx := resultIndex(def, v)
			enqueue(def.ThenYield().Operand(idx), enc)
			enqueue(def.ElseYield().Operand(idx), enc)
			continue
		}
		if def != nil {
			if stop != nil && stop(def) {
				continue
			}
			// leaf producers have no operands and constrain nothing upstream
			if def.NumOperands() > 0 {
				srcEnc, ok := oracle.InferSourceLayout(def, enc)
				if !ok {
					return false
				}
				for _, operand := range def.Operands() {
					enqueue(operand, srcEnc)
				}
			}
			continue
		}

		// block argument: only loop iteration arguments can be followed, via
		// both the init operand and the back edge
		owner := v.Home().Owner()
		if owner == nil || owner.Code() != tir.OpFor {
			return false
		}
		pos := v.Pos() - 1 // slot 0 is the induction variable
		enqueue(owner.InitArg(pos), enc)
		enqueue(v.Home().Terminator().Operand(pos), enc)
	}
	return true
}

func resultIndex(op *tir.Op, v *tir.Value) int {
	for i, res := range op.Results() {
		if res == v {
			return i
		}
	}
	panic("relayout: value is not a result of its defining op")
}

// canBeRemat reports whether the op producing a slice value may be duplicated
// under a new layout. Memory ops qualify only when cheap; ops with their own
// regions, shared-staging ops and matrix multiplies never do.
func canBeRemat(op *tir.Op, oracle tir.Oracle) bool {
	switch op.Code() {
	case tir.OpLoad, tir.OpStore:
		return !oracle.ExpensiveMemoryOp(op)
	case tir.OpExtractSlice, tir.OpAlloc, tir.OpInsertAsync,
		tir.OpAtomicRMW, tir.OpAtomicCAS, tir.OpDot,
		tir.OpIf, tir.OpWhile, tir.OpCondition:
		return false
	}
	return true
}

// rematerializableSlice computes the backward slice of root for rootEnc and
// accepts it only when every member may be duplicated and the total stays
// under the configured cutoff.
func rematerializableSlice(root *tir.Value, rootEnc tir.Layout, layouts map[*tir.Value]tir.Layout, oracle tir.Oracle, stop func(*tir.Op) bool) (*valueSet, bool) {
	slice := newValueSet()
	if !convertBackwardSlice(root, rootEnc, slice, layouts, oracle, stop) {
		return nil, false
	}
	if slice.empty() || slice.len() > opts.MaxRematSliceOps {
		return nil, false
	}
	for _, v := range slice.order {
		if def := v.Def(); def != nil && !canBeRemat(def, oracle) {
			return nil, false
		}
	}
	return slice, true
}

// multiRootTopologicalSort orders the ops so that producers precede their
// consumers; an op nested in a loop additionally follows the loop op itself.
// Rematerialization gives up when the subgraph has a cycle.
func multiRootTopologicalSort(ops *opSet) ([]*tir.Op, bool) {
	g := simple.NewDirectedGraph()
	id := make(map[*tir.Op]int64, len(ops.order))
	byID := make(map[int64]*tir.Op, len(ops.order))
	for i, op := range ops.order {
		id[op] = int64(i)
		byID[int64(i)] = op
		g.AddNode(simple.Node(int64(i)))
	}
	addEdge := func(from, to *tir.Op) {
		if from == to {
			return
		}
		g.SetEdge(simple.Edge{F: simple.Node(id[from]), T: simple.Node(id[to])})
	}
	for _, op := range ops.order {
		for _, res := range op.Results() {
			for _, use := range res.Uses() {
				if _, ok := id[use.Op]; ok {
					addEdge(op, use.Op)
				}
			}
		}
		// a loop dominates everything in its body
		if op.Code() == tir.OpFor {
			for _, other := range ops.order {
				if other != op && nestedIn(other, op) {
					addEdge(op, other)
				}
			}
		}
	}

	sorted, err := topo.Sort(g)
	if err != nil {
		return nil, false
	}
	out := make([]*tir.Op, 0, len(sorted))
	for _, n := range sorted {
		out = append(out, byID[n.ID()])
	}
	return out, true
}

func nestedIn(op *tir.Op, ancestor *tir.Op) bool {
	for r := op.Parent(); r != nil; r = r.Owner().Parent() {
		owner := r.Owner()
		if owner == nil {
			return false
		}
		if owner == ancestor {
			return true
		}
	}
	return false
}

// rewriteSlice duplicates every producer in the slice under the layouts the
// backward walk assigned, rethreads the conversion's users onto the clones
// and erases the conversion. The original producers are left for dead-code
// cleanup since values outside the slice may still use them.
func rewriteSlice(slice *valueSet, layouts map[*tir.Value]tir.Layout, cvt *tir.Op, mapping tir.ValueMap) {
	ops := newOpSet()
	for _, v := range slice.order {
		if def := v.Def(); def != nil {
			ops.add(def)
			continue
		}
		// loop-carried argument: the loop and its back edge both change
		owner := v.Home().Owner()
		ops.add(owner)
		ops.add(v.Home().Terminator())
	}

	sorted, ok := multiRootTopologicalSort(ops)
	if !ok {
		return
	}

	var deadLoops []*tir.Op
	for _, op := range sorted {
		switch op.Code() {
		case tir.OpFor:
			appendLoopArgs(op, slice, layouts, mapping)
			deadLoops = append(deadLoops, op)

		case tir.OpYield:
			// extend the back edge with the rematerialized twins
			operands := append([]*tir.Value(nil), op.Operands()...)
			for _, operand := range op.Operands() {
				if !slice.contains(operand) {
					continue
				}
				operands = append(operands, mapping.Lookup(operand))
			}
			b := tir.NewBuilder().Before(op)
			b.Yield(operands...)
			op.Erase()

		case tir.OpConst, tir.OpSplat, tir.OpIota:
			b := tir.NewBuilder().Before(op)
			n := b.Clone(op, make(tir.ValueMap))
			mapping[op.Result(0)] = b.Convert(n.Result(0), layouts[op.Result(0)])

		default:
			b := tir.NewBuilder().Before(op)
			n := b.Clone(op, mapping)
			for i, res := range n.Results() {
				old := op.Result(i)
				if enc, ok := layouts[old]; ok && res.Type().Tensor() {
					res.SetType(res.Type().WithLayout(enc))
				}
			}
		}
	}

	cvt.Result(0).ReplaceAllUsesWith(mapping.Lookup(cvt.Operand(0)))
	cvt.Erase()
	for i := len(deadLoops) - 1; i >= 0; i-- {
		deadLoops[i].Erase()
	}
}

// appendLoopArgs rebuilds a loop with one extra iteration slot per
// rematerialized loop-carried value. The old loop's values are replaced by
// the new prefix slots, so slice membership and layout assignments migrate to
// the replacements before the loop's terminator is rewritten.
func appendLoopArgs(op *tir.Op, slice *valueSet, layouts map[*tir.Value]tir.Layout, mapping tir.ValueMap) *tir.Op {
	inits := append([]*tir.Value(nil), op.InitArgs()...)
	var extraFrom []int // iter-arg index each appended slot shadows
	for i := 0; i < op.NumIterArgs(); i++ {
		if !slice.contains(op.IterArg(i)) {
			continue
		}
		// the remat twin of the init value carries the new layout already
		inits = append(inits, mapping.Lookup(op.InitArg(i)))
		extraFrom = append(extraFrom, i)
	}

	b := tir.NewBuilder().Before(op)
	newOp := b.For(op.Operand(0), op.Operand(1), op.Operand(2), inits)
	newOp.Body().SpliceOps(op.Body())

	op.InductionVar().ReplaceAllUsesWith(newOp.InductionVar())
	for i := 0; i < op.NumIterArgs(); i++ {
		oldArg, oldRes := op.IterArg(i), op.Result(i)
		newArg, newRes := newOp.IterArg(i), newOp.Result(i)
		if slice.contains(oldArg) {
			slice.remove(oldArg)
			slice.add(newArg)
			layouts[newArg] = layouts[oldArg]
		}
		oldArg.ReplaceAllUsesWith(newArg)
		oldRes.ReplaceAllUsesWith(newRes)
	}
	for k, src := range extraFrom {
		slot := op.NumIterArgs() + k
		mapping[newOp.IterArg(src)] = newOp.IterArg(slot)
		mapping[newOp.Result(src)] = newOp.Result(slot)
	}
	return newOp
}
