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

package tir

import (
	"github.com/cloudwego/relayout/internal/opts"
)

// Oracle answers the layout questions the optimizer cannot decide on its own:
// how a layout transfers across one op, in either direction, and which ops
// the cost model treats specially. A false second return means "no constraint
// can be derived", not an error.
type Oracle interface {
	// InferDestLayout returns the layout op's results take when its tensor
	// operands are laid out as src.
	InferDestLayout(op *Op, src Layout) (Layout, bool)

	// InferSourceLayout returns the layout op's tensor operands must have
	// for its results to come out laid out as dst.
	InferSourceLayout(op *Op, dst Layout) (Layout, bool)

	// CanFoldConversion reports whether op can absorb a conversion of its
	// result to dst at negligible cost.
	CanFoldConversion(op *Op, dst Layout) bool

	// ExpensiveMemoryOp reports whether op is a load or store heavy enough
	// that its layout must not be disturbed.
	ExpensiveMemoryOp(op *Op) bool
}

// DefaultOracle implements the stock transfer rules: elementwise and
// layout-preserving ops pass layouts through unchanged, reductions collapse
// into a slice of the operand layout, dimension expansion inverts it, the
// structured control-flow ops and their terminators forward values as-is,
// and everything else derives no constraint.
type DefaultOracle struct {
	// ExpensiveMemElems overrides the element-count threshold above which a
	// load or store anchors its layout. Zero selects the global default.
	ExpensiveMemElems int64
}

func (d DefaultOracle) InferDestLayout(op *Op, src Layout) (Layout, bool) {
	code := op.Code()
	switch {
	case code.IsElementwise() || code.IsLayoutPreserving():
		return src, true
	case code.IsControl() || code.IsTerminator():
		// control flow moves values between regions without touching them
		return src, true
	case code == OpReduce:
		return SliceLayout{Dim: op.Axis(), Parent: src}, true
	case code == OpExpandDims:
		if sl, ok := src.(SliceLayout); ok && sl.Dim == op.Axis() {
			return sl.Parent, true
		}
		return nil, false
	case code == OpJoin || code == OpSplit:
		return src, true
	default:
		return nil, false
	}
}

func (d DefaultOracle) InferSourceLayout(op *Op, dst Layout) (Layout, bool) {
	code := op.Code()
	switch {
	case code.IsElementwise() || code.IsLayoutPreserving():
		return dst, true
	case code.IsControl() || code.IsTerminator():
		return dst, true
	case code == OpReduce:
		if sl, ok := dst.(SliceLayout); ok && sl.Dim == op.Axis() {
			return sl.Parent, true
		}
		return nil, false
	case code == OpExpandDims:
		return SliceLayout{Dim: op.Axis(), Parent: dst}, true
	case code == OpJoin || code == OpSplit:
		return dst, true
	default:
		return nil, false
	}
}

func (d DefaultOracle) CanFoldConversion(op *Op, dst Layout) bool {
	switch op.Code() {
	case OpConst, OpSplat, OpIota:
		return true
	default:
		return false
	}
}

func (d DefaultOracle) ExpensiveMemoryOp(op *Op) bool {
	if !op.Code().IsMemory() {
		return false
	}
	if op.Expensive() {
		return true
	}
	threshold := d.ExpensiveMemElems
	if threshold == 0 {
		threshold = int64(opts.ExpensiveMemElems)
	}
	return op.Operand(0).Type().Elems() >= threshold
}
