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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudwego/relayout/tir"
)

var (
	blockedA = tir.BlockedLayout{VecSize: 1, LaneSpan: 32}
	blockedB = tir.BlockedLayout{VecSize: 4, LaneSpan: 32, Order: 1}
	tileA    = tir.TileLayout{Version: 2, Span: 16}
)

func tensor(l tir.Layout, shape ...int64) tir.Type {
	return tir.TensorOf(tir.F32, shape, l)
}

func ptrs(l tir.Layout, shape ...int64) tir.Type {
	return tir.TensorOf(tir.Ptr, shape, l)
}

func converts(f *tir.Func) []*tir.Op {
	var out []*tir.Op
	f.Walk(func(op *tir.Op) {
		if op.Code() == tir.OpConvert {
			out = append(out, op)
		}
	})
	return out
}

func ops(f *tir.Func, code tir.Opcode) []*tir.Op {
	var out []*tir.Op
	f.Walk(func(op *tir.Op) {
		if op.Code() == code {
			out = append(out, op)
		}
	})
	return out
}

// A parameter flowing through an elementwise op into a matrix multiply with a
// matching layout needs no conversion anywhere.
func TestAssignUniformLayoutInsertsNothing(t *testing.T) {
	f := tir.NewFunc("kernel",
		tensor(blockedA, 128, 128),
		tensor(tir.OperandLayout{Index: 0, Parent: tileA}, 128, 128),
		tensor(tir.OperandLayout{Index: 1, Parent: tileA}, 128, 128))
	b := tir.NewBuilder().AtRegionEnd(f.Body())
	e := b.Add(f.Param(0), f.Param(0))
	b.Dot(f.Param(1), f.Param(2), e)

	p := newPropagation(f, tir.DefaultOracle{})
	p.initAnchors()
	p.propagate()
	p.resolve()
	for _, v := range p.layouts.values() {
		info, _ := p.layouts.get(v)
		require.Equal(t, 1, info.count())
	}
	p.rewrite()

	require.NoError(t, tir.VerifyFunc(f))
	require.Empty(t, converts(f))
}

// Two anchors reaching one value with different layouts: the atomic in the
// middle keeps its blocked layout and a single conversion lands on the
// matrix-multiply side.
func TestAssignResolvesConflictTowardsMemory(t *testing.T) {
	f := tir.NewFunc("kernel",
		tensor(tir.OperandLayout{Index: 0, Parent: tileA}, 128, 128),
		tensor(tir.OperandLayout{Index: 1, Parent: tileA}, 128, 128),
		ptrs(blockedA, 128, 128))
	b := tir.NewBuilder().AtRegionEnd(f.Body())
	zero := b.Const(tir.Scalar(tir.F32), 0)
	acc := b.Splat(tensor(tileA, 128, 128), zero)
	d := b.Dot(f.Param(0), f.Param(1), acc)
	c1 := b.Convert(d, blockedA)
	am := b.AtomicRMW(f.Param(2), c1)
	b.Convert(am, tir.OperandLayout{Index: 0, Parent: tileA})

	p := newPropagation(f, tir.DefaultOracle{})
	p.initAnchors()
	p.propagate()

	info, ok := p.layouts.get(am)
	require.True(t, ok)
	require.Equal(t, 2, info.count())

	p.resolve()
	require.Equal(t, tir.Layout(blockedA), info.resolved())

	p.rewrite()
	require.NoError(t, tir.VerifyFunc(f))
	require.NoError(t, Canonicalize(tir.NewModule(f)))

	cs := converts(f)
	require.Len(t, cs, 1)
	require.Equal(t, d, cs[0].Operand(0))
	require.Equal(t, tir.Layout(blockedA), cs[0].Result(0).Type().Layout)

	ams := ops(f, tir.OpAtomicRMW)
	require.Len(t, ams, 1)
	require.Equal(t, cs[0].Result(0), ams[0].Operand(1))
}

// An expensive load inside a loop drags the loop-carried accumulator onto its
// layout: the loop is rebuilt with retyped iteration slots.
func TestAssignRetypesLoopCarriedValues(t *testing.T) {
	f := tir.NewFunc("kernel",
		ptrs(blockedA, 128),
		ptrs(blockedB, 128),
		tir.Scalar(tir.I32), tir.Scalar(tir.I32), tir.Scalar(tir.I32))
	b := tir.NewBuilder().AtRegionEnd(f.Body())
	zero := b.Const(tir.Scalar(tir.F32), 0)
	acc0 := b.Splat(tensor(blockedB, 128), zero)
	loop := b.For(f.Param(2), f.Param(3), f.Param(4), []*tir.Value{acc0})
	bb := tir.NewBuilder().AtRegionEnd(loop.Body())
	l := bb.Load(f.Param(0), tir.F32, true)
	cv := bb.Convert(l, blockedB)
	acc1 := bb.Add(loop.IterArg(0), cv)
	bb.Yield(acc1)
	b.Store(f.Param(1), loop.Result(0), false)

	Assign(f, tir.DefaultOracle{})
	require.NoError(t, tir.VerifyFunc(f))

	loops := ops(f, tir.OpFor)
	require.Len(t, loops, 1)
	newLoop := loops[0]
	require.Equal(t, 1, newLoop.NumIterArgs())
	require.Equal(t, tir.Layout(blockedA), newLoop.Result(0).Type().Layout)
	require.Equal(t, tir.Layout(blockedA), newLoop.IterArg(0).Type().Layout)
	yield := newLoop.Body().Terminator()
	require.Equal(t, tir.Layout(blockedA), yield.Operand(0).Type().Layout)

	// the store still sees its declared layout
	stores := ops(f, tir.OpStore)
	require.Len(t, stores, 1)
	require.Equal(t, tir.Layout(blockedB), stores[0].Operand(1).Type().Layout)

	require.NoError(t, Canonicalize(tir.NewModule(f)))
	require.NoError(t, tir.VerifyFunc(f))
	// only the conversion back to the store's layout survives cleanup
	require.Len(t, converts(f), 1)
}

// getValueAs must reuse the conversion it already inserted for a
// (value, layout) pair instead of inserting another.
func TestGetValueAsInsertsOneConversionPerPair(t *testing.T) {
	f := tir.NewFunc("kernel", tensor(blockedA, 64))
	p := newPropagation(f, tir.DefaultOracle{})

	x := f.Param(0)
	first := p.getValueAs(x, blockedB)
	second := p.getValueAs(x, blockedB)
	require.Equal(t, first, second)
	require.Len(t, converts(f), 1)
	require.Equal(t, tir.Layout(blockedB), first.Type().Layout)

	// a different target layout is a different pair
	third := p.getValueAs(x, tileA)
	require.NotEqual(t, first, third)
	require.Len(t, converts(f), 2)
}

// A layout reaching a branch result through one arm retypes the whole if op;
// the other arm gets coerced at its yield.
func TestAssignRewritesIfResult(t *testing.T) {
	f := tir.NewFunc("kernel",
		tir.Scalar(tir.I1),
		ptrs(blockedA, 64),
		ptrs(blockedB, 64))
	b := tir.NewBuilder().AtRegionEnd(f.Body())
	l := b.Load(f.Param(1), tir.F32, true)
	ifOp := b.If(f.Param(0), []tir.Type{tensor(blockedB, 64)})
	tb := tir.NewBuilder().AtRegionEnd(ifOp.Then())
	tb.Yield(tb.Convert(l, blockedB))
	eb := tir.NewBuilder().AtRegionEnd(ifOp.Else())
	zero := eb.Const(tir.Scalar(tir.F32), 0)
	eb.Yield(eb.Splat(tensor(blockedB, 64), zero))
	b.Store(f.Param(2), ifOp.Result(0), false)

	Assign(f, tir.DefaultOracle{})
	require.NoError(t, tir.VerifyFunc(f))
	require.NoError(t, Canonicalize(tir.NewModule(f)))

	ifs := ops(f, tir.OpIf)
	require.Len(t, ifs, 1)
	require.Equal(t, tir.Layout(blockedA), ifs[0].Result(0).Type().Layout)
	require.Equal(t, l, ifs[0].ThenYield().Operand(0))

	elseVal := ifs[0].ElseYield().Operand(0)
	require.Equal(t, tir.OpSplat, elseVal.Def().Code())
	require.Equal(t, tir.Layout(blockedA), elseVal.Type().Layout)

	cs := converts(f)
	require.Len(t, cs, 1)
	require.Equal(t, ifs[0].Result(0), cs[0].Operand(0))
	require.Equal(t, tir.Layout(blockedB), cs[0].Result(0).Type().Layout)
}

// A while loop is rebuilt with both region signatures retyped when an anchor
// layout reaches its carried value.
func TestAssignRewritesWhileLoop(t *testing.T) {
	f := tir.NewFunc("kernel",
		ptrs(blockedA, 64),
		ptrs(blockedB, 64),
		tir.Scalar(tir.I1))
	b := tir.NewBuilder().AtRegionEnd(f.Body())
	l := b.Load(f.Param(0), tir.F32, true)
	cv := b.Convert(l, blockedB)
	w := b.While([]*tir.Value{cv}, []tir.Type{tensor(blockedB, 64)})
	cb := tir.NewBuilder().AtRegionEnd(w.Before())
	cb.Condition(f.Param(2), w.Before().Arg(0))
	ab := tir.NewBuilder().AtRegionEnd(w.After())
	ab.Yield(ab.Add(w.After().Arg(0), w.After().Arg(0)))
	b.Store(f.Param(1), w.Result(0), false)

	Assign(f, tir.DefaultOracle{})
	require.NoError(t, tir.VerifyFunc(f))
	require.NoError(t, Canonicalize(tir.NewModule(f)))

	whiles := ops(f, tir.OpWhile)
	require.Len(t, whiles, 1)
	nw := whiles[0]
	require.Equal(t, tir.Layout(blockedA), nw.Result(0).Type().Layout)
	require.Equal(t, tir.Layout(blockedA), nw.Before().Arg(0).Type().Layout)
	require.Equal(t, tir.Layout(blockedA), nw.After().Arg(0).Type().Layout)
	require.Equal(t, l, nw.Operand(0))

	cs := converts(f)
	require.Len(t, cs, 1)
	require.Equal(t, nw.Result(0), cs[0].Operand(0))
}

// A tile-layout anchor with no conversion back into the tile family is
// dropped, so it cannot drag elementwise code onto the slow path.
func TestAssignSkipsUnusedTileAnchor(t *testing.T) {
	f := tir.NewFunc("kernel",
		tensor(tir.OperandLayout{Index: 0, Parent: tileA}, 64, 64),
		tensor(tir.OperandLayout{Index: 1, Parent: tileA}, 64, 64))
	b := tir.NewBuilder().AtRegionEnd(f.Body())
	zero := b.Const(tir.Scalar(tir.F32), 0)
	acc := b.Splat(tensor(tileA, 64, 64), zero)
	d := b.Dot(f.Param(0), f.Param(1), acc)
	b.Convert(d, blockedA)

	p := newPropagation(f, tir.DefaultOracle{})
	p.initAnchors()
	_, ok := p.layouts.get(d)
	require.False(t, ok)
}
