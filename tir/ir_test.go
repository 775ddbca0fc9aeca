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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var testBlocked = BlockedLayout{VecSize: 1, LaneSpan: 32}

func testTensor(shape ...int64) Type {
	return TensorOf(F32, shape, testBlocked)
}

func TestUseLists(t *testing.T) {
	f := NewFunc("f", testTensor(8))
	b := NewBuilder().AtRegionEnd(f.Body())
	p := f.Param(0)

	s := b.Add(p, p)
	require.Len(t, p.Uses(), 2)
	require.Equal(t, OpAdd, s.Def().Code())

	m := b.Mul(s, p)
	require.Len(t, s.Uses(), 1)

	m.Def().SetOperand(0, p)
	require.False(t, s.HasUses())
	require.Len(t, p.Uses(), 4)
}

func TestReplaceAllUsesWith(t *testing.T) {
	f := NewFunc("f", testTensor(8), testTensor(8))
	b := NewBuilder().AtRegionEnd(f.Body())
	p, q := f.Param(0), f.Param(1)

	s := b.Add(p, p)
	u1 := b.Mul(s, s)
	u2 := b.Add(s, q)

	s.ReplaceAllUsesWith(q)
	require.False(t, s.HasUses())
	require.Equal(t, q, u1.Def().Operand(0))
	require.Equal(t, q, u1.Def().Operand(1))
	require.Equal(t, q, u2.Def().Operand(0))
	require.Len(t, q.Uses(), 4)
}

func TestEraseWithLiveUsesPanics(t *testing.T) {
	f := NewFunc("f", testTensor(8))
	b := NewBuilder().AtRegionEnd(f.Body())
	s := b.Add(f.Param(0), f.Param(0))
	b.Mul(s, s)
	require.Panics(t, func() { s.Def().Erase() })
}

func TestEraseDropsOperandUses(t *testing.T) {
	f := NewFunc("f", testTensor(8))
	b := NewBuilder().AtRegionEnd(f.Body())
	p := f.Param(0)
	s := b.Add(p, p)
	s.Def().Erase()
	require.False(t, p.HasUses())
	require.Empty(t, f.Body().Ops())
}

func TestForConstruction(t *testing.T) {
	f := NewFunc("f", testTensor(64))
	b := NewBuilder().AtRegionEnd(f.Body())
	lb := b.Const(Scalar(I32), 0)
	ub := b.Const(Scalar(I32), 16)
	step := b.Const(Scalar(I32), 1)

	loop := b.For(lb, ub, step, []*Value{f.Param(0)})
	require.Equal(t, 1, loop.NumIterArgs())
	require.Equal(t, f.Param(0), loop.InitArg(0))
	require.Equal(t, Scalar(I32), loop.InductionVar().Type())
	require.True(t, loop.IterArg(0).Type().Equal(f.Param(0).Type()))
	require.True(t, loop.Result(0).Type().Equal(f.Param(0).Type()))

	bb := NewBuilder().AtRegionEnd(loop.Body())
	sum := bb.Add(loop.IterArg(0), loop.IterArg(0))
	bb.Yield(sum)
	require.Equal(t, OpYield, loop.Body().Terminator().Code())
}

func TestCloneLoop(t *testing.T) {
	f := NewFunc("f", testTensor(64))
	b := NewBuilder().AtRegionEnd(f.Body())
	lb := b.Const(Scalar(I32), 0)
	ub := b.Const(Scalar(I32), 16)
	step := b.Const(Scalar(I32), 1)

	loop := b.For(lb, ub, step, []*Value{f.Param(0)})
	bb := NewBuilder().AtRegionEnd(loop.Body())
	sum := bb.Add(loop.IterArg(0), loop.IterArg(0))
	bb.Yield(sum)

	vm := make(ValueMap)
	dup := NewBuilder().AtRegionEnd(f.Body()).Clone(loop, vm)

	require.Equal(t, 1, dup.NumIterArgs())
	require.Len(t, dup.Body().Ops(), 2)
	require.Equal(t, vm[loop.Result(0)], dup.Result(0))

	inner := dup.Body().Ops()[0]
	require.Equal(t, OpAdd, inner.Code())
	require.Equal(t, dup.IterArg(0), inner.Operand(0))
	require.Equal(t, inner.Result(0), dup.Body().Terminator().Operand(0))

	// the original is untouched
	require.Equal(t, sum.Def(), loop.Body().Ops()[0])
}

func TestCloneKeepsAttributes(t *testing.T) {
	f := NewFunc("f", TensorOf(Ptr, []int64{64}, testBlocked))
	b := NewBuilder().AtRegionEnd(f.Body())
	l := b.Load(f.Param(0), F32, true)
	r := b.Reduce(l, 0)

	vm := make(ValueMap)
	dupLoad := b.Clone(l.Def(), vm)
	dupReduce := b.Clone(r.Def(), vm)
	require.True(t, dupLoad.Expensive())
	require.Equal(t, 0, dupReduce.Axis())
	require.Equal(t, vm[l], dupReduce.Operand(0))
}

func TestPrint(t *testing.T) {
	f := NewFunc("kernel", testTensor(128))
	b := NewBuilder().AtRegionEnd(f.Body())
	s := b.Add(f.Param(0), f.Param(0))
	b.Convert(s, BlockedLayout{VecSize: 4, LaneSpan: 32, Order: 1})

	out := f.String()
	require.Contains(t, out, "kernel")
	require.Contains(t, out, "%arg0")
	require.Contains(t, out, "add")
	require.Contains(t, out, "convert")
	require.Contains(t, out, "tensor<128xf32")
	require.Equal(t, 1, strings.Count(out, "add"))
}

func TestTypeString(t *testing.T) {
	tt := TensorOf(F16, []int64{128, 64}, testBlocked)
	require.Contains(t, tt.String(), "tensor<128x64xf16")
	require.Equal(t, "f32", Scalar(F32).String())
	require.Equal(t, int64(128*64), tt.Elems())
}
