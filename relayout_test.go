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

package relayout

import (
	"errors"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/relayout/tir"
)

var (
	blockedA = tir.BlockedLayout{VecSize: 1, LaneSpan: 32}
	blockedB = tir.BlockedLayout{VecSize: 4, LaneSpan: 32, Order: 1}
)

func countConverts(m *tir.Module) int {
	n := 0
	m.Walk(func(op *tir.Op) {
		if op.Code() == tir.OpConvert {
			n++
		}
	})
	return n
}

// An expensive load inside a loop anchors its layout: the accumulator is
// retyped across the loop and a single conversion survives at the store.
func TestOptimizeLoopAccumulator(t *testing.T) {
	f := tir.NewFunc("kernel",
		tir.TensorOf(tir.Ptr, []int64{128}, blockedA),
		tir.TensorOf(tir.Ptr, []int64{128}, blockedB),
		tir.Scalar(tir.I32), tir.Scalar(tir.I32), tir.Scalar(tir.I32))
	b := tir.NewBuilder().AtRegionEnd(f.Body())
	zero := b.Const(tir.Scalar(tir.F32), 0)
	acc0 := b.Splat(tir.TensorOf(tir.F32, []int64{128}, blockedB), zero)
	loop := b.For(f.Param(2), f.Param(3), f.Param(4), []*tir.Value{acc0})
	bb := tir.NewBuilder().AtRegionEnd(loop.Body())
	l := bb.Load(f.Param(0), tir.F32, true)
	cv := bb.Convert(l, blockedB)
	bb.Yield(bb.Add(loop.IterArg(0), cv))
	b.Store(f.Param(1), loop.Result(0), false)

	m := tir.NewModule(f)
	require.NoError(t, Optimize(m))
	require.NoError(t, tir.Verify(m))
	require.Equal(t, 1, countConverts(m))

	// the loop now carries the load's layout
	f.Walk(func(op *tir.Op) {
		if op.Code() == tir.OpFor {
			require.Equal(t, tir.Layout(blockedA), op.IterArg(0).Type().Layout)
		}
	})
}

// However long the elementwise chain between the anchoring load and the
// store, everything lands on the load's layout and exactly one conversion
// remains at the store boundary.
func TestOptimizeElementwiseChain(t *testing.T) {
	gofakeit.Seed(7)

	for round := 0; round < 8; round++ {
		f := tir.NewFunc("kernel",
			tir.TensorOf(tir.Ptr, []int64{64}, blockedA),
			tir.TensorOf(tir.Ptr, []int64{64}, blockedB))
		b := tir.NewBuilder().AtRegionEnd(f.Body())
		l := b.Load(f.Param(0), tir.F32, true)
		v := b.Convert(l, blockedB)
		for i, n := 0, gofakeit.Number(3, 10); i < n; i++ {
			if gofakeit.Bool() {
				v = b.Add(v, v)
			} else {
				v = b.Mul(v, v)
			}
		}
		b.Store(f.Param(1), v, false)

		m := tir.NewModule(f)
		require.NoError(t, Optimize(m))
		require.NoError(t, tir.Verify(m))
		require.Equal(t, 1, countConverts(m))

		stores := 0
		f.Walk(func(op *tir.Op) {
			if op.Code() == tir.OpStore {
				stores++
				require.Equal(t, tir.Layout(blockedB), op.Operand(1).Type().Layout)
			}
		})
		require.Equal(t, 1, stores)
	}
}

// The cost threshold decides whether a load may be duplicated under another
// layout or pins it.
func TestOptimizeExpensiveMemThreshold(t *testing.T) {
	build := func() *tir.Module {
		f := tir.NewFunc("kernel",
			tir.Scalar(tir.Ptr),
			tir.TensorOf(tir.Ptr, []int64{64}, blockedB))
		b := tir.NewBuilder().AtRegionEnd(f.Body())
		p := b.Splat(tir.TensorOf(tir.Ptr, []int64{64}, blockedA), f.Param(0))
		l := b.Load(p, tir.F32, false)
		c := b.Convert(l, blockedB)
		b.Store(f.Param(1), c, false)
		return tir.NewModule(f)
	}

	// 64 elements is cheap by default, so the load rematerializes and the
	// conversion disappears
	m := build()
	require.NoError(t, Optimize(m))
	require.Equal(t, 0, countConverts(m))

	// with the threshold lowered the same load anchors its layout
	m = build()
	require.NoError(t, Optimize(m, WithExpensiveMemElems(32)))
	require.Equal(t, 1, countConverts(m))
}

func TestStageError(t *testing.T) {
	err := StageError{Stage: "Conversion Cleanup", Err: ErrTest}
	require.Contains(t, err.Error(), "Conversion Cleanup")
	require.True(t, errors.Is(err, ErrTest))
}

var ErrTest = errors.New("test error")

func TestWithOracleRejectsNil(t *testing.T) {
	require.Panics(t, func() { WithOracle(nil) })
}

type fixedOracle struct {
	tir.DefaultOracle
}

// An explicitly installed oracle wins over the threshold option regardless of
// the order the options are applied in; the threshold only tunes the stock
// oracle.
func TestOptionsKeepExplicitOracle(t *testing.T) {
	custom := fixedOracle{}

	opt := defaultOptions()
	WithOracle(custom)(&opt)
	WithExpensiveMemElems(32)(&opt)
	require.Equal(t, tir.Oracle(custom), opt.oracle())

	opt = defaultOptions()
	WithExpensiveMemElems(32)(&opt)
	WithOracle(custom)(&opt)
	require.Equal(t, tir.Oracle(custom), opt.oracle())

	opt = defaultOptions()
	WithExpensiveMemElems(32)(&opt)
	require.Equal(t, tir.Oracle(tir.DefaultOracle{ExpensiveMemElems: 32}), opt.oracle())
}
