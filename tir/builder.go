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

// Builder inserts newly created ops at a movable insertion point inside one
// region.
type Builder struct {
	region *Region
	at     int
}

func NewBuilder() *Builder {
	return new(Builder)
}

func (b *Builder) AtRegionStart(r *Region) *Builder {
	b.region, b.at = r, 0
	return b
}

func (b *Builder) AtRegionEnd(r *Region) *Builder {
	b.region, b.at = r, len(r.ops)
	return b
}

func (b *Builder) Before(op *Op) *Builder {
	b.region, b.at = op.parent, op.parent.indexOf(op)
	return b
}

func (b *Builder) After(op *Op) *Builder {
	b.region, b.at = op.parent, op.parent.indexOf(op)+1
	return b
}

// AfterValue places the insertion point right after the op defining v, or at
// the start of the owning region when v is a region argument.
func (b *Builder) AfterValue(v *Value) *Builder {
	if v.IsArg() {
		return b.AtRegionStart(v.Home())
	}
	return b.After(v.Def())
}

func (b *Builder) insert(op *Op) *Op {
	if b.region == nil {
		panic("tir: builder has no insertion point")
	}
	b.region.insertAt(b.at, op)
	b.at++
	return op
}

/* leaf producers */

func (b *Builder) Const(t Type, val float64) *Value {
	op := makeOp(OpConst, nil, []Type{t}, 0)
	op.constVal = val
	return b.insert(op).Result(0)
}

func (b *Builder) Splat(t Type, scalar *Value) *Value {
	return b.insert(makeOp(OpSplat, []*Value{scalar}, []Type{t}, 0)).Result(0)
}

func (b *Builder) Iota(t Type) *Value {
	return b.insert(makeOp(OpIota, nil, []Type{t}, 0)).Result(0)
}

/* elementwise arithmetic */

func (b *Builder) binary(code Opcode, x *Value, y *Value) *Value {
	return b.insert(makeOp(code, []*Value{x, y}, []Type{x.Type()}, 0)).Result(0)
}

func (b *Builder) Add(x *Value, y *Value) *Value  { return b.binary(OpAdd, x, y) }
func (b *Builder) Mul(x *Value, y *Value) *Value  { return b.binary(OpMul, x, y) }
func (b *Builder) MaxF(x *Value, y *Value) *Value { return b.binary(OpMaxF, x, y) }

func (b *Builder) cast(code Opcode, x *Value, to ElemType) *Value {
	t := x.Type()
	t.Elem = to
	return b.insert(makeOp(code, []*Value{x}, []Type{t}, 0)).Result(0)
}

func (b *Builder) ExtF(x *Value, to ElemType) *Value   { return b.cast(OpExtF, x, to) }
func (b *Builder) ExtSI(x *Value, to ElemType) *Value  { return b.cast(OpExtSI, x, to) }
func (b *Builder) ExtUI(x *Value, to ElemType) *Value  { return b.cast(OpExtUI, x, to) }
func (b *Builder) TruncF(x *Value, to ElemType) *Value { return b.cast(OpTruncF, x, to) }

/* shape changing */

func (b *Builder) Broadcast(x *Value, shape []int64) *Value {
	t := TensorOf(x.Type().Elem, shape, x.Type().Layout)
	return b.insert(makeOp(OpBroadcast, []*Value{x}, []Type{t}, 0)).Result(0)
}

// ExpandDims inserts a unit dimension at axis. When the operand carries a
// slice layout collapsed at the same axis, the result recovers its parent.
func (b *Builder) ExpandDims(x *Value, axis int) *Value {
	src := x.Type()
	shape := make([]int64, 0, len(src.Shape)+1)
	shape = append(shape, src.Shape[:axis]...)
	shape = append(shape, 1)
	shape = append(shape, src.Shape[axis:]...)
	l := src.Layout
	if sl, ok := l.(SliceLayout); ok && sl.Dim == axis {
		l = sl.Parent
	}
	op := makeOp(OpExpandDims, []*Value{x}, []Type{TensorOf(src.Elem, shape, l)}, 0)
	op.axis = axis
	return b.insert(op).Result(0)
}

func (b *Builder) Reshape(x *Value, shape []int64, l Layout, allowReorder bool) *Value {
	op := makeOp(OpReshape, []*Value{x}, []Type{TensorOf(x.Type().Elem, shape, l)}, 0)
	op.allowReorder = allowReorder
	return b.insert(op).Result(0)
}

func (b *Builder) Join(x *Value, y *Value) *Value {
	src := x.Type()
	shape := append(append([]int64(nil), src.Shape...), 2)
	t := TensorOf(src.Elem, shape, src.Layout)
	return b.insert(makeOp(OpJoin, []*Value{x, y}, []Type{t}, 0)).Result(0)
}

func (b *Builder) Split(x *Value) (*Value, *Value) {
	src := x.Type()
	shape := append([]int64(nil), src.Shape[:len(src.Shape)-1]...)
	t := TensorOf(src.Elem, shape, src.Layout)
	op := b.insert(makeOp(OpSplit, []*Value{x}, []Type{t, t}, 0))
	return op.Result(0), op.Result(1)
}

// Reduce collapses the given axis. Reducing the last remaining axis yields a
// scalar; otherwise the result carries the slice layout of the operand.
func (b *Builder) Reduce(x *Value, axis int) *Value {
	src := x.Type()
	var t Type
	if len(src.Shape) == 1 {
		t = Scalar(src.Elem)
	} else {
		shape := make([]int64, 0, len(src.Shape)-1)
		shape = append(shape, src.Shape[:axis]...)
		shape = append(shape, src.Shape[axis+1:]...)
		t = TensorOf(src.Elem, shape, SliceLayout{Dim: axis, Parent: src.Layout})
	}
	op := makeOp(OpReduce, []*Value{x}, []Type{t}, 0)
	op.axis = axis
	return b.insert(op).Result(0)
}

/* anchors and memory */

// Dot is a matrix multiply accumulating into c; the result keeps the type of
// the accumulator.
func (b *Builder) Dot(a *Value, x *Value, c *Value) *Value {
	return b.insert(makeOp(OpDot, []*Value{a, x, c}, []Type{c.Type()}, 0)).Result(0)
}

func (b *Builder) Load(ptr *Value, elem ElemType, expensive bool) *Value {
	pt := ptr.Type()
	op := makeOp(OpLoad, []*Value{ptr}, []Type{TensorOf(elem, pt.Shape, pt.Layout)}, 0)
	op.expensive = expensive
	return b.insert(op).Result(0)
}

func (b *Builder) Store(ptr *Value, val *Value, expensive bool) *Op {
	op := makeOp(OpStore, []*Value{ptr, val}, nil, 0)
	op.expensive = expensive
	return b.insert(op)
}

func (b *Builder) AtomicRMW(ptr *Value, val *Value) *Value {
	return b.insert(makeOp(OpAtomicRMW, []*Value{ptr, val}, []Type{val.Type()}, 0)).Result(0)
}

func (b *Builder) AtomicCAS(ptr *Value, cmp *Value, val *Value) *Value {
	return b.insert(makeOp(OpAtomicCAS, []*Value{ptr, cmp, val}, []Type{val.Type()}, 0)).Result(0)
}

func (b *Builder) Alloc(t Type) *Value {
	return b.insert(makeOp(OpAlloc, nil, []Type{t}, 0)).Result(0)
}

func (b *Builder) ExtractSlice(x *Value, t Type) *Value {
	return b.insert(makeOp(OpExtractSlice, []*Value{x}, []Type{t}, 0)).Result(0)
}

func (b *Builder) InsertAsync(dst *Value, src *Value) *Value {
	return b.insert(makeOp(OpInsertAsync, []*Value{dst, src}, []Type{dst.Type()}, 0)).Result(0)
}

/* layout conversion */

func (b *Builder) Convert(x *Value, to Layout) *Value {
	return b.insert(makeOp(OpConvert, []*Value{x}, []Type{x.Type().WithLayout(to)}, 0)).Result(0)
}

/* structured control flow */

// For builds a counted loop. Operands are lower bound, upper bound, step and
// the loop-carried initial values; the body region starts with the scalar
// induction variable followed by one argument per carried value. The caller
// fills in the body, ending with a matching yield.
func (b *Builder) For(lb *Value, ub *Value, step *Value, inits []*Value) *Op {
	operands := append([]*Value{lb, ub, step}, inits...)
	results := make([]Type, len(inits))
	for i, v := range inits {
		results[i] = v.Type()
	}
	op := makeOp(OpFor, operands, results, 1)
	body := op.regions[0]
	body.AddArg(Scalar(I32))
	for _, v := range inits {
		body.AddArg(v.Type())
	}
	return b.insert(op)
}

// If builds a two-way conditional with the given result types; both regions
// start empty.
func (b *Builder) If(cond *Value, results []Type) *Op {
	return b.insert(makeOp(OpIf, []*Value{cond}, results, 2))
}

// While builds a general loop. The before region receives one argument per
// initial operand and must end with a condition op; the after region receives
// one argument per result and must end with a yield feeding the next
// iteration.
func (b *Builder) While(inits []*Value, results []Type) *Op {
	op := makeOp(OpWhile, inits, results, 2)
	for _, v := range inits {
		op.regions[0].AddArg(v.Type())
	}
	for _, t := range results {
		op.regions[1].AddArg(t)
	}
	return b.insert(op)
}

func (b *Builder) Yield(vals ...*Value) *Op {
	return b.insert(makeOp(OpYield, vals, nil, 0))
}

func (b *Builder) Condition(cond *Value, vals ...*Value) *Op {
	return b.insert(makeOp(OpCondition, append([]*Value{cond}, vals...), nil, 0))
}
