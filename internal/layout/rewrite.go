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

	"github.com/cloudwego/relayout/tir"
)

// rewrite materializes the resolved layouts: every value whose chosen layout
// differs from its declared one gets its defining op rebuilt, and every use
// is threaded to a value of the required layout, inserting conversions where
// nothing else produces it. Superseded ops are erased afterwards in reverse
// discovery order so users die before their defs.
func (p *propagation) rewrite() {
	p.rewriteRegion(p.fn.Body())
	for i := len(p.dead) - 1; i >= 0; i-- {
		p.dead[i].Erase()
	}
}

func (p *propagation) rewriteRegion(root *tir.Region) {
	pending := lane.NewStack()
	pending.Push(root)

	for !pending.Empty() {
		region := pending.Pop().(*tir.Region)
		ops := append([]*tir.Op(nil), region.Ops()...)

		for _, op := range ops {
			switch {
			case p.needsRewrite(op):
				newOp := p.rewriteOp(op)
				for _, r := range newOp.Regions() {
					pending.Push(r)
				}
			case op.Code() == tir.OpYield:
				p.rewriteYield(op)
			case op.Code() == tir.OpCondition:
				p.rewriteCondition(op)
			case reduceToScalar(op):
				p.rewriteScalarReduce(op)
			default:
				// nothing to retype, but operands may have moved to a new
				// layout and must be threaded back to the declared one
				for i, operand := range op.Operands() {
					if !p.layouts.has(operand) {
						continue
					}
					op.SetOperand(i, p.getValueAs(operand, operand.Type().Layout))
				}
				for _, r := range op.Regions() {
					pending.Push(r)
				}
			}
		}
	}
}

func (p *propagation) needsRewrite(op *tir.Op) bool {
	for _, res := range op.Results() {
		info, ok := p.layouts.get(res)
		if !ok {
			continue
		}
		if info.resolved() != res.Type().Layout {
			return true
		}
	}
	return false
}

// reduceToScalar matches reductions collapsing to a scalar: their operand
// layout can change freely since the result carries none.
func reduceToScalar(op *tir.Op) bool {
	return op.Code() == tir.OpReduce && !op.Result(0).Type().Tensor()
}

func (p *propagation) rewriteOp(op *tir.Op) *tir.Op {
	p.dead = append(p.dead, op)

	switch op.Code() {
	case tir.OpFor:
		return p.rewriteFor(op)
	case tir.OpWhile:
		return p.rewriteWhile(op)
	case tir.OpIf:
		return p.rewriteIf(op)
	}

	info, _ := p.layouts.get(op.Result(0))
	enc := info.resolved()

	if op.Code() == tir.OpConvert {
		// the source may itself have been remapped; resolve it first, then
		// re-emit the conversion to the final layout (a now-redundant copy
		// gets folded away later)
		src := op.Operand(0)
		srcEnc := src.Type().Layout
		if it, ok := p.layouts.get(src); ok {
			srcEnc = it.resolved()
		}
		v := p.getValueAs(src, srcEnc)
		b := tir.NewBuilder().Before(op)
		cvt := b.Convert(v, enc)
		p.recordMapping(op.Result(0), cvt)
		return cvt.Def()
	}

	if p.oracle.CanFoldConversion(op, enc) {
		b := tir.NewBuilder().Before(op)
		n := b.Clone(op, make(tir.ValueMap))
		cvt := b.Convert(n.Result(0), enc)
		p.recordMapping(op.Result(0), cvt)
		return cvt.Def()
	}

	if op.Code().IsElementwise() || op.Code().IsLayoutPreserving() || op.Code().IsShapeChanging() {
		n := p.cloneWithLayout(op, enc)
		for i, old := range op.Results() {
			p.recordMapping(old, n.Result(i))
		}
		return n
	}

	panic("relayout: unexpected op in rewrite: " + op.Code().String())
}

// cloneWithLayout duplicates op so that its tensor results carry enc, coercing
// every operand to the layout the oracle derives for that result.
func (p *propagation) cloneWithLayout(op *tir.Op, enc tir.Layout) *tir.Op {
	b := tir.NewBuilder().Before(op)
	n := b.Clone(op, make(tir.ValueMap))

	var operandEnc tir.Layout
	if op.NumOperands() > 0 {
		e, ok := p.oracle.InferSourceLayout(op, enc)
		if !ok {
			panic("relayout: no operand layout derivable for " + op.Code().String())
		}
		operandEnc = e
	}
	for i, operand := range op.Operands() {
		n.SetOperand(i, p.getValueAs(operand, operandEnc))
	}
	for _, res := range n.Results() {
		if res.Type().Tensor() {
			res.SetType(res.Type().WithLayout(enc))
		}
	}
	return n
}

func (p *propagation) rewriteFor(op *tir.Op) *tir.Op {
	inits := make([]*tir.Value, 0, op.NumIterArgs())
	for i := 0; i < op.NumIterArgs(); i++ {
		operand := op.InitArg(i)
		if info, ok := p.layouts.get(op.Result(i)); ok {
			operand = p.getValueAs(operand, info.resolved())
		}
		inits = append(inits, operand)
	}

	b := tir.NewBuilder().Before(op)
	newOp := b.For(op.Operand(0), op.Operand(1), op.Operand(2), inits)
	newOp.Body().SpliceOps(op.Body())

	for i, old := range op.Results() {
		p.remap(old, newOp.Result(i))
	}
	for i, old := range op.Body().Args() {
		p.remap(old, newOp.Body().Arg(i))
	}
	return newOp
}

func (p *propagation) rewriteWhile(op *tir.Op) *tir.Op {
	// both region signatures are fixed at construction, so all new operand
	// and result types must be known up front
	operands := make([]*tir.Value, 0, op.NumOperands())
	for i, operand := range op.Operands() {
		if info, ok := p.layouts.get(op.Before().Arg(i)); ok {
			operand = p.getValueAs(operand, info.resolved())
		}
		operands = append(operands, operand)
	}
	results := make([]tir.Type, 0, op.NumResults())
	for _, res := range op.Results() {
		t := res.Type()
		if info, ok := p.layouts.get(res); ok {
			t = t.WithLayout(info.resolved())
		}
		results = append(results, t)
	}

	b := tir.NewBuilder().Before(op)
	newOp := b.While(operands, results)
	newOp.Before().SpliceOps(op.Before())
	newOp.After().SpliceOps(op.After())

	for i, old := range op.Results() {
		p.remap(old, newOp.Result(i))
	}
	for i, old := range op.Before().Args() {
		p.remap(old, newOp.Before().Arg(i))
	}
	for i, old := range op.After().Args() {
		p.remap(old, newOp.After().Arg(i))
	}
	return newOp
}

func (p *propagation) rewriteIf(op *tir.Op) *tir.Op {
	results := make([]tir.Type, 0, op.NumResults())
	for _, res := range op.Results() {
		t := res.Type()
		if info, ok := p.layouts.get(res); ok {
			t = t.WithLayout(info.resolved())
		}
		results = append(results, t)
	}

	b := tir.NewBuilder().Before(op)
	newOp := b.If(op.Operand(0), results)
	newOp.Then().SpliceOps(op.Then())
	newOp.Else().SpliceOps(op.Else())

	for i, old := range op.Results() {
		p.remap(old, newOp.Result(i))
	}
	return newOp
}

// rewriteYield retypes yield operands to whatever the matching parent slot
// now expects.
func (p *propagation) rewriteYield(op *tir.Op) {
	parent := op.Parent().Owner()
	if parent == nil {
		return
	}
	for i, operand := range op.Operands() {
		expected := operand.Type()
		switch parent.Code() {
		case tir.OpFor, tir.OpIf:
			expected = parent.Result(i).Type()
		case tir.OpWhile:
			expected = parent.Before().Arg(i).Type()
		}
		if !expected.Tensor() {
			continue
		}
		op.SetOperand(i, p.getValueAs(operand, expected.Layout))
	}
}

// rewriteCondition retypes the forwarded operands (slot 0 is the boolean) to
// the while's result types.
func (p *propagation) rewriteCondition(op *tir.Op) {
	while := op.Parent().Owner()
	for i := 1; i < op.NumOperands(); i++ {
		expected := while.Result(i - 1).Type()
		if !expected.Tensor() {
			continue
		}
		op.SetOperand(i, p.getValueAs(op.Operand(i), expected.Layout))
	}
}

// rewriteScalarReduce coerces all tensor operands of a scalar-producing
// reduction to one layout; the scalar result has none to preserve.
func (p *propagation) rewriteScalarReduce(op *tir.Op) {
	var srcEnc tir.Layout
	for _, operand := range op.Operands() {
		if info, ok := p.layouts.get(operand); ok {
			srcEnc = info.first()
			break
		}
	}
	if srcEnc == nil {
		return
	}
	for i, operand := range op.Operands() {
		if !operand.Type().Tensor() {
			continue
		}
		op.SetOperand(i, p.getValueAs(operand, srcEnc))
	}
}

func (p *propagation) remap(old *tir.Value, repl *tir.Value) {
	if old.Type().Equal(repl.Type()) {
		old.ReplaceAllUsesWith(repl)
		return
	}
	p.recordMapping(old, repl)
}

func (p *propagation) recordMapping(old *tir.Value, repl *tir.Value) {
	p.mapping[rewriteKey{old, repl.Type().Layout}] = repl
}

// getValueAs resolves v through the rewrite mapping to its current form and
// coerces it to enc, inserting at most one conversion per (value, layout)
// pair per rewrite pass.
func (p *propagation) getValueAs(v *tir.Value, enc tir.Layout) *tir.Value {
	if !v.Type().Tensor() {
		return v
	}

	var rewritten *tir.Value
	if info, ok := p.layouts.get(v); !ok {
		rewritten = v
	} else if picked := info.resolved(); picked == v.Type().Layout {
		rewritten = v
	} else {
		rewritten = p.mapping[rewriteKey{v, picked}]
	}
	if rewritten == nil {
		panic("relayout: value was never rewritten to its resolved layout")
	}
	if rewritten.Type().Layout == enc {
		return rewritten
	}

	key := rewriteKey{rewritten, enc}
	if cvt, ok := p.converted[key]; ok {
		return cvt
	}
	b := tir.NewBuilder().AfterValue(rewritten)
	cvt := b.Convert(rewritten, enc)
	p.converted[key] = cvt
	return cvt
}
