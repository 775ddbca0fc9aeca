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
	"errors"

	"github.com/cloudwego/relayout/tir"
)

// ErrCleanupDiverged reports that the cleanup rewrites failed to reach a
// fixpoint within the iteration cap; the module is left in a consistent but
// only partially cleaned state.
var ErrCleanupDiverged = errors.New("relayout: cleanup did not reach a fixpoint")

const maxCleanupRounds = 1 << 16

// Canonicalize applies the cleanup rewrites to a fixpoint: conversion
// composition and elision, folding conversions into their producers, dead
// code removal and dead loop-argument elimination.
func Canonicalize(m *tir.Module) error {
	for i := 0; i < maxCleanupRounds; i++ {
		changed := canonicalizeConverts(m)
		if eraseDeadOps(m) {
			changed = true
		}
		if dropDeadLoopArgs(m) {
			changed = true
		}
		if !changed {
			return nil
		}
	}
	return ErrCleanupDiverged
}

func canonicalizeConverts(m *tir.Module) bool {
	changed := false
	for _, cvt := range collectConverts(m) {
		src := cvt.Operand(0)

		// compose chained conversions; only the final layout matters
		if def := src.Def(); def != nil && def.Code() == tir.OpConvert {
			cvt.SetOperand(0, def.Operand(0))
			changed = true
			src = cvt.Operand(0)
		}

		// a conversion to the layout the source already has is a no-op
		if src.Type().Layout == cvt.Result(0).Type().Layout {
			cvt.Result(0).ReplaceAllUsesWith(src)
			cvt.Erase()
			changed = true
			continue
		}

		// value-uniform producers can simply be re-emitted in the new layout
		if def := src.Def(); def != nil && foldsConversion(def.Code()) {
			b := tir.NewBuilder().Before(cvt)
			n := b.Clone(def, make(tir.ValueMap))
			n.Result(0).SetType(cvt.Result(0).Type())
			cvt.Result(0).ReplaceAllUsesWith(n.Result(0))
			cvt.Erase()
			changed = true
		}
	}
	return changed
}

func foldsConversion(code tir.Opcode) bool {
	return code == tir.OpConst || code == tir.OpSplat || code == tir.OpIota
}

// eraseDeadOps removes ops with no remaining uses and no observable effect.
// Dead loads go too; stores, atomics and async copies stay.
func eraseDeadOps(m *tir.Module) bool {
	var ops []*tir.Op
	m.Walk(func(op *tir.Op) {
		ops = append(ops, op)
	})

	changed := false
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		if !erasable(op) {
			continue
		}
		live := false
		for _, res := range op.Results() {
			if res.HasUses() {
				live = true
				break
			}
		}
		if live {
			continue
		}
		op.Erase()
		changed = true
	}
	return changed
}

func erasable(op *tir.Op) bool {
	code := op.Code()
	switch code {
	case tir.OpStore, tir.OpAtomicRMW, tir.OpAtomicCAS, tir.OpInsertAsync:
		return false
	}
	return !code.IsControl() && !code.IsTerminator()
}

// dropDeadLoopArgs removes loop iteration slots whose result is unused and
// whose body argument only feeds its own back edge.
func dropDeadLoopArgs(m *tir.Module) bool {
	var loops []*tir.Op
	m.Walk(func(op *tir.Op) {
		if op.Code() == tir.OpFor {
			loops = append(loops, op)
		}
	})

	changed := false
	for i := len(loops) - 1; i >= 0; i-- {
		if dropDeadArgsOf(loops[i]) {
			changed = true
		}
	}
	return changed
}

func dropDeadArgsOf(op *tir.Op) bool {
	yield := op.Body().Terminator()
	keep := make([]int, 0, op.NumIterArgs())
	for i := 0; i < op.NumIterArgs(); i++ {
		if op.Result(i).HasUses() || !onlyFeedsOwnSlot(op.IterArg(i), yield, i) {
			keep = append(keep, i)
		}
	}
	if len(keep) == op.NumIterArgs() {
		return false
	}

	inits := make([]*tir.Value, 0, len(keep))
	for _, i := range keep {
		inits = append(inits, op.InitArg(i))
	}
	b := tir.NewBuilder().Before(op)
	newOp := b.For(op.Operand(0), op.Operand(1), op.Operand(2), inits)
	newOp.Body().SpliceOps(op.Body())

	op.InductionVar().ReplaceAllUsesWith(newOp.InductionVar())
	for k, i := range keep {
		op.IterArg(i).ReplaceAllUsesWith(newOp.IterArg(k))
		op.Result(i).ReplaceAllUsesWith(newOp.Result(k))
	}

	operands := make([]*tir.Value, 0, len(keep))
	for _, i := range keep {
		operands = append(operands, yield.Operand(i))
	}
	yb := tir.NewBuilder().Before(yield)
	yb.Yield(operands...)
	yield.Erase()

	op.Erase()
	return true
}

// onlyFeedsOwnSlot reports whether every use of arg is the yield operand that
// carries it back to itself.
func onlyFeedsOwnSlot(arg *tir.Value, yield *tir.Op, slot int) bool {
	for _, use := range arg.Uses() {
		if use.Op != yield || use.Index != slot {
			return false
		}
	}
	return true
}
