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
	log "github.com/sirupsen/logrus"

	"github.com/cloudwego/relayout/tir"
)

// HoistConversions moves each remaining conversion above a single widening op
// in its producer chain, so the data gets converted while it is still narrow.
func HoistConversions(m *tir.Module, oracle tir.Oracle) {
	for _, cvt := range collectConverts(m) {
		hoistAboveWidening(cvt, oracle)
	}
}

func isWideningOp(op *tir.Op) bool {
	return op.Code().IsWidening()
}

func hoistAboveWidening(cvt *tir.Op, oracle tir.Oracle) {
	if skipConvertRewrite(cvt) {
		return
	}

	layouts := make(map[*tir.Value]tir.Layout)
	target := cvt.Result(0).Type().Layout
	slice, ok := rematerializableSlice(cvt.Operand(0), target, layouts, oracle, isWideningOp)
	if !ok {
		return
	}

	// Scan only the slice as originally discovered: anything merged in below
	// already rematerializes without a conversion.
	var blocker *tir.Op
	initial := slice.len()
	for i := 0; i < initial; i++ {
		op := slice.order[i].Def()
		if op == nil || !isWideningOp(op) {
			continue
		}
		srcEnc, ok := oracle.InferSourceLayout(op, layouts[slice.order[i]])
		if !ok {
			return
		}
		subLayouts := make(map[*tir.Value]tir.Layout)
		subSlice, ok := rematerializableSlice(op.Operand(0), srcEnc, subLayouts, oracle, nil)
		if ok {
			// the chain above this widening op rematerializes cleanly, so no
			// conversion would survive there
			for _, v := range subSlice.order {
				slice.add(v)
				if _, dup := layouts[v]; !dup {
					layouts[v] = subLayouts[v]
				}
			}
			continue
		}
		if blocker != nil {
			// hoisting past two widening ops would duplicate the conversion
			return
		}
		blocker = op
	}
	if blocker == nil {
		return
	}

	dstEnc := layouts[blocker.Result(0)]
	srcEnc, ok := oracle.InferSourceLayout(blocker, dstEnc)
	if !ok {
		return
	}

	log.Tracef("relayout: hoisting a conversion above %s", blocker.Code())

	b := tir.NewBuilder().Before(blocker)
	narrow := b.Convert(blocker.Operand(0), srcEnc)
	wide := b.Clone(blocker, make(tir.ValueMap))
	wide.SetOperand(0, narrow)
	wide.Result(0).SetType(blocker.Result(0).Type().WithLayout(dstEnc))

	mapping := make(tir.ValueMap)
	mapping[blocker.Result(0)] = wide.Result(0)
	slice.remove(blocker.Result(0))
	rewriteSlice(slice, layouts, cvt, mapping)
}
