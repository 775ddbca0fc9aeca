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

// Rematerialize tries to eliminate each remaining conversion by duplicating
// its producer chain directly under the target layout. Conversions created or
// invalidated while rewriting are not revisited; the list is snapshotted
// first.
func Rematerialize(m *tir.Module, oracle tir.Oracle) {
	for _, cvt := range collectConverts(m) {
		backwardRematerialize(cvt, oracle)
	}
}

func collectConverts(m *tir.Module) []*tir.Op {
	var converts []*tir.Op
	m.Walk(func(op *tir.Op) {
		if op.Code() == tir.OpConvert {
			converts = append(converts, op)
		}
	})
	return converts
}

func backwardRematerialize(cvt *tir.Op, oracle tir.Oracle) {
	// moves in and out of shared staging are real data movement, not layout
	// bookkeeping, and a matrix-operand target is usually part of a fused
	// pattern better left alone
	if skipConvertRewrite(cvt) {
		return
	}

	layouts := make(map[*tir.Value]tir.Layout)
	target := cvt.Result(0).Type().Layout
	slice, ok := rematerializableSlice(cvt.Operand(0), target, layouts, oracle, nil)
	if !ok {
		return
	}

	log.Tracef("relayout: rematerializing %d value(s) to erase a conversion", slice.len())
	rewriteSlice(slice, layouts, cvt, make(tir.ValueMap))
}

func skipConvertRewrite(cvt *tir.Op) bool {
	src := cvt.Operand(0).Type().Layout
	dst := cvt.Result(0).Type().Layout
	if tir.IsStaging(src) || tir.IsStaging(dst) {
		return true
	}
	return tir.IsOperand(dst)
}
