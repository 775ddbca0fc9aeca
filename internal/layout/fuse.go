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

// FuseDotAccumulator rewrites convert(dot(a, b, convert(load))) into
// add(convert(dot(a, b, 0)), load): the accumulator starts at zero in the
// multiply's own layout and the loaded addend is applied after converting
// back, saving the conversion of the accumulator on every iteration.
func FuseDotAccumulator(m *tir.Module) {
	for _, cvt := range collectConverts(m) {
		fuseDotAccumulator(cvt)
	}
}

func fuseDotAccumulator(cvt *tir.Op) {
	dot := cvt.Operand(0).Def()
	if dot == nil || dot.Code() != tir.OpDot {
		return
	}
	if len(cvt.Result(0).Uses()) != 1 || len(dot.Result(0).Uses()) != 1 {
		return
	}
	accCvt := dot.Operand(2).Def()
	if accCvt == nil || accCvt.Code() != tir.OpConvert {
		return
	}
	loaded := accCvt.Operand(0)
	if loaded.Def() == nil || loaded.Def().Code() != tir.OpLoad {
		return
	}
	if !cvt.Result(0).Type().Equal(loaded.Type()) {
		return
	}

	log.Tracef("relayout: fusing a dot accumulator with its loaded addend")

	dstType := cvt.Result(0).Type()
	b := tir.NewBuilder().Before(cvt)
	zero := b.Const(tir.Scalar(dstType.Elem), 0)
	acc := b.Splat(dot.Result(0).Type(), zero)
	newDot := b.Dot(dot.Operand(0), dot.Operand(1), acc)
	newCvt := b.Convert(newDot, dstType.Layout)
	sum := b.Add(newCvt, loaded)

	cvt.Result(0).ReplaceAllUsesWith(sum)
	cvt.Erase()
	// the old dot and accumulator conversion die in the next cleanup
}
