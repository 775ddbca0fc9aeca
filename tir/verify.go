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
	"fmt"
)

// Verify checks def-use integrity of the whole module: every operand must be
// defined before its use in an enclosing scope, use lists must match the
// operand slots referencing them, and the structured control-flow constructs
// must have consistent signatures.
func Verify(m *Module) error {
	for _, f := range m.Funcs {
		if err := VerifyFunc(f); err != nil {
			return err
		}
	}
	return nil
}

func VerifyFunc(f *Func) error {
	v := &verifier{fn: f, visible: make(map[*Value]bool)}
	return v.region(f.body)
}

type verifier struct {
	fn      *Func
	visible map[*Value]bool
}

func (v *verifier) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("tir: verify @%s: "+format, append([]interface{}{v.fn.Name}, args...)...)
}

func (v *verifier) region(r *Region) error {
	var added []*Value
	for _, arg := range r.args {
		v.visible[arg] = true
		added = append(added, arg)
	}

	for _, op := range r.ops {
		if op.parent != r {
			return v.errorf("%s has a stale parent region", op.code)
		}
		for i, operand := range op.operands {
			if operand == nil {
				return v.errorf("%s operand %d is nil", op.code, i)
			}
			if !v.visible[operand] {
				return v.errorf("%s operand %d does not dominate its use", op.code, i)
			}
			if !hasUse(operand, Use{op, i}) {
				return v.errorf("%s operand %d is missing from the use list", op.code, i)
			}
		}
		for _, res := range op.results {
			for _, u := range res.uses {
				if u.Op.operands[u.Index] != res {
					return v.errorf("%s has a corrupted use list", op.code)
				}
			}
			v.visible[res] = true
			added = append(added, res)
		}
		if err := v.checkSignature(op); err != nil {
			return err
		}
		for _, nested := range op.regions {
			if err := v.region(nested); err != nil {
				return err
			}
		}
	}

	for _, val := range added {
		delete(v.visible, val)
	}
	return nil
}

func hasUse(v *Value, u Use) bool {
	for _, x := range v.uses {
		if x == u {
			return true
		}
	}
	return false
}

func (v *verifier) checkSignature(op *Op) error {
	switch op.code {
	case OpFor:
		term := op.Body().Terminator()
		if term == nil || term.code != OpYield {
			return v.errorf("for body has no yield")
		}
		if len(term.operands) != op.NumIterArgs() {
			return v.errorf("for yields %d values but carries %d", len(term.operands), op.NumIterArgs())
		}
		for i, y := range term.operands {
			if !y.Type().Equal(op.results[i].Type()) {
				return v.errorf("for yield %d has type %s, result has %s", i, y.Type(), op.results[i].Type())
			}
			if !y.Type().Equal(op.IterArg(i).Type()) {
				return v.errorf("for yield %d has type %s, iteration argument has %s", i, y.Type(), op.IterArg(i).Type())
			}
		}
	case OpIf:
		if len(op.results) == 0 {
			return nil
		}
		for _, r := range []*Region{op.Then(), op.Else()} {
			term := r.Terminator()
			if term == nil || term.code != OpYield {
				return v.errorf("if with results has a branch without yield")
			}
			if len(term.operands) != len(op.results) {
				return v.errorf("if branch yields %d values, expected %d", len(term.operands), len(op.results))
			}
			for i, y := range term.operands {
				if !y.Type().Equal(op.results[i].Type()) {
					return v.errorf("if yield %d has type %s, result has %s", i, y.Type(), op.results[i].Type())
				}
			}
		}
	case OpWhile:
		cond := op.Before().Terminator()
		if cond == nil || cond.code != OpCondition {
			return v.errorf("while before-region has no condition")
		}
		if len(cond.operands)-1 != len(op.results) {
			return v.errorf("while condition forwards %d values, expected %d", len(cond.operands)-1, len(op.results))
		}
		for i, fwd := range cond.operands[1:] {
			if !fwd.Type().Equal(op.results[i].Type()) {
				return v.errorf("while condition operand %d has type %s, result has %s", i, fwd.Type(), op.results[i].Type())
			}
			if !fwd.Type().Equal(op.After().Arg(i).Type()) {
				return v.errorf("while condition operand %d has type %s, after-argument has %s", i, fwd.Type(), op.After().Arg(i).Type())
			}
		}
		term := op.After().Terminator()
		if term == nil || term.code != OpYield {
			return v.errorf("while after-region has no yield")
		}
		if len(term.operands) != op.Before().NumArgs() {
			return v.errorf("while yields %d values but loops %d", len(term.operands), op.Before().NumArgs())
		}
		for i, y := range term.operands {
			if !y.Type().Equal(op.Before().Arg(i).Type()) {
				return v.errorf("while yield %d has type %s, before-argument has %s", i, y.Type(), op.Before().Arg(i).Type())
			}
		}
	}
	return nil
}
