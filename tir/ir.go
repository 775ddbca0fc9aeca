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

// Opcode identifies the kind of an operation.
type Opcode uint8

const (
	OpInvalid Opcode = iota

	/* leaf producers */
	OpConst
	OpSplat
	OpIota

	/* elementwise arithmetic */
	OpAdd
	OpMul
	OpMaxF
	OpExtF
	OpExtSI
	OpExtUI
	OpTruncF

	/* shape changing */
	OpBroadcast
	OpExpandDims
	OpReshape
	OpJoin
	OpSplit
	OpReduce

	/* anchors and memory */
	OpDot
	OpLoad
	OpStore
	OpAtomicRMW
	OpAtomicCAS
	OpAlloc
	OpExtractSlice
	OpInsertAsync

	/* layout conversion */
	OpConvert

	/* structured control flow */
	OpFor
	OpIf
	OpWhile
	OpYield
	OpCondition
)

var opNames = [...]string{
	OpInvalid:      "invalid",
	OpConst:        "const",
	OpSplat:        "splat",
	OpIota:         "iota",
	OpAdd:          "add",
	OpMul:          "mul",
	OpMaxF:         "maxf",
	OpExtF:         "extf",
	OpExtSI:        "extsi",
	OpExtUI:        "extui",
	OpTruncF:       "truncf",
	OpBroadcast:    "broadcast",
	OpExpandDims:   "expand_dims",
	OpReshape:      "reshape",
	OpJoin:         "join",
	OpSplit:        "split",
	OpReduce:       "reduce",
	OpDot:          "dot",
	OpLoad:         "load",
	OpStore:        "store",
	OpAtomicRMW:    "atomic_rmw",
	OpAtomicCAS:    "atomic_cas",
	OpAlloc:        "alloc",
	OpExtractSlice: "extract_slice",
	OpInsertAsync:  "insert_async",
	OpConvert:      "convert",
	OpFor:          "for",
	OpIf:           "if",
	OpWhile:        "while",
	OpYield:        "yield",
	OpCondition:    "condition",
}

func (c Opcode) String() string {
	if int(c) < len(opNames) {
		return opNames[c]
	}
	return fmt.Sprintf("opcode(%d)", uint8(c))
}

// IsElementwise reports whether the op computes each output element from the
// corresponding input elements, leaving the layout untouched.
func (c Opcode) IsElementwise() bool {
	switch c {
	case OpAdd, OpMul, OpMaxF, OpExtF, OpExtSI, OpExtUI, OpTruncF:
		return true
	default:
		return false
	}
}

// IsLayoutPreserving reports whether all tensor operands and results of the
// op share one layout.
func (c Opcode) IsLayoutPreserving() bool {
	switch c {
	case OpSplat, OpBroadcast, OpLoad, OpStore, OpAtomicRMW, OpAtomicCAS:
		return true
	default:
		return false
	}
}

// IsShapeChanging reports whether the op changes the shape of its operand
// with a structurally derived layout.
func (c Opcode) IsShapeChanging() bool {
	switch c {
	case OpReduce, OpExpandDims, OpReshape, OpJoin, OpSplit:
		return true
	default:
		return false
	}
}

func (c Opcode) IsMemory() bool {
	return c == OpLoad || c == OpStore
}

func (c Opcode) IsAtomic() bool {
	return c == OpAtomicRMW || c == OpAtomicCAS
}

func (c Opcode) IsControl() bool {
	return c == OpFor || c == OpIf || c == OpWhile
}

func (c Opcode) IsTerminator() bool {
	return c == OpYield || c == OpCondition
}

// IsWidening reports whether the op enlarges the element type or the shape of
// its operand, producing strictly more bytes than it consumes.
func (c Opcode) IsWidening() bool {
	switch c {
	case OpExtF, OpExtSI, OpExtUI, OpBroadcast, OpExpandDims:
		return true
	default:
		return false
	}
}

// Use records one operand slot referencing a value.
type Use struct {
	Op    *Op
	Index int
}

// Value is an SSA value, either the result of an op or a region argument.
// Values are identified by pointer identity.
type Value struct {
	typ   Type
	def   *Op     // defining op, nil for region arguments
	owner *Region // owning region for arguments, nil for results
	pos   int     // result index or argument index
	uses  []Use
}

func (v *Value) Type() Type {
	return v.typ
}

// SetType retypes the value in place. Callers are responsible for keeping the
// surrounding program consistent.
func (v *Value) SetType(t Type) {
	v.typ = t
}

// Def returns the defining op, or nil for region arguments.
func (v *Value) Def() *Op {
	return v.def
}

func (v *Value) IsArg() bool {
	return v.owner != nil
}

// Home returns the region this value is an argument of, or nil.
func (v *Value) Home() *Region {
	return v.owner
}

// Pos returns the result index or argument index of the value.
func (v *Value) Pos() int {
	return v.pos
}

// Uses returns the operand slots referencing the value, in the order the
// references were created. The slice is read-only.
func (v *Value) Uses() []Use {
	return v.uses
}

func (v *Value) HasUses() bool {
	return len(v.uses) != 0
}

func (v *Value) addUse(u Use) {
	v.uses = append(v.uses, u)
}

func (v *Value) removeUse(u Use) {
	for i, x := range v.uses {
		if x == u {
			v.uses = append(v.uses[:i], v.uses[i+1:]...)
			return
		}
	}
	panic("tir: removing a use that was never recorded")
}

// ReplaceAllUsesWith redirects every use of v to n.
func (v *Value) ReplaceAllUsesWith(n *Value) {
	if v == n {
		return
	}
	for len(v.uses) != 0 {
		u := v.uses[0]
		u.Op.SetOperand(u.Index, n)
	}
}

// Op is a single operation: ordered operands, ordered results, and zero or
// more nested regions for the structured control-flow constructs.
type Op struct {
	code     Opcode
	operands []*Value
	results  []*Value
	regions  []*Region
	parent   *Region

	/* attributes */
	axis         int     // reduce / expand_dims dimension
	allowReorder bool    // reshape may permute elements
	expensive    bool    // load / store cost-model hint
	constVal     float64 // const payload
}

func makeOp(code Opcode, operands []*Value, results []Type, nregions int) *Op {
	o := &Op{
		code:     code,
		operands: make([]*Value, len(operands)),
		results:  make([]*Value, len(results)),
		regions:  make([]*Region, nregions),
	}
	for i, v := range operands {
		o.operands[i] = v
		v.addUse(Use{o, i})
	}
	for i, t := range results {
		o.results[i] = &Value{typ: t, def: o, pos: i}
	}
	for i := range o.regions {
		o.regions[i] = &Region{owner: o}
	}
	return o
}

func (o *Op) Code() Opcode {
	return o.code
}

func (o *Op) Parent() *Region {
	return o.parent
}

func (o *Op) NumOperands() int {
	return len(o.operands)
}

func (o *Op) Operand(i int) *Value {
	return o.operands[i]
}

// Operands returns the operand list. The slice is read-only; mutate through
// SetOperand so use lists stay consistent.
func (o *Op) Operands() []*Value {
	return o.operands
}

func (o *Op) SetOperand(i int, v *Value) {
	old := o.operands[i]
	if old == v {
		return
	}
	if old != nil {
		old.removeUse(Use{o, i})
	}
	o.operands[i] = v
	if v != nil {
		v.addUse(Use{o, i})
	}
}

func (o *Op) NumResults() int {
	return len(o.results)
}

func (o *Op) Result(i int) *Value {
	return o.results[i]
}

// Results returns the result list. The slice is read-only.
func (o *Op) Results() []*Value {
	return o.results
}

func (o *Op) NumRegions() int {
	return len(o.regions)
}

func (o *Op) Region(i int) *Region {
	return o.regions[i]
}

func (o *Op) Regions() []*Region {
	return o.regions
}

/* attribute accessors */

func (o *Op) Axis() int          { return o.axis }
func (o *Op) AllowReorder() bool { return o.allowReorder }
func (o *Op) Expensive() bool    { return o.expensive }
func (o *Op) ConstVal() float64  { return o.constVal }

// Erase unlinks the op from its parent region, dropping the uses held by its
// operands and by everything inside its regions. Erasing an op whose results
// are still referenced is a bug and panics.
func (o *Op) Erase() {
	for _, v := range o.results {
		if v.HasUses() {
			panic("tir: erasing " + o.code.String() + " with live uses")
		}
	}
	for i := len(o.regions) - 1; i >= 0; i-- {
		r := o.regions[i]
		for len(r.ops) != 0 {
			r.ops[len(r.ops)-1].Erase()
		}
	}
	for i, v := range o.operands {
		if v != nil {
			v.removeUse(Use{o, i})
			o.operands[i] = nil
		}
	}
	if o.parent != nil {
		o.parent.remove(o)
		o.parent = nil
	}
}

/* structural accessors for the control-flow constructs */

// Body returns the loop body of a for op.
func (o *Op) Body() *Region {
	if o.code != OpFor {
		panic("tir: Body on " + o.code.String())
	}
	return o.regions[0]
}

// InductionVar returns the scalar induction variable of a for op.
func (o *Op) InductionVar() *Value {
	return o.Body().Arg(0)
}

func (o *Op) NumIterArgs() int {
	if o.code != OpFor {
		panic("tir: NumIterArgs on " + o.code.String())
	}
	return len(o.operands) - 3
}

// IterArg returns the i-th loop-carried body argument of a for op.
func (o *Op) IterArg(i int) *Value {
	return o.Body().Arg(i + 1)
}

// InitArg returns the i-th loop-carried initial operand of a for op.
func (o *Op) InitArg(i int) *Value {
	if o.code != OpFor {
		panic("tir: InitArg on " + o.code.String())
	}
	return o.operands[3+i]
}

func (o *Op) InitArgs() []*Value {
	if o.code != OpFor {
		panic("tir: InitArgs on " + o.code.String())
	}
	return o.operands[3:]
}

// Then returns the taken region of an if op.
func (o *Op) Then() *Region {
	if o.code != OpIf {
		panic("tir: Then on " + o.code.String())
	}
	return o.regions[0]
}

// Else returns the fallback region of an if op.
func (o *Op) Else() *Region {
	if o.code != OpIf {
		panic("tir: Else on " + o.code.String())
	}
	return o.regions[1]
}

func (o *Op) ThenYield() *Op {
	return o.Then().Terminator()
}

func (o *Op) ElseYield() *Op {
	return o.Else().Terminator()
}

// Before returns the condition region of a while op.
func (o *Op) Before() *Region {
	if o.code != OpWhile {
		panic("tir: Before on " + o.code.String())
	}
	return o.regions[0]
}

// After returns the body region of a while op.
func (o *Op) After() *Region {
	if o.code != OpWhile {
		panic("tir: After on " + o.code.String())
	}
	return o.regions[1]
}
