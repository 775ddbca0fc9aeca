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

// Region is a single-block list of ops with its own arguments. Function
// bodies and the regions nested under control-flow ops are both Regions.
type Region struct {
	owner *Op // nil for function bodies
	args  []*Value
	ops   []*Op
}

// Owner returns the op the region is nested under, or nil for a function
// body.
func (r *Region) Owner() *Op {
	return r.owner
}

func (r *Region) NumArgs() int {
	return len(r.args)
}

func (r *Region) Arg(i int) *Value {
	return r.args[i]
}

// Args returns the argument list. The slice is read-only.
func (r *Region) Args() []*Value {
	return r.args
}

// AddArg appends a fresh region argument of the given type.
func (r *Region) AddArg(t Type) *Value {
	v := &Value{typ: t, owner: r, pos: len(r.args)}
	r.args = append(r.args, v)
	return v
}

// Ops returns the op list in program order. The slice is read-only and is
// invalidated by insertions and erasures; snapshot it before mutating.
func (r *Region) Ops() []*Op {
	return r.ops
}

func (r *Region) Empty() bool {
	return len(r.ops) == 0
}

// Terminator returns the last op of the region, or nil if the region is
// empty.
func (r *Region) Terminator() *Op {
	if len(r.ops) == 0 {
		return nil
	}
	return r.ops[len(r.ops)-1]
}

func (r *Region) indexOf(op *Op) int {
	for i, o := range r.ops {
		if o == op {
			return i
		}
	}
	panic("tir: op is not in this region")
}

func (r *Region) insertAt(i int, op *Op) {
	if op.parent != nil {
		panic("tir: op already belongs to a region")
	}
	r.ops = append(r.ops, nil)
	copy(r.ops[i+1:], r.ops[i:])
	r.ops[i] = op
	op.parent = r
}

func (r *Region) remove(op *Op) {
	i := r.indexOf(op)
	r.ops = append(r.ops[:i], r.ops[i+1:]...)
}

// SpliceOps moves every op of src to the end of r, leaving src empty. The
// arguments of src are untouched; callers remap or retire them.
func (r *Region) SpliceOps(src *Region) {
	for _, op := range src.ops {
		op.parent = r
	}
	r.ops = append(r.ops, src.ops...)
	src.ops = nil
}

// Func is one function: a name and a body region whose arguments are the
// function parameters.
type Func struct {
	Name string
	body *Region
}

func NewFunc(name string, params ...Type) *Func {
	f := &Func{Name: name, body: &Region{}}
	for _, t := range params {
		f.body.AddArg(t)
	}
	return f
}

func (f *Func) Body() *Region {
	return f.body
}

func (f *Func) NumParams() int {
	return f.body.NumArgs()
}

func (f *Func) Param(i int) *Value {
	return f.body.Arg(i)
}

func (f *Func) Params() []*Value {
	return f.body.Args()
}

// Walk visits every op of the function in program order, descending into
// nested regions right after their owner. Do not mutate the visited region
// lists from fn; snapshot first.
func (f *Func) Walk(fn func(*Op)) {
	walkRegion(f.body, fn)
}

func walkRegion(r *Region, fn func(*Op)) {
	for _, op := range r.ops {
		fn(op)
		for _, nested := range op.regions {
			walkRegion(nested, fn)
		}
	}
}

// Module is a set of functions optimized together.
type Module struct {
	Funcs []*Func
}

func NewModule(fns ...*Func) *Module {
	return &Module{Funcs: fns}
}

func (m *Module) Walk(fn func(*Op)) {
	for _, f := range m.Funcs {
		f.Walk(fn)
	}
}
