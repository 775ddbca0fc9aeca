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

// ValueMap remaps original values to their rewritten replacements during
// cloning and structural rewrites.
type ValueMap map[*Value]*Value

// Lookup returns the mapped value, or v itself when no mapping exists.
func (m ValueMap) Lookup(v *Value) *Value {
	if n, ok := m[v]; ok {
		return n
	}
	return v
}

// Clone inserts a copy of op at the builder's insertion point. Operands are
// remapped through vm, and the results of the copy are recorded in vm so
// later clones see them. Nested regions are cloned recursively.
func (b *Builder) Clone(op *Op, vm ValueMap) *Op {
	operands := make([]*Value, len(op.operands))
	for i, v := range op.operands {
		operands[i] = vm.Lookup(v)
	}
	results := make([]Type, len(op.results))
	for i, v := range op.results {
		results[i] = v.Type()
	}

	n := makeOp(op.code, operands, results, len(op.regions))
	n.axis = op.axis
	n.allowReorder = op.allowReorder
	n.expensive = op.expensive
	n.constVal = op.constVal
	b.insert(n)

	for i, v := range op.results {
		vm[v] = n.results[i]
	}
	for i, src := range op.regions {
		dst := n.regions[i]
		for _, arg := range src.args {
			vm[arg] = dst.AddArg(arg.Type())
		}
		nested := NewBuilder().AtRegionEnd(dst)
		for _, inner := range src.ops {
			nested.Clone(inner, vm)
		}
	}
	return n
}
