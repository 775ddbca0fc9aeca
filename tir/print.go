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
	"strings"
)

type printer struct {
	sb    strings.Builder
	names map[*Value]string
	next  int
}

func (p *printer) name(v *Value) string {
	if n, ok := p.names[v]; ok {
		return n
	}
	n := fmt.Sprintf("%%%d", p.next)
	p.next++
	p.names[v] = n
	return n
}

func (p *printer) pad(depth int) {
	for i := 0; i < depth; i++ {
		p.sb.WriteString("  ")
	}
}

func (p *printer) printFunc(f *Func) {
	p.sb.WriteString("func @" + f.Name + "(")
	for i, arg := range f.body.args {
		if i > 0 {
			p.sb.WriteString(", ")
		}
		n := fmt.Sprintf("%%arg%d", i)
		p.names[arg] = n
		p.sb.WriteString(n + ": " + arg.Type().String())
	}
	p.sb.WriteString(") {\n")
	p.printRegionOps(f.body, 1)
	p.sb.WriteString("}\n")
}

func (p *printer) printRegionOps(r *Region, depth int) {
	for _, op := range r.ops {
		p.pad(depth)
		p.printOp(op, depth)
		p.sb.WriteString("\n")
	}
}

func (p *printer) operandList(ops []*Value) string {
	parts := make([]string, len(ops))
	for i, v := range ops {
		parts[i] = p.name(v)
	}
	return strings.Join(parts, ", ")
}

func (p *printer) resultTypes(op *Op) string {
	parts := make([]string, len(op.results))
	for i, v := range op.results {
		parts[i] = v.Type().String()
	}
	return strings.Join(parts, ", ")
}

func (p *printer) printOp(op *Op, depth int) {
	if len(op.results) > 0 {
		names := make([]string, len(op.results))
		for i, v := range op.results {
			names[i] = p.name(v)
		}
		p.sb.WriteString(strings.Join(names, ", ") + " = ")
	}

	switch op.code {
	case OpConst:
		fmt.Fprintf(&p.sb, "const %g : %s", op.constVal, p.resultTypes(op))
	case OpReduce, OpExpandDims:
		fmt.Fprintf(&p.sb, "%s %s axis %d : %s", op.code, p.operandList(op.operands), op.axis, p.resultTypes(op))
	case OpReshape:
		p.sb.WriteString("reshape " + p.operandList(op.operands))
		if op.allowReorder {
			p.sb.WriteString(" reorder")
		}
		p.sb.WriteString(" : " + p.resultTypes(op))
	case OpLoad, OpStore:
		p.sb.WriteString(op.code.String() + " " + p.operandList(op.operands))
		if op.expensive {
			p.sb.WriteString(" expensive")
		}
		if len(op.results) > 0 {
			p.sb.WriteString(" : " + p.resultTypes(op))
		}
	case OpFor:
		fmt.Fprintf(&p.sb, "for %s to %s step %s iter(", p.name(op.operands[0]), p.name(op.operands[1]), p.name(op.operands[2]))
		body := op.regions[0]
		for i, init := range op.InitArgs() {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.sb.WriteString(p.name(body.Arg(i+1)) + " = " + p.name(init))
		}
		p.sb.WriteString(") iv " + p.name(body.Arg(0)) + " {\n")
		p.printRegionOps(body, depth+1)
		p.pad(depth)
		p.sb.WriteString("}")
		if len(op.results) > 0 {
			p.sb.WriteString(" : " + p.resultTypes(op))
		}
	case OpIf:
		p.sb.WriteString("if " + p.name(op.operands[0]) + " {\n")
		p.printRegionOps(op.regions[0], depth+1)
		p.pad(depth)
		p.sb.WriteString("} else {\n")
		p.printRegionOps(op.regions[1], depth+1)
		p.pad(depth)
		p.sb.WriteString("}")
		if len(op.results) > 0 {
			p.sb.WriteString(" : " + p.resultTypes(op))
		}
	case OpWhile:
		p.sb.WriteString("while init(")
		before, after := op.regions[0], op.regions[1]
		for i, init := range op.operands {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.sb.WriteString(p.name(before.Arg(i)) + " = " + p.name(init))
		}
		p.sb.WriteString(") {\n")
		p.printRegionOps(before, depth+1)
		p.pad(depth)
		p.sb.WriteString("} do(")
		for i, arg := range after.args {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.sb.WriteString(p.name(arg))
		}
		p.sb.WriteString(") {\n")
		p.printRegionOps(after, depth+1)
		p.pad(depth)
		p.sb.WriteString("}")
		if len(op.results) > 0 {
			p.sb.WriteString(" : " + p.resultTypes(op))
		}
	default:
		p.sb.WriteString(op.code.String())
		if len(op.operands) > 0 {
			p.sb.WriteString(" " + p.operandList(op.operands))
		}
		if len(op.results) > 0 {
			p.sb.WriteString(" : " + p.resultTypes(op))
		}
	}
}

func (f *Func) String() string {
	p := &printer{names: make(map[*Value]string)}
	p.printFunc(f)
	return p.sb.String()
}

func (m *Module) String() string {
	var sb strings.Builder
	for _, f := range m.Funcs {
		sb.WriteString(f.String())
	}
	return sb.String()
}

func (o *Op) String() string {
	if o.parent == nil {
		return o.code.String()
	}
	p := &printer{names: make(map[*Value]string)}
	p.printOp(o, 0)
	return p.sb.String()
}
