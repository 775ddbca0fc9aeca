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

// ElemType is the element type of a tensor or scalar value.
type ElemType uint8

const (
	I1 ElemType = iota
	I8
	I16
	I32
	I64
	F16
	F32
	F64
	Ptr
)

func (t ElemType) Bits() int {
	switch t {
	case I1:
		return 1
	case I8:
		return 8
	case I16, F16:
		return 16
	case I32, F32:
		return 32
	case I64, F64, Ptr:
		return 64
	default:
		panic("tir: invalid element type")
	}
}

func (t ElemType) Float() bool {
	return t == F16 || t == F32 || t == F64
}

func (t ElemType) String() string {
	switch t {
	case I1:
		return "i1"
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F16:
		return "f16"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case Ptr:
		return "ptr"
	default:
		return fmt.Sprintf("elem(%d)", uint8(t))
	}
}

// Type describes a program value. A nil Shape means a scalar; tensors
// additionally carry the layout describing their physical distribution.
type Type struct {
	Elem   ElemType
	Shape  []int64
	Layout Layout
}

func Scalar(e ElemType) Type {
	return Type{Elem: e}
}

func TensorOf(e ElemType, shape []int64, l Layout) Type {
	if len(shape) == 0 {
		panic("tir: tensor type needs a non-empty shape")
	}
	return Type{Elem: e, Shape: shape, Layout: l}
}

func (t Type) Tensor() bool {
	return t.Shape != nil
}

// Elems returns the number of elements of a tensor type, 1 for scalars.
func (t Type) Elems() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// WithLayout returns the same tensor type under a different layout.
func (t Type) WithLayout(l Layout) Type {
	if !t.Tensor() {
		panic("tir: scalar types carry no layout")
	}
	return Type{Elem: t.Elem, Shape: t.Shape, Layout: l}
}

func (t Type) Equal(o Type) bool {
	if t.Elem != o.Elem || t.Layout != o.Layout || len(t.Shape) != len(o.Shape) {
		return false
	}
	for i, d := range t.Shape {
		if o.Shape[i] != d {
			return false
		}
	}
	return true
}

func (t Type) String() string {
	if !t.Tensor() {
		return t.Elem.String()
	}
	var sb strings.Builder
	sb.WriteString("tensor<")
	for _, d := range t.Shape {
		fmt.Fprintf(&sb, "%dx", d)
	}
	sb.WriteString(t.Elem.String())
	if t.Layout != nil {
		sb.WriteString(", ")
		sb.WriteString(t.Layout.String())
	}
	sb.WriteString(">")
	return sb.String()
}
