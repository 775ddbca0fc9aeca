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

// Layout describes how the elements of a tensor are physically distributed.
// Implementations must be comparable values so layouts can be tested with ==
// and used as map keys.
type Layout interface {
	fmt.Stringer
	isLayout()
}

// BlockedLayout is the generic distribution across parallel lanes.
type BlockedLayout struct {
	VecSize  int   // contiguous elements owned by one lane
	LaneSpan int   // lanes cooperating on one tile
	Order    uint8 // fastest varying dimension
}

// TileLayout is the layout produced by the specialized matrix units.
type TileLayout struct {
	Version int
	Span    int
}

// OperandLayout is the layout required on the inputs of a matrix multiply.
// Parent is the tile layout of the multiply consuming the operand.
type OperandLayout struct {
	Index  int // 0 for lhs, 1 for rhs
	Parent Layout
}

// StagingLayout marks a tensor staged through shared memory.
type StagingLayout struct {
	VecSize int
}

// SliceLayout is the layout of a tensor obtained by collapsing dimension Dim
// of a tensor laid out as Parent.
type SliceLayout struct {
	Dim    int
	Parent Layout
}

func (BlockedLayout) isLayout() {}
func (TileLayout) isLayout()    {}
func (OperandLayout) isLayout() {}
func (StagingLayout) isLayout() {}
func (SliceLayout) isLayout()   {}

func (l BlockedLayout) String() string {
	return fmt.Sprintf("#blocked<v%d,l%d,o%d>", l.VecSize, l.LaneSpan, l.Order)
}

func (l TileLayout) String() string {
	return fmt.Sprintf("#tile<v%d,s%d>", l.Version, l.Span)
}

func (l OperandLayout) String() string {
	return fmt.Sprintf("#operand<%d,%s>", l.Index, l.Parent)
}

func (l StagingLayout) String() string {
	return fmt.Sprintf("#staging<v%d>", l.VecSize)
}

func (l SliceLayout) String() string {
	return fmt.Sprintf("#slice<%d,%s>", l.Dim, l.Parent)
}

func IsBlocked(l Layout) bool {
	_, ok := l.(BlockedLayout)
	return ok
}

func IsTile(l Layout) bool {
	_, ok := l.(TileLayout)
	return ok
}

func IsOperand(l Layout) bool {
	_, ok := l.(OperandLayout)
	return ok
}

func IsStaging(l Layout) bool {
	_, ok := l.(StagingLayout)
	return ok
}
