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
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/cloudwego/relayout/tir"
)

// layoutInfo is the ordered set of candidate layouts currently believed
// consistent with one value. Insertion order is preserved and duplicates
// collapse; after conflict resolution exactly one candidate remains.
type layoutInfo struct {
	layouts []tir.Layout
}

// add inserts a candidate, reporting whether it was new.
func (i *layoutInfo) add(l tir.Layout) bool {
	for _, x := range i.layouts {
		if x == l {
			return false
		}
	}
	i.layouts = append(i.layouts, l)
	return true
}

func (i *layoutInfo) count() int {
	return len(i.layouts)
}

func (i *layoutInfo) first() tir.Layout {
	return i.layouts[0]
}

// resolved returns the single remaining candidate and panics when conflict
// resolution has not collapsed the set yet.
func (i *layoutInfo) resolved() tir.Layout {
	if len(i.layouts) != 1 {
		panic("layout: candidate set was not resolved to a single layout")
	}
	return i.layouts[0]
}

func (i *layoutInfo) reset(l tir.Layout) {
	i.layouts = append(i.layouts[:0], l)
}

// layoutMap maps every value touched by propagation to its candidate set,
// preserving discovery order so the pass stays deterministic. It is scoped to
// one pass invocation over one function and never escapes it.
type layoutMap struct {
	order []*tir.Value
	info  map[*tir.Value]*layoutInfo
}

func newLayoutMap() *layoutMap {
	return &layoutMap{info: make(map[*tir.Value]*layoutInfo)}
}

func (m *layoutMap) add(v *tir.Value, l tir.Layout) bool {
	i, ok := m.info[v]
	if !ok {
		i = new(layoutInfo)
		m.info[v] = i
		m.order = append(m.order, v)
	}
	return i.add(l)
}

func (m *layoutMap) get(v *tir.Value) (*layoutInfo, bool) {
	i, ok := m.info[v]
	return i, ok
}

func (m *layoutMap) has(v *tir.Value) bool {
	_, ok := m.info[v]
	return ok
}

// values returns the tracked values in discovery order.
func (m *layoutMap) values() []*tir.Value {
	return m.order
}

// dump renders the map for debug logging.
func (m *layoutMap) dump() string {
	var sb strings.Builder
	for _, v := range m.order {
		sb.WriteString(v.Type().String())
		sb.WriteString(" -> ")
		sb.WriteString(spew.Sprintf("%v", m.info[v].layouts))
		sb.WriteString("\n")
	}
	return sb.String()
}

// valueSet is an insertion-ordered set of values.
type valueSet struct {
	order []*tir.Value
	seen  map[*tir.Value]bool
}

func newValueSet() *valueSet {
	return &valueSet{seen: make(map[*tir.Value]bool)}
}

func (s *valueSet) add(v *tir.Value) bool {
	if s.seen[v] {
		return false
	}
	s.seen[v] = true
	s.order = append(s.order, v)
	return true
}

func (s *valueSet) contains(v *tir.Value) bool {
	return s.seen[v]
}

func (s *valueSet) remove(v *tir.Value) {
	if !s.seen[v] {
		return
	}
	delete(s.seen, v)
	for i, x := range s.order {
		if x == v {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *valueSet) len() int {
	return len(s.order)
}

func (s *valueSet) empty() bool {
	return len(s.order) == 0
}

// opSet is an insertion-ordered set of ops.
type opSet struct {
	order []*tir.Op
	seen  map[*tir.Op]bool
}

func newOpSet() *opSet {
	return &opSet{seen: make(map[*tir.Op]bool)}
}

func (s *opSet) add(op *tir.Op) bool {
	if s.seen[op] {
		return false
	}
	s.seen[op] = true
	s.order = append(s.order, op)
	return true
}

func (s *opSet) contains(op *tir.Op) bool {
	return s.seen[op]
}
