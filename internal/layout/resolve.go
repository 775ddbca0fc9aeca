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
	"github.com/cloudwego/relayout/tir"
)

// resolve collapses every candidate set to a single layout. The heuristic is
// deliberate but crude: keep the first candidate unless the value comes out
// of a memory op, which prefers the generic blocked layout, or an
// accelerator-tile candidate exists, which wins otherwise. Ties break by
// first-seen order within each class.
// TODO: replace with a cost-model-driven choice.
func (p *propagation) resolve() {
	for _, v := range p.layouts.values() {
		info, _ := p.layouts.get(v)
		if info.count() <= 1 {
			continue
		}

		picked := info.first()
		def := v.Def()
		isMem := def != nil && (def.Code().IsMemory() || def.Code().IsAtomic())
		for _, e := range info.layouts {
			if (isMem && tir.IsBlocked(e)) || (!isMem && tir.IsTile(e)) {
				picked = e
				break
			}
		}
		info.reset(picked)
	}
}
