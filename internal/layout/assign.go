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

// Assign runs layout assignment over one function: anchors seed the candidate
// map, forward propagation fills it, conflict resolution collapses it to one
// layout per value, and the rewrite makes the choices real.
func Assign(fn *tir.Func, oracle tir.Oracle) {
	p := newPropagation(fn, oracle)
	p.initAnchors()
	p.propagate()
	p.resolve()
	if log.IsLevelEnabled(log.DebugLevel) {
		log.Debugf("relayout: layouts resolved for %q:\n%s", fn.Name, p.layouts.dump())
	}
	p.rewrite()
}
