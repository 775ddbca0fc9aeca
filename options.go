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

package relayout

import (
	"github.com/cloudwego/relayout/tir"
)

// Options control one invocation of the optimizer.
type Options struct {
	Oracle tir.Oracle

	// ExpensiveMemElems overrides the element-count threshold above which a
	// load or store anchors its layout. It only applies while the stock
	// oracle is in use; a custom oracle carries its own cost model.
	ExpensiveMemElems int64
}

// Option is the property setter function for Options.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Oracle: tir.DefaultOracle{},
	}
}

// WithOracle substitutes the layout transfer rules, typically to model a
// specific target's conversion costs.
func WithOracle(oracle tir.Oracle) Option {
	if oracle == nil {
		panic("relayout: nil oracle")
	}
	return func(o *Options) { o.Oracle = oracle }
}

// WithExpensiveMemElems sets the element-count threshold above which a load
// or store anchors its layout. Zero selects the global default. The setting
// has no effect on an oracle installed with WithOracle, in either option
// order.
func WithExpensiveMemElems(n int64) Option {
	return func(o *Options) { o.ExpensiveMemElems = n }
}

// oracle returns the configured oracle, with the threshold override folded in
// when the stock rules are in use.
func (o Options) oracle() tir.Oracle {
	if d, ok := o.Oracle.(tir.DefaultOracle); ok && o.ExpensiveMemElems != 0 {
		d.ExpensiveMemElems = o.ExpensiveMemElems
		return d
	}
	return o.Oracle
}
