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

// Package relayout erases redundant layout conversions from tensor programs.
//
// The optimizer works in one-shot stages: layouts fixed by anchor ops are
// propagated forward and materialized, then the surviving conversions are
// attacked one by one, by rematerializing their producer chains under the
// target layout, hoisting them above widening ops, and fusing them into
// matrix-multiply accumulators.
package relayout

import (
	log "github.com/sirupsen/logrus"

	"github.com/cloudwego/relayout/internal/layout"
	"github.com/cloudwego/relayout/tir"
)

type _StageDescriptor struct {
	name string
	run  func(*tir.Module, tir.Oracle) error
}

var _stages = [...]_StageDescriptor{
	{name: "Layout Assignment", run: assignLayouts},
	{name: "Conversion Cleanup", run: cleanup},
	{name: "Backward Rematerialization", run: rematerialize},
	{name: "Conversion Hoisting", run: hoist},
	{name: "Dot Accumulator Fusion", run: fuseDots},
	{name: "Final Cleanup", run: cleanup},
}

func assignLayouts(m *tir.Module, oracle tir.Oracle) error {
	for _, fn := range m.Funcs {
		layout.Assign(fn, oracle)
	}
	return nil
}

func cleanup(m *tir.Module, oracle tir.Oracle) error {
	return layout.Canonicalize(m)
}

func rematerialize(m *tir.Module, oracle tir.Oracle) error {
	layout.Rematerialize(m, oracle)
	return nil
}

func hoist(m *tir.Module, oracle tir.Oracle) error {
	layout.HoistConversions(m, oracle)
	return nil
}

func fuseDots(m *tir.Module, oracle tir.Oracle) error {
	layout.FuseDotAccumulator(m)
	return nil
}

// Optimize runs the full conversion-removal pipeline over m, in place. On
// error the module is structurally intact but only partially optimized.
func Optimize(m *tir.Module, options ...Option) error {
	opt := defaultOptions()
	for _, fn := range options {
		fn(&opt)
	}
	oracle := opt.oracle()

	for _, s := range _stages {
		if err := s.run(m, oracle); err != nil {
			return StageError{Stage: s.name, Err: err}
		}
		if log.IsLevelEnabled(log.DebugLevel) {
			log.Debugf("relayout: module after %s:\n%s", s.name, m)
		}
	}
	if err := tir.Verify(m); err != nil {
		return StageError{Stage: "Verification", Err: err}
	}
	return nil
}
