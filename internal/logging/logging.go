// Copyright 2021 IBM Corp.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging builds the logr facade that store.Open, the
// tombstone reporter, and the CLI log through.
package logging

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// New builds a logr.Logger backed by zap. verbose selects the
// development encoder config (human-readable, stack traces on
// warnings); non-verbose uses the production encoder.
func New(verbose bool) (logr.Logger, error) {
	var zapLog *zap.Logger
	var err error

	if verbose {
		zapLog, err = zap.NewDevelopment()
	} else {
		zapLog, err = zap.NewProduction()
	}
	if err != nil {
		return logr.Discard(), fmt.Errorf("failed to initialize zapr: %w", err)
	}

	return zapr.NewLogger(zapLog), nil
}
