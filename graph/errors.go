// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

package graph

import "github.com/pkg/errors"

// The resolver distinguishes two fatal error kinds. Both are sentinels meant to be
// wrapped with context (errors.Wrapf), so callers can test the kind with errors.Is
// and test harnesses can match a descriptive substring of Error().
var (
	// ErrStructure indicates a structural defect: duplicate node or output name,
	// dangling reference, operator arity mismatch, or a cycle.
	ErrStructure = errors.New("graph structure error")

	// ErrTypeResolution indicates unresolvable or incompatible types across an edge.
	ErrTypeResolution = errors.New("type resolution error")

	// ErrNotResolved is returned when an operation requires a successfully
	// resolved graph.
	ErrNotResolved = errors.New("graph has not been resolved")
)
