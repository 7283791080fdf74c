// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

package sessiontest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToleranceViolation(t *testing.T) {
	inf := math.Inf(1)
	nan := math.NaN()

	// Neither tolerance set: the default absolute tolerance applies.
	assert.Empty(t, toleranceViolation(1, 1.0005, 0, 0))
	assert.NotEmpty(t, toleranceViolation(1, 1.01, 0, 0))

	// Absolute tolerance only.
	assert.Empty(t, toleranceViolation(100, 100.4, 0.5, 0))
	assert.NotEmpty(t, toleranceViolation(100, 100.6, 0.5, 0))

	// Relative tolerance only: it alone governs, the default absolute tolerance
	// must not rescue a value outside the relative bound.
	assert.NotEmpty(t, toleranceViolation(100, 100.0005, 0, 1e-9))
	assert.Empty(t, toleranceViolation(100, 100.0005, 0, 1e-5))

	// Both set: each is an independent requirement.
	assert.Empty(t, toleranceViolation(100, 100.4, 0.5, 1e-2))
	assert.NotEmpty(t, toleranceViolation(100, 100.4, 0.5, 1e-6))
	assert.NotEmpty(t, toleranceViolation(100, 100.6, 0.5, 1e-2))

	// Infinities compare exactly, regardless of tolerances.
	assert.Empty(t, toleranceViolation(inf, inf, 10, 10))
	assert.NotEmpty(t, toleranceViolation(inf, 1e308, 10, 10))
	assert.NotEmpty(t, toleranceViolation(inf, -inf, 10, 10))

	// NaN expects NaN.
	assert.Empty(t, toleranceViolation(nan, nan, 0, 0))
	assert.NotEmpty(t, toleranceViolation(nan, 0, 0, 0))
}
