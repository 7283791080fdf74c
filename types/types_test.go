// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := MakeSet[string]()
	assert.False(t, s.Has("cpu"))
	s.Insert("cpu", "parallel")
	assert.True(t, s.Has("cpu"))
	assert.True(t, s.Has("parallel"))
	assert.Len(t, s, 2)

	s2 := SetWith(3, 5, 3)
	assert.Len(t, s2, 2)
	assert.True(t, s2.Has(5))
}
