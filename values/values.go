// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

// Package values defines Value, the engine's runtime data container flowing along
// graph edges, and Fence, the synchronization token gating safe consumption of
// asynchronously produced data.
//
// A Value is a tagged union over a closed set of kinds: a Tensor, or one of the
// supported sequence-of-maps types. The union is explicit (no interface hierarchy):
// dispatch happens over Value.Kind().
package values

import "github.com/pkg/errors"

// Kind enumerates the closed set of types a Value can hold.
type Kind int

const (
	// InvalidKind is the zero value for an empty Value.
	InvalidKind Kind = iota

	// TensorKind holds a *Tensor.
	TensorKind

	// VectorMapStringToFloatKind holds a []map[string]float32, used by
	// classical-ML operators that emit per-class scores.
	VectorMapStringToFloatKind

	// VectorMapInt64ToFloatKind holds a []map[int64]float32.
	VectorMapInt64ToFloatKind
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case TensorKind:
		return "Tensor"
	case VectorMapStringToFloatKind:
		return "VectorMapStringToFloat"
	case VectorMapInt64ToFloatKind:
		return "VectorMapInt64ToFloat"
	default:
		return "Invalid"
	}
}

// Value is the engine's runtime data container: a tagged union over the Kind set,
// optionally carrying a Fence when produced asynchronously.
//
// A Value with no Fence is immediately visible to any consumer (host-synchronous
// production).
type Value struct {
	kind         Kind
	tensor       *Tensor
	mapsStrFloat []map[string]float32
	mapsIntFloat []map[int64]float32

	fence Fence
}

// NewTensorValue wraps a tensor as a Value.
func NewTensorValue(t *Tensor) *Value {
	return &Value{kind: TensorKind, tensor: t}
}

// NewVectorMapStringToFloat wraps a sequence of string→float maps as a Value.
func NewVectorMapStringToFloat(maps []map[string]float32) *Value {
	return &Value{kind: VectorMapStringToFloatKind, mapsStrFloat: maps}
}

// NewVectorMapInt64ToFloat wraps a sequence of int64→float maps as a Value.
func NewVectorMapInt64ToFloat(maps []map[int64]float32) *Value {
	return &Value{kind: VectorMapInt64ToFloatKind, mapsIntFloat: maps}
}

// Kind of the value.
func (v *Value) Kind() Kind {
	if v == nil {
		return InvalidKind
	}
	return v.kind
}

// IsTensor returns whether the value holds a tensor.
func (v *Value) IsTensor() bool { return v.Kind() == TensorKind }

// Tensor returns the held tensor, or an error if the value holds another kind.
func (v *Value) Tensor() (*Tensor, error) {
	if !v.IsTensor() {
		return nil, errors.Errorf("value holds %s, not a tensor", v.Kind())
	}
	return v.tensor, nil
}

// MustTensor is like Tensor but panics on kind mismatch. Meant for kernels, after
// the resolver has already type-checked the edge.
func (v *Value) MustTensor() *Tensor {
	t, err := v.Tensor()
	if err != nil {
		panic(err)
	}
	return t
}

// VectorMapStringToFloat returns the held sequence of maps, or an error on kind mismatch.
func (v *Value) VectorMapStringToFloat() ([]map[string]float32, error) {
	if v.Kind() != VectorMapStringToFloatKind {
		return nil, errors.Errorf("value holds %s, not VectorMapStringToFloat", v.Kind())
	}
	return v.mapsStrFloat, nil
}

// VectorMapInt64ToFloat returns the held sequence of maps, or an error on kind mismatch.
func (v *Value) VectorMapInt64ToFloat() ([]map[int64]float32, error) {
	if v.Kind() != VectorMapInt64ToFloatKind {
		return nil, errors.Errorf("value holds %s, not VectorMapInt64ToFloat", v.Kind())
	}
	return v.mapsIntFloat, nil
}

// Fence returns the synchronization token attached to this value, or nil if the
// value is immediately visible.
func (v *Value) Fence() Fence { return v.fence }

// SetFence attaches a fence to the value. Done by the producing provider when its
// kernels complete asynchronously.
func (v *Value) SetFence(f Fence) { v.fence = f }

// String implements fmt.Stringer.
func (v *Value) String() string {
	if v == nil {
		return "Value(nil)"
	}
	if v.IsTensor() {
		return v.tensor.String()
	}
	return v.kind.String()
}
