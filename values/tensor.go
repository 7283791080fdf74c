// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

package values

import (
	"fmt"
	"reflect"

	"github.com/OskarBun/onnxruntime/types/dtypes"
	"github.com/OskarBun/onnxruntime/types/shapes"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// Tensor represents a multidimensional array (from scalar with 0 dimensions, to
// arbitrarily large dimensions), defined by its shape (a dtype and its axes'
// dimensions) and its actual content, stored as a flat (1D) slice of the underlying
// Go type.
//
// The flat buffer is owned by whoever produced the tensor: the caller for feeds, or
// the execution provider that allocated it for kernel outputs. Provider-owned
// buffers are returned to the provider's allocator when released.
type Tensor struct {
	shape shapes.Shape

	// flat is a []T slice where T is the Go type corresponding to shape.DType.
	flat any

	// owner identifies the execution provider whose allocator owns the flat
	// buffer, or empty for caller-owned tensors.
	owner string
}

// FromShape creates a tensor with the given shape and zero-valued elements.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		panicf("values.FromShape: invalid shape %s", shape)
	}
	size := shape.Size()
	flat := reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), size, size).Interface()
	return &Tensor{shape: shape, flat: flat}
}

// FromFlatDataAndDimensions creates a tensor with the given dimensions, with the
// flattened values set to data. The dtype is taken from the Go type T.
//
// Example: FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2) // [[1,2], [3,4]]
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dimensions...)
	if shape.Size() != len(data) {
		panicf("values.FromFlatDataAndDimensions: shape %s requires %d elements, got %d",
			shape, shape.Size(), len(data))
	}
	flat := make([]T, len(data))
	copy(flat, data)
	return &Tensor{shape: shape, flat: flat}
}

// FromScalar creates a 0-dimensional tensor holding value.
func FromScalar[T dtypes.Supported](value T) *Tensor {
	return &Tensor{shape: shapes.Scalar[T](), flat: []T{value}}
}

// FromFlatAndShape wraps (without copying) the given flat slice as a tensor of the
// given shape. The slice element type must match shape.DType.
//
// It is meant for allocators and kernels; most callers want FromFlatDataAndDimensions.
func FromFlatAndShape(flat any, shape shapes.Shape, owner string) (*Tensor, error) {
	flatValue := reflect.ValueOf(flat)
	if flatValue.Kind() != reflect.Slice {
		return nil, errors.Errorf("values.FromFlatAndShape: flat must be a slice, got %T", flat)
	}
	if flatValue.Type().Elem() != shape.DType.GoType() {
		return nil, errors.Errorf("values.FromFlatAndShape: flat %T doesn't match dtype %s", flat, shape.DType)
	}
	if flatValue.Len() != shape.Size() {
		return nil, errors.Errorf("values.FromFlatAndShape: shape %s requires %d elements, flat has %d",
			shape, shape.Size(), flatValue.Len())
	}
	return &Tensor{shape: shape, flat: flat, owner: owner}, nil
}

// Shape of the tensor, includes the DType.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType returns the DType of the tensor's shape.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank returns the rank of the tensor's shape.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// IsScalar returns whether the tensor represents a scalar value.
func (t *Tensor) IsScalar() bool { return t.shape.IsScalar() }

// Size returns the number of elements in the tensor.
func (t *Tensor) Size() int { return t.shape.Size() }

// Memory returns the number of bytes used to store the tensor data.
func (t *Tensor) Memory() uintptr { return t.shape.Memory() }

// Owner returns the ID of the execution provider whose allocator owns the flat
// buffer, or empty if the buffer is caller-owned.
func (t *Tensor) Owner() string { return t.owner }

// Flat returns the underlying flat data as `any` -- a []T of the dtype's Go type.
// The data is shared, not copied: mutating it mutates the tensor.
func (t *Tensor) Flat() any { return t.flat }

// FlatData returns the underlying flat data slice of the requested type.
// It returns an error if T doesn't match the tensor's dtype.
func FlatData[T dtypes.Supported](t *Tensor) ([]T, error) {
	flat, ok := t.flat.([]T)
	if !ok {
		return nil, errors.Errorf("tensor holds %s (%T), cannot access it as %T",
			t.DType(), t.flat, flat)
	}
	return flat, nil
}

// MustFlatData is like FlatData, but panics on dtype mismatch.
func MustFlatData[T dtypes.Supported](t *Tensor) []T {
	flat, err := FlatData[T](t)
	if err != nil {
		panic(err)
	}
	return flat
}

// String implements fmt.Stringer: it prints the shape and the size of the data.
func (t *Tensor) String() string {
	if t == nil {
		return "Tensor(nil)"
	}
	return fmt.Sprintf("Tensor%s [%s]", t.shape, humanize.Bytes(uint64(t.Memory())))
}

func panicf(format string, args ...any) {
	panic(errors.Errorf(format, args...))
}
