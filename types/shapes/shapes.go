// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines Shape and associated tools.
//
// Shape represents the shape (rank, dimensions and DType) of either a concrete tensor
// or the declared/inferred shape of an edge in a computation graph.
//
// ## Glossary
//
//   - Rank: number of axes (dimensions) of a tensor.
//   - Axis: the index of a dimension on a multidimensional tensor.
//   - Dimension: the size of a tensor in one of its axes.
//   - DType: the data type of the unit element in a tensor, see package dtypes.
//   - Scalar: a shape with no axes, holding a single value of the associated DType.
package shapes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/OskarBun/onnxruntime/types/dtypes"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Shape represents the shape of either a concrete tensor or the expected shape of a
// value flowing through a computation graph.
//
// Use Make to create a new shape.
type Shape struct {
	DType      dtypes.DType
	Dimensions []int
}

// Make returns a Shape structure filled with the values given.
//
// Dimensions must be non-negative: an axis of dimension 0 denotes an empty tensor.
// It panics on negative dimensions -- a programming error.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	s := Shape{DType: dtype, Dimensions: slices.Clone(dimensions)}
	for _, dim := range dimensions {
		if dim < 0 {
			exceptions.Panicf("shapes.Make(%s): cannot create a shape with a negative dimension", s)
		}
	}
	return s
}

// Scalar returns a scalar Shape for the given type.
func Scalar[T dtypes.Supported]() Shape {
	return Shape{DType: dtypes.FromGenericsType[T]()}
}

// Invalid returns an invalid shape.
//
// Invalid().Ok() == false.
func Invalid() Shape {
	return Shape{DType: dtypes.InvalidDType}
}

// Ok returns whether this is a valid Shape. A zero-valued Shape{} is invalid.
func (s Shape) Ok() bool { return s.DType != dtypes.InvalidDType }

// Rank of the shape, that is, the number of axes. A scalar has rank 0.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape has rank 0.
func (s Shape) IsScalar() bool { return s.Rank() == 0 }

// Size returns the total number of elements: the product of all dimensions.
// A scalar has size 1. Any dimension of size 0 makes the size 0.
func (s Shape) Size() int {
	size := 1
	for _, dim := range s.Dimensions {
		size *= dim
	}
	return size
}

// Memory returns the number of bytes needed to store the flat data of a tensor with
// this shape.
func (s Shape) Memory() uintptr {
	return s.DType.Memory() * uintptr(s.Size())
}

// Clone makes a deep copy of the shape.
func (s Shape) Clone() Shape {
	return Shape{DType: s.DType, Dimensions: slices.Clone(s.Dimensions)}
}

// Equal compares shape and dtype.
func (s Shape) Equal(s2 Shape) bool {
	return s.DType == s2.DType && slices.Equal(s.Dimensions, s2.Dimensions)
}

// EqualDimensions compares only the dimensions, ignoring the DType.
func (s Shape) EqualDimensions(s2 Shape) bool {
	return slices.Equal(s.Dimensions, s2.Dimensions)
}

// String implements fmt.Stringer. E.g.: `(Float32)[2 3]`.
func (s Shape) String() string {
	if !s.Ok() {
		return "(invalid shape)"
	}
	if s.IsScalar() {
		return fmt.Sprintf("(%s)", s.DType)
	}
	b := strings.Builder{}
	fmt.Fprintf(&b, "(%s)%v", s.DType, s.Dimensions)
	return b.String()
}

// Strides returns the row-major strides (in elements, not bytes) for each axis.
func (s Shape) Strides() []int {
	strides := make([]int, s.Rank())
	stride := 1
	for axis := s.Rank() - 1; axis >= 0; axis-- {
		strides[axis] = stride
		stride *= s.Dimensions[axis]
	}
	return strides
}

// Broadcast returns the shape resulting from multidirectional (NumPy-style)
// broadcasting of the two operands. Both must share the same DType.
//
// Dimensions are aligned at the trailing axes; a dimension broadcasts against
// another when they are equal or either is 1.
func Broadcast(a, b Shape) (Shape, error) {
	if a.DType != b.DType {
		return Invalid(), errors.Errorf("cannot broadcast shapes %s and %s with different dtypes", a, b)
	}
	rank := max(a.Rank(), b.Rank())
	dims := make([]int, rank)
	for axis := 1; axis <= rank; axis++ {
		dimA, dimB := 1, 1
		if axis <= a.Rank() {
			dimA = a.Dimensions[a.Rank()-axis]
		}
		if axis <= b.Rank() {
			dimB = b.Dimensions[b.Rank()-axis]
		}
		switch {
		case dimA == dimB:
			dims[rank-axis] = dimA
		case dimA == 1:
			dims[rank-axis] = dimB
		case dimB == 1:
			dims[rank-axis] = dimA
		default:
			return Invalid(), errors.Errorf("shapes %s and %s are not broadcastable at axis -%d", a, b, axis)
		}
	}
	return Shape{DType: a.DType, Dimensions: dims}, nil
}
