// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

// Package dtypes includes the DType enum for all element types a tensor may carry.
//
// The enum values follow the ONNX TensorProto data-type numbering, so serialized models
// keep their meaning. It includes converters to/from Go native types (and reflect.Type)
// and constraint interfaces to be used with generics (Supported, Number, GoFloat).
//
// Float16 is backed by github.com/x448/float16.
package dtypes

import (
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// panicf panics with the formatted description.
//
// It is only used for "bugs in the code" -- when parameters don't follow the specifications.
func panicf(format string, args ...any) {
	panic(errors.Errorf(format, args...))
}

// DType is an enum of the data type of the unit element of a tensor.
//
// The values are a 1:1 mapping of the ONNX TensorProto.DataType numbering.
type DType int32

const (
	// InvalidDType is the zero value, invalid type that serves as a default.
	InvalidDType DType = 0

	// Float32 single-precision float.
	Float32 DType = 1

	// Uint8 unsigned 8 bits integer.
	Uint8 DType = 2

	// Int8 signed 8 bits integer.
	Int8 DType = 3

	// Uint16 unsigned 16 bits integer.
	Uint16 DType = 4

	// Int16 signed 16 bits integer.
	Int16 DType = 5

	// Int32 signed 32 bits integer.
	Int32 DType = 6

	// Int64 signed 64 bits integer. Usually mapped from/to a Go int.
	Int64 DType = 7

	// String of bytes; tensors of strings are stored as flat []string.
	String DType = 8

	// Bool two-state boolean.
	Bool DType = 9

	// Float16 IEEE 754 half-precision float, backed by github.com/x448/float16.
	Float16 DType = 10

	// Float64 double-precision float.
	Float64 DType = 11

	// Uint32 unsigned 32 bits integer -- after Float64 in the ONNX numbering.
	Uint32 DType = 12

	// Uint64 unsigned 64 bits integer.
	Uint64 DType = 13
)

// Aliases, from the short names used by ONNX and XLA alike.
const (
	F16 = Float16
	F32 = Float32
	F64 = Float64
	S8  = Int8
	S16 = Int16
	S32 = Int32
	S64 = Int64
	U8  = Uint8
	U16 = Uint16
	U32 = Uint32
	U64 = Uint64
)

// MapOfNames to their dtypes. It includes also aliases to the various dtypes.
// It is also later initialized to include the lower-case version of the names.
var MapOfNames = map[string]DType{
	"InvalidDType": InvalidDType,
	"Bool":         Bool,
	"Int8":         Int8,
	"S8":           Int8,
	"Int16":        Int16,
	"S16":          Int16,
	"Int32":        Int32,
	"S32":          Int32,
	"Int64":        Int64,
	"S64":          Int64,
	"Uint8":        Uint8,
	"U8":           Uint8,
	"Uint16":       Uint16,
	"U16":          Uint16,
	"Uint32":       Uint32,
	"U32":          Uint32,
	"Uint64":       Uint64,
	"U64":          Uint64,
	"Float16":      Float16,
	"F16":          Float16,
	"Float32":      Float32,
	"F32":          Float32,
	"Float64":      Float64,
	"F64":          Float64,
	"String":       String,
}

func init() {
	// Add a mapping to the lower-case version of the names.
	keys := slices.Collect(maps.Keys(MapOfNames))
	for _, key := range keys {
		lowerKey := strings.ToLower(key)
		if lowerKey == key {
			continue
		}
		if _, found := MapOfNames[lowerKey]; found {
			continue
		}
		MapOfNames[lowerKey] = MapOfNames[key]
	}
}

// FromName returns the DType for the given name (canonical, alias or lower-case
// version), or InvalidDType if the name is unknown.
func FromName(name string) DType {
	dtype, found := MapOfNames[name]
	if !found {
		return InvalidDType
	}
	return dtype
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	switch dtype {
	case Bool:
		return "Bool"
	case Int8:
		return "Int8"
	case Int16:
		return "Int16"
	case Int32:
		return "Int32"
	case Int64:
		return "Int64"
	case Uint8:
		return "Uint8"
	case Uint16:
		return "Uint16"
	case Uint32:
		return "Uint32"
	case Uint64:
		return "Uint64"
	case Float16:
		return "Float16"
	case Float32:
		return "Float32"
	case Float64:
		return "Float64"
	case String:
		return "String"
	default:
		return "InvalidDType"
	}
}

// IsValid reports whether dtype is one of the defined data types.
func (dtype DType) IsValid() bool {
	return dtype > InvalidDType && dtype <= Uint64
}

// IsFloat returns whether dtype is a float type, including Float16.
func (dtype DType) IsFloat() bool {
	return dtype == Float16 || dtype == Float32 || dtype == Float64
}

// IsInt returns whether dtype is one of the signed or unsigned integer types.
func (dtype DType) IsInt() bool {
	switch dtype {
	case Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}

// IsNumeric returns whether dtype is a number type -- everything but Bool, String
// and InvalidDType.
func (dtype DType) IsNumeric() bool {
	return dtype.IsFloat() || dtype.IsInt()
}

// Supported lists the Go types that can be converted to/from a DType.
type Supported interface {
	bool | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 |
		float16.Float16 | float32 | float64 | string
}

// Number lists the plain Go number types supported -- Float16 not included, since
// it is not a native Go type.
type Number interface {
	constraints.Integer | constraints.Float
}

// GoFloat lists the native Go float types. An exact union (no tilde terms), so
// GoFloat instantiations also satisfy Supported.
type GoFloat interface {
	float32 | float64
}

// FromGenericsType returns the DType enum for the given Go type.
func FromGenericsType[T Supported]() DType {
	var t T
	return FromGoType(reflect.TypeOf(t))
}

// Pre-generated constant reflect.Type for convenience.
var float16Type = reflect.TypeOf(float16.Float16(0))

// FromGoType returns the DType for the given "reflect.Type", or InvalidDType for
// unsupported types.
func FromGoType(t reflect.Type) DType {
	if t == float16Type {
		return Float16
	}
	switch t.Kind() {
	case reflect.Int64:
		return Int64
	case reflect.Int:
		// Only 64-bit platforms are supported.
		return Int64
	case reflect.Int32:
		return Int32
	case reflect.Int16:
		return Int16
	case reflect.Int8:
		return Int8
	case reflect.Uint64:
		return Uint64
	case reflect.Uint32:
		return Uint32
	case reflect.Uint16:
		return Uint16
	case reflect.Uint8:
		return Uint8
	case reflect.Bool:
		return Bool
	case reflect.Float32:
		return Float32
	case reflect.Float64:
		return Float64
	case reflect.String:
		return String
	default:
		return InvalidDType
	}
}

// FromAny introspects the underlying type of any and returns the corresponding DType.
// Non-scalar types, or unsupported types return an InvalidDType.
func FromAny(value any) DType {
	return FromGoType(reflect.TypeOf(value))
}

// GoType returns the Go `reflect.Type` corresponding to the tensor DType.
// It panics for invalid DType values.
func (dtype DType) GoType() reflect.Type {
	switch dtype {
	case Int64:
		return reflect.TypeOf(int64(0))
	case Int32:
		return reflect.TypeOf(int32(0))
	case Int16:
		return reflect.TypeOf(int16(0))
	case Int8:
		return reflect.TypeOf(int8(0))
	case Uint64:
		return reflect.TypeOf(uint64(0))
	case Uint32:
		return reflect.TypeOf(uint32(0))
	case Uint16:
		return reflect.TypeOf(uint16(0))
	case Uint8:
		return reflect.TypeOf(uint8(0))
	case Bool:
		return reflect.TypeOf(true)
	case Float16:
		return float16Type
	case Float32:
		return reflect.TypeOf(float32(0))
	case Float64:
		return reflect.TypeOf(float64(0))
	case String:
		return reflect.TypeOf("")
	default:
		panicf("unknown dtype %q (%d) in DType.GoType", dtype, dtype)
		panic(nil)
	}
}

// Size returns the number of bytes for the given DType. For String it returns the
// size of the Go string header, not of the data it points to.
func (dtype DType) Size() int {
	return int(dtype.GoType().Size())
}

// Memory returns the number of bytes for the given DType.
// It's an alias to Size, converted to uintptr.
func (dtype DType) Memory() uintptr {
	return uintptr(dtype.Size())
}
