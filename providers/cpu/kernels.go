// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

package cpu

import (
	"math"
	"reflect"

	"github.com/OskarBun/onnxruntime/graph"
	"github.com/OskarBun/onnxruntime/providers"
	"github.com/OskarBun/onnxruntime/types/dtypes"
	"github.com/OskarBun/onnxruntime/types/shapes"
	"github.com/OskarBun/onnxruntime/values"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// The arithmetic kernels cover Float32, Float64, Int32 and Int64; other numeric
// dtypes are reached through Cast. A nil entry in an op table means the dtype is
// not supported by that op.

// unaryOp holds the per-dtype element functions of one unary operator.
type unaryOp struct {
	f32 func(float32) float32
	f64 func(float64) float64
	i32 func(int32) int32
	i64 func(int64) int64
}

// binaryOp holds the per-dtype element functions of one binary operator.
type binaryOp struct {
	f32 func(a, b float32) float32
	f64 func(a, b float64) float64
	i32 func(a, b int32) int32
	i64 func(a, b int64) int64
}

func addFn[T dtypes.Number](a, b T) T { return a + b }
func subFn[T dtypes.Number](a, b T) T { return a - b }
func mulFn[T dtypes.Number](a, b T) T { return a * b }
func divFn[T dtypes.Number](a, b T) T { return a / b }

func negFn[T dtypes.Number](a T) T { return -a }
func absFn[T dtypes.Number](a T) T {
	if a < 0 {
		return -a
	}
	return a
}
func reluFn[T dtypes.Number](a T) T {
	if a < 0 {
		return 0
	}
	return a
}

func sigmoid64(a float64) float64 { return 1 / (1 + math.Exp(-a)) }

var unaryOps = map[string]*unaryOp{
	"Neg": {f32: negFn[float32], f64: negFn[float64], i32: negFn[int32], i64: negFn[int64]},
	"Abs": {f32: absFn[float32], f64: absFn[float64], i32: absFn[int32], i64: absFn[int64]},
	"Relu": {f32: reluFn[float32], f64: reluFn[float64]},
	"Exp": {
		f32: func(a float32) float32 { return float32(math.Exp(float64(a))) },
		f64: math.Exp,
	},
	"Sqrt": {
		f32: func(a float32) float32 { return float32(math.Sqrt(float64(a))) },
		f64: math.Sqrt,
	},
	"Sigmoid": {
		f32: func(a float32) float32 { return float32(sigmoid64(float64(a))) },
		f64: sigmoid64,
	},
	"Tanh": {
		f32: func(a float32) float32 { return float32(math.Tanh(float64(a))) },
		f64: math.Tanh,
	},
}

var binaryOps = map[string]*binaryOp{
	"Add": {f32: addFn[float32], f64: addFn[float64], i32: addFn[int32], i64: addFn[int64]},
	"Sub": {f32: subFn[float32], f64: subFn[float64], i32: subFn[int32], i64: subFn[int64]},
	"Mul": {f32: mulFn[float32], f64: mulFn[float64], i32: mulFn[int32], i64: mulFn[int64]},
	"Div": {f32: divFn[float32], f64: divFn[float64], i32: divFn[int32], i64: divFn[int64]},
}

// broadcastIndexer maps a flat index in `out` to the corresponding flat index in
// `in` under multidirectional broadcasting. It returns nil when the mapping is the
// identity (same dimensions), letting the hot loop skip the index arithmetic.
func broadcastIndexer(in, out shapes.Shape) func(int) int {
	if in.EqualDimensions(out) {
		return nil
	}
	rank := out.Rank()
	outStrides := out.Strides()
	inStrides := make([]int, rank)
	inAllStrides := in.Strides()
	for axis := 0; axis < rank; axis++ {
		inAxis := axis - (rank - in.Rank())
		if inAxis < 0 || in.Dimensions[inAxis] == 1 {
			inStrides[axis] = 0
		} else {
			inStrides[axis] = inAllStrides[inAxis]
		}
	}
	return func(flatIdx int) int {
		inIdx := 0
		rem := flatIdx
		for axis := 0; axis < rank; axis++ {
			coord := rem / outStrides[axis]
			rem %= outStrides[axis]
			inIdx += coord * inStrides[axis]
		}
		return inIdx
	}
}

func execUnary[T dtypes.Supported](fn func(T) T, in, out *values.Tensor) {
	inFlat := values.MustFlatData[T](in)
	outFlat := values.MustFlatData[T](out)
	for i, v := range inFlat {
		outFlat[i] = fn(v)
	}
}

func execBinary[T dtypes.Supported](fn func(a, b T) T, lhs, rhs, out *values.Tensor) {
	lhsFlat := values.MustFlatData[T](lhs)
	rhsFlat := values.MustFlatData[T](rhs)
	outFlat := values.MustFlatData[T](out)
	lhsIdx := broadcastIndexer(lhs.Shape(), out.Shape())
	rhsIdx := broadcastIndexer(rhs.Shape(), out.Shape())
	for i := range outFlat {
		li, ri := i, i
		if lhsIdx != nil {
			li = lhsIdx(i)
		}
		if rhsIdx != nil {
			ri = rhsIdx(i)
		}
		outFlat[i] = fn(lhsFlat[li], rhsFlat[ri])
	}
}

// identityKernel copies its input into a provider-owned buffer, for any dtype.
type identityKernel struct{}

func newIdentityKernel(_ *providers.KernelCreateInfo, _ *graph.Node) (providers.Kernel, error) {
	return identityKernel{}, nil
}

func (identityKernel) Compute(kctx *providers.KernelContext) error {
	in := kctx.Input(0).MustTensor()
	out := kctx.Allocator().AllocateTensor(in.Shape())
	reflect.Copy(reflect.ValueOf(out.Flat()), reflect.ValueOf(in.Flat()))
	kctx.SetOutput(0, values.NewTensorValue(out))
	return nil
}

type unaryKernel struct {
	op *unaryOp
}

func newUnaryKernel(op *unaryOp) providers.KernelBuilder {
	return func(_ *providers.KernelCreateInfo, _ *graph.Node) (providers.Kernel, error) {
		return unaryKernel{op: op}, nil
	}
}

func (k unaryKernel) Compute(kctx *providers.KernelContext) error {
	in := kctx.Input(0).MustTensor()
	out := kctx.Allocator().AllocateTensor(in.Shape())
	op := k.op
	switch in.DType() {
	case dtypes.Float32:
		if op.f32 == nil {
			break
		}
		execUnary(op.f32, in, out)
		kctx.SetOutput(0, values.NewTensorValue(out))
		return nil
	case dtypes.Float64:
		if op.f64 == nil {
			break
		}
		execUnary(op.f64, in, out)
		kctx.SetOutput(0, values.NewTensorValue(out))
		return nil
	case dtypes.Int32:
		if op.i32 == nil {
			break
		}
		execUnary(op.i32, in, out)
		kctx.SetOutput(0, values.NewTensorValue(out))
		return nil
	case dtypes.Int64:
		if op.i64 == nil {
			break
		}
		execUnary(op.i64, in, out)
		kctx.SetOutput(0, values.NewTensorValue(out))
		return nil
	}
	kctx.Allocator().ReleaseTensor(out)
	return errors.Errorf("cpu kernel %s doesn't support dtype %s",
		kctx.Node().OpType(), in.DType())
}

type binaryKernel struct {
	op *binaryOp
}

func newBinaryKernel(op *binaryOp) providers.KernelBuilder {
	return func(_ *providers.KernelCreateInfo, _ *graph.Node) (providers.Kernel, error) {
		return binaryKernel{op: op}, nil
	}
}

func (k binaryKernel) Compute(kctx *providers.KernelContext) error {
	lhs := kctx.Input(0).MustTensor()
	rhs := kctx.Input(1).MustTensor()
	outShape, err := shapes.Broadcast(lhs.Shape(), rhs.Shape())
	if err != nil {
		return err
	}
	out := kctx.Allocator().AllocateTensor(outShape)
	op := k.op
	switch outShape.DType {
	case dtypes.Float32:
		if op.f32 == nil {
			break
		}
		execBinary(op.f32, lhs, rhs, out)
		kctx.SetOutput(0, values.NewTensorValue(out))
		return nil
	case dtypes.Float64:
		if op.f64 == nil {
			break
		}
		execBinary(op.f64, lhs, rhs, out)
		kctx.SetOutput(0, values.NewTensorValue(out))
		return nil
	case dtypes.Int32:
		if op.i32 == nil {
			break
		}
		execBinary(op.i32, lhs, rhs, out)
		kctx.SetOutput(0, values.NewTensorValue(out))
		return nil
	case dtypes.Int64:
		if op.i64 == nil {
			break
		}
		execBinary(op.i64, lhs, rhs, out)
		kctx.SetOutput(0, values.NewTensorValue(out))
		return nil
	}
	kctx.Allocator().ReleaseTensor(out)
	return errors.Errorf("cpu kernel %s doesn't support dtype %s",
		kctx.Node().OpType(), outShape.DType)
}

// sumKernel folds Add over its variadic inputs with broadcasting.
type sumKernel struct{}

func newSumKernel(_ *providers.KernelCreateInfo, _ *graph.Node) (providers.Kernel, error) {
	return sumKernel{}, nil
}

func (sumKernel) Compute(kctx *providers.KernelContext) error {
	acc := kctx.Input(0)
	owned := false // whether acc is an intermediate this kernel allocated
	add := binaryKernel{op: binaryOps["Add"]}
	for i := 1; i < kctx.NumInputs(); i++ {
		step := providers.NewKernelContext(kctx.Node(), kctx.Allocator(),
			[]*values.Value{acc, kctx.Input(i)})
		if err := add.Compute(step); err != nil {
			return err
		}
		if owned {
			kctx.Allocator().ReleaseTensor(acc.MustTensor())
		}
		acc = step.Output(0)
		owned = true
	}
	if !owned {
		// Single input: Sum degenerates to Identity.
		step := providers.NewKernelContext(kctx.Node(), kctx.Allocator(), []*values.Value{acc})
		if err := (identityKernel{}).Compute(step); err != nil {
			return err
		}
		acc = step.Output(0)
	}
	kctx.SetOutput(0, acc)
	return nil
}

// dropoutKernel runs in inference mode: a plain passthrough. The optional mask
// output, when declared, is all true (no element was dropped).
type dropoutKernel struct{}

func newDropoutKernel(_ *providers.KernelCreateInfo, _ *graph.Node) (providers.Kernel, error) {
	return dropoutKernel{}, nil
}

func (dropoutKernel) Compute(kctx *providers.KernelContext) error {
	in := kctx.Input(0).MustTensor()
	out := kctx.Allocator().AllocateTensor(in.Shape())
	reflect.Copy(reflect.ValueOf(out.Flat()), reflect.ValueOf(in.Flat()))
	kctx.SetOutput(0, values.NewTensorValue(out))

	if kctx.NumOutputs() > 1 && kctx.Node().Outputs()[1].Exists() {
		mask := kctx.Allocator().AllocateTensor(shapes.Make(dtypes.Bool, in.Shape().Dimensions...))
		maskFlat := values.MustFlatData[bool](mask)
		for i := range maskFlat {
			maskFlat[i] = true
		}
		kctx.SetOutput(1, values.NewTensorValue(mask))
	}
	return nil
}

type matMulKernel struct{}

func newMatMulKernel(_ *providers.KernelCreateInfo, _ *graph.Node) (providers.Kernel, error) {
	return matMulKernel{}, nil
}

func execMatMul[T dtypes.GoFloat](lhs, rhs, out *values.Tensor, m, k, n int) {
	lhsFlat := values.MustFlatData[T](lhs)
	rhsFlat := values.MustFlatData[T](rhs)
	outFlat := values.MustFlatData[T](out)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var acc T
			for l := 0; l < k; l++ {
				acc += lhsFlat[i*k+l] * rhsFlat[l*n+j]
			}
			outFlat[i*n+j] = acc
		}
	}
}

func (matMulKernel) Compute(kctx *providers.KernelContext) error {
	lhs := kctx.Input(0).MustTensor()
	rhs := kctx.Input(1).MustTensor()
	if lhs.Rank() != 2 || rhs.Rank() != 2 || lhs.Shape().Dimensions[1] != rhs.Shape().Dimensions[0] {
		return errors.Errorf("MatMul operands have incompatible shapes %s x %s", lhs.Shape(), rhs.Shape())
	}
	m, k := lhs.Shape().Dimensions[0], lhs.Shape().Dimensions[1]
	n := rhs.Shape().Dimensions[1]
	out := kctx.Allocator().AllocateTensor(shapes.Make(lhs.DType(), m, n))
	switch lhs.DType() {
	case dtypes.Float32:
		execMatMul[float32](lhs, rhs, out, m, k, n)
	case dtypes.Float64:
		execMatMul[float64](lhs, rhs, out, m, k, n)
	default:
		kctx.Allocator().ReleaseTensor(out)
		return errors.Errorf("cpu kernel MatMul doesn't support dtype %s", lhs.DType())
	}
	kctx.SetOutput(0, values.NewTensorValue(out))
	return nil
}

// castKernel converts between the numeric dtypes (including Float16) and Bool,
// going through a float64 intermediate.
//
// TODO: direct int64→int64-family paths, the float64 intermediate rounds integers
// above 2^53.
type castKernel struct {
	to dtypes.DType
}

func newCastKernel(_ *providers.KernelCreateInfo, node *graph.Node) (providers.Kernel, error) {
	to := dtypes.DType(node.IntAttrOr("to", int64(dtypes.InvalidDType)))
	if !to.IsValid() || to == dtypes.String {
		return nil, errors.Errorf("Cast node %q requires a valid numeric `to` attribute", node.Name())
	}
	return castKernel{to: to}, nil
}

func toFloat64s(t *values.Tensor) ([]float64, error) {
	out := make([]float64, t.Size())
	switch flat := t.Flat().(type) {
	case []float64:
		copy(out, flat)
	case []float32:
		for i, v := range flat {
			out[i] = float64(v)
		}
	case []float16.Float16:
		for i, v := range flat {
			out[i] = float64(v.Float32())
		}
	case []int8:
		for i, v := range flat {
			out[i] = float64(v)
		}
	case []int16:
		for i, v := range flat {
			out[i] = float64(v)
		}
	case []int32:
		for i, v := range flat {
			out[i] = float64(v)
		}
	case []int64:
		for i, v := range flat {
			out[i] = float64(v)
		}
	case []uint8:
		for i, v := range flat {
			out[i] = float64(v)
		}
	case []uint16:
		for i, v := range flat {
			out[i] = float64(v)
		}
	case []uint32:
		for i, v := range flat {
			out[i] = float64(v)
		}
	case []uint64:
		for i, v := range flat {
			out[i] = float64(v)
		}
	case []bool:
		for i, v := range flat {
			if v {
				out[i] = 1
			}
		}
	default:
		return nil, errors.Errorf("Cast doesn't support source dtype %s", t.DType())
	}
	return out, nil
}

func fillFromFloat64s(t *values.Tensor, data []float64) error {
	switch flat := t.Flat().(type) {
	case []float64:
		copy(flat, data)
	case []float32:
		for i, v := range data {
			flat[i] = float32(v)
		}
	case []float16.Float16:
		for i, v := range data {
			flat[i] = float16.Fromfloat32(float32(v))
		}
	case []int8:
		for i, v := range data {
			flat[i] = int8(v)
		}
	case []int16:
		for i, v := range data {
			flat[i] = int16(v)
		}
	case []int32:
		for i, v := range data {
			flat[i] = int32(v)
		}
	case []int64:
		for i, v := range data {
			flat[i] = int64(v)
		}
	case []uint8:
		for i, v := range data {
			flat[i] = uint8(v)
		}
	case []uint16:
		for i, v := range data {
			flat[i] = uint16(v)
		}
	case []uint32:
		for i, v := range data {
			flat[i] = uint32(v)
		}
	case []uint64:
		for i, v := range data {
			flat[i] = uint64(v)
		}
	case []bool:
		for i, v := range data {
			flat[i] = v != 0
		}
	default:
		return errors.Errorf("Cast doesn't support target dtype %s", t.DType())
	}
	return nil
}

func (k castKernel) Compute(kctx *providers.KernelContext) error {
	in := kctx.Input(0).MustTensor()
	intermediate, err := toFloat64s(in)
	if err != nil {
		return err
	}
	out := kctx.Allocator().AllocateTensor(shapes.Make(k.to, in.Shape().Dimensions...))
	if err := fillFromFloat64s(out, intermediate); err != nil {
		kctx.Allocator().ReleaseTensor(out)
		return err
	}
	kctx.SetOutput(0, values.NewTensorValue(out))
	return nil
}

// concatKernel concatenates its variadic inputs along the `axis` attribute.
// It is dtype-agnostic: blocks are copied with reflect.
type concatKernel struct {
	axis int
}

func newConcatKernel(_ *providers.KernelCreateInfo, node *graph.Node) (providers.Kernel, error) {
	return concatKernel{axis: int(node.IntAttrOr("axis", 0))}, nil
}

func (k concatKernel) Compute(kctx *providers.KernelContext) error {
	first := kctx.Input(0).MustTensor()
	axis := k.axis
	if axis < 0 {
		axis += first.Rank()
	}
	if axis < 0 || axis >= first.Rank() {
		return errors.Errorf("Concat axis %d out of range for %s", k.axis, first.Shape())
	}

	outDims := append([]int{}, first.Shape().Dimensions...)
	outDims[axis] = 0
	inner := 1
	for d := axis + 1; d < first.Rank(); d++ {
		inner *= first.Shape().Dimensions[d]
	}
	outer := 1
	for d := 0; d < axis; d++ {
		outer *= first.Shape().Dimensions[d]
	}
	for i := 0; i < kctx.NumInputs(); i++ {
		outDims[axis] += kctx.Input(i).MustTensor().Shape().Dimensions[axis]
	}
	out := kctx.Allocator().AllocateTensor(shapes.Make(first.DType(), outDims...))
	outFlat := reflect.ValueOf(out.Flat())
	outRow := outDims[axis] * inner

	colOffset := 0
	for i := 0; i < kctx.NumInputs(); i++ {
		in := kctx.Input(i).MustTensor()
		inFlat := reflect.ValueOf(in.Flat())
		inRow := in.Shape().Dimensions[axis] * inner
		for o := 0; o < outer; o++ {
			src := inFlat.Slice(o*inRow, (o+1)*inRow)
			dst := outFlat.Slice(o*outRow+colOffset, o*outRow+colOffset+inRow)
			reflect.Copy(dst, src)
		}
		colOffset += inRow
	}
	kctx.SetOutput(0, values.NewTensorValue(out))
	return nil
}
