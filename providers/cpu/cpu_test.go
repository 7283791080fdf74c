// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

package cpu

import (
	"testing"

	"github.com/OskarBun/onnxruntime/graph"
	"github.com/OskarBun/onnxruntime/providers"
	"github.com/OskarBun/onnxruntime/types/dtypes"
	"github.com/OskarBun/onnxruntime/types/shapes"
	"github.com/OskarBun/onnxruntime/values"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *Backend {
	provider := must.M1(New(""))
	t.Cleanup(func() { _ = provider.Close() })
	return provider.(*Backend)
}

// runNode builds a single-node graph, instantiates the node's kernel and runs it.
func runNode(t *testing.T, b *Backend, opType string, attrs map[string]*graph.Attribute,
	inputs ...*values.Tensor) []*values.Value {
	inArgs := make([]*graph.NodeArg, len(inputs))
	inValues := make([]*values.Value, len(inputs))
	for i, in := range inputs {
		inArgs[i] = graph.NewNodeArg(string(rune('a'+i)), in.Shape())
		inValues[i] = values.NewTensorValue(in)
	}
	g := graph.New("test", nil)
	node := must.M1(g.AddNode("n0", opType, "", inArgs,
		[]*graph.NodeArg{graph.NewUntypedNodeArg("out")}, attrs))
	info := must.M1(b.KernelRegistry().FindKernel(node, graph.DefaultOpsetVersion))
	kernel := must.M1(b.CreateKernel(info, node))
	kctx := providers.NewKernelContext(node, b.Allocator(), inValues)
	require.NoError(t, kernel.Compute(kctx))
	return kctx.Outputs()
}

func TestUnaryKernels(t *testing.T) {
	b := newTestBackend(t)
	in := values.FromFlatDataAndDimensions([]float32{-2, -0.5, 0, 3}, 4)

	out := runNode(t, b, "Relu", nil, in)[0].MustTensor()
	assert.Equal(t, []float32{0, 0, 0, 3}, values.MustFlatData[float32](out))

	out = runNode(t, b, "Neg", nil, in)[0].MustTensor()
	assert.Equal(t, []float32{2, 0.5, 0, -3}, values.MustFlatData[float32](out))

	out = runNode(t, b, "Abs", nil,
		values.FromFlatDataAndDimensions([]int64{-7, 7}, 2))[0].MustTensor()
	assert.Equal(t, []int64{7, 7}, values.MustFlatData[int64](out))

	out = runNode(t, b, "Sigmoid", nil,
		values.FromFlatDataAndDimensions([]float64{0}, 1))[0].MustTensor()
	assert.InDelta(t, 0.5, values.MustFlatData[float64](out)[0], 1e-9)
}

func TestUnaryKernelRejectsUnsupportedDType(t *testing.T) {
	b := newTestBackend(t)
	g := graph.New("test", nil)
	node := must.M1(g.AddNode("n0", "Exp", "",
		[]*graph.NodeArg{graph.NewUntypedNodeArg("a")},
		[]*graph.NodeArg{graph.NewUntypedNodeArg("out")}, nil))
	info := must.M1(b.KernelRegistry().FindKernel(node, graph.DefaultOpsetVersion))
	kernel := must.M1(b.CreateKernel(info, node))
	kctx := providers.NewKernelContext(node, b.Allocator(), []*values.Value{
		values.NewTensorValue(values.FromFlatDataAndDimensions([]int32{1}, 1)),
	})
	err := kernel.Compute(kctx)
	require.ErrorContains(t, err, "doesn't support dtype")
}

func TestBinaryKernelsBroadcast(t *testing.T) {
	b := newTestBackend(t)
	lhs := values.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	rhs := values.FromFlatDataAndDimensions([]float32{10, 20, 30}, 3)

	out := runNode(t, b, "Add", nil, lhs, rhs)[0].MustTensor()
	assert.Equal(t, []int{2, 3}, out.Shape().Dimensions)
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, values.MustFlatData[float32](out))

	out = runNode(t, b, "Mul", nil, lhs, values.FromScalar[float32](2))[0].MustTensor()
	assert.Equal(t, []float32{2, 4, 6, 8, 10, 12}, values.MustFlatData[float32](out))

	out = runNode(t, b, "Div", nil,
		values.FromFlatDataAndDimensions([]int64{7, 8}, 2),
		values.FromFlatDataAndDimensions([]int64{2, 4}, 2))[0].MustTensor()
	assert.Equal(t, []int64{3, 2}, values.MustFlatData[int64](out))
}

func TestSumKernel(t *testing.T) {
	b := newTestBackend(t)
	out := runNode(t, b, "Sum", nil,
		values.FromFlatDataAndDimensions([]float32{1, 2}, 2),
		values.FromFlatDataAndDimensions([]float32{10, 20}, 2),
		values.FromFlatDataAndDimensions([]float32{100, 200}, 2))[0].MustTensor()
	assert.Equal(t, []float32{111, 222}, values.MustFlatData[float32](out))

	// Single input degenerates to a copy.
	out = runNode(t, b, "Sum", nil,
		values.FromFlatDataAndDimensions([]float32{5, 6}, 2))[0].MustTensor()
	assert.Equal(t, []float32{5, 6}, values.MustFlatData[float32](out))
}

func TestMatMulKernel(t *testing.T) {
	b := newTestBackend(t)
	lhs := values.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	rhs := values.FromFlatDataAndDimensions([]float32{7, 8, 9, 10, 11, 12}, 3, 2)
	out := runNode(t, b, "MatMul", nil, lhs, rhs)[0].MustTensor()
	assert.Equal(t, []int{2, 2}, out.Shape().Dimensions)
	assert.Equal(t, []float32{58, 64, 139, 154}, values.MustFlatData[float32](out))

	out = runNode(t, b, "MatMul", nil,
		values.FromFlatDataAndDimensions([]float64{1, 2}, 1, 2),
		values.FromFlatDataAndDimensions([]float64{3, 4}, 2, 1))[0].MustTensor()
	assert.Equal(t, []float64{11}, values.MustFlatData[float64](out))
}

func TestCastKernel(t *testing.T) {
	b := newTestBackend(t)
	attrs := map[string]*graph.Attribute{"to": graph.IntAttr(int64(dtypes.Int32))}
	out := runNode(t, b, "Cast", attrs,
		values.FromFlatDataAndDimensions([]float32{1.5, -2.5, 3}, 3))[0].MustTensor()
	assert.Equal(t, dtypes.Int32, out.DType())
	assert.Equal(t, []int32{1, -2, 3}, values.MustFlatData[int32](out))

	attrs = map[string]*graph.Attribute{"to": graph.IntAttr(int64(dtypes.Bool))}
	out = runNode(t, b, "Cast", attrs,
		values.FromFlatDataAndDimensions([]int64{0, 7}, 2))[0].MustTensor()
	assert.Equal(t, []bool{false, true}, values.MustFlatData[bool](out))
}

func TestConcatKernel(t *testing.T) {
	b := newTestBackend(t)
	attrs := map[string]*graph.Attribute{"axis": graph.IntAttr(1)}
	out := runNode(t, b, "Concat", attrs,
		values.FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2),
		values.FromFlatDataAndDimensions([]float32{5, 6}, 2, 1))[0].MustTensor()
	assert.Equal(t, []int{2, 3}, out.Shape().Dimensions)
	assert.Equal(t, []float32{1, 2, 5, 3, 4, 6}, values.MustFlatData[float32](out))

	// Negative axis counts from the back.
	attrs = map[string]*graph.Attribute{"axis": graph.IntAttr(-2)}
	out = runNode(t, b, "Concat", attrs,
		values.FromFlatDataAndDimensions([]int32{1, 2}, 1, 2),
		values.FromFlatDataAndDimensions([]int32{3, 4}, 1, 2))[0].MustTensor()
	assert.Equal(t, []int{2, 2}, out.Shape().Dimensions)
	assert.Equal(t, []int32{1, 2, 3, 4}, values.MustFlatData[int32](out))
}

func TestDropoutKernel(t *testing.T) {
	b := newTestBackend(t)
	in := values.FromFlatDataAndDimensions([]float32{1, 2, 3}, 3)

	// With the optional mask output declared.
	g := graph.New("test", nil)
	node := must.M1(g.AddNode("d0", "Dropout", "",
		[]*graph.NodeArg{graph.NewNodeArg("a", in.Shape())},
		[]*graph.NodeArg{graph.NewUntypedNodeArg("out"), graph.NewUntypedNodeArg("mask")}, nil))
	info := must.M1(b.KernelRegistry().FindKernel(node, graph.DefaultOpsetVersion))
	kernel := must.M1(b.CreateKernel(info, node))
	kctx := providers.NewKernelContext(node, b.Allocator(),
		[]*values.Value{values.NewTensorValue(in)})
	require.NoError(t, kernel.Compute(kctx))
	assert.Equal(t, []float32{1, 2, 3}, values.MustFlatData[float32](kctx.Output(0).MustTensor()))
	assert.Equal(t, []bool{true, true, true}, values.MustFlatData[bool](kctx.Output(1).MustTensor()))

	// With the mask omitted.
	g2 := graph.New("test2", nil)
	node2 := must.M1(g2.AddNode("d0", "Dropout", "",
		[]*graph.NodeArg{graph.NewNodeArg("a", in.Shape())},
		[]*graph.NodeArg{graph.NewUntypedNodeArg("out"), graph.AbsentNodeArg()}, nil))
	kernel2 := must.M1(b.CreateKernel(info, node2))
	kctx2 := providers.NewKernelContext(node2, b.Allocator(),
		[]*values.Value{values.NewTensorValue(in)})
	require.NoError(t, kernel2.Compute(kctx2))
	assert.Equal(t, []float32{1, 2, 3}, values.MustFlatData[float32](kctx2.Output(0).MustTensor()))
	assert.Nil(t, kctx2.Output(1))
}

func TestFindKernelVersionPolicy(t *testing.T) {
	b := newTestBackend(t)
	g := graph.New("test", nil)
	node := must.M1(g.AddNode("n0", "Cast", "",
		[]*graph.NodeArg{graph.NewUntypedNodeArg("a")},
		[]*graph.NodeArg{graph.NewUntypedNodeArg("out")}, nil))

	_, err := b.KernelRegistry().FindKernel(node, 6)
	assert.NoError(t, err)
	_, err = b.KernelRegistry().FindKernel(node, 5)
	assert.ErrorIs(t, err, providers.ErrNoKernel)
}

func TestCloseStopsKernelCreationAndRecycling(t *testing.T) {
	provider := must.M1(New(""))
	b := provider.(*Backend)
	g := graph.New("test", nil)
	node := must.M1(g.AddNode("n0", "Identity", "",
		[]*graph.NodeArg{graph.NewUntypedNodeArg("a")},
		[]*graph.NodeArg{graph.NewUntypedNodeArg("out")}, nil))
	info := must.M1(b.KernelRegistry().FindKernel(node, graph.DefaultOpsetVersion))

	released := b.AllocateTensor(shapes.Make(dtypes.Float32, 8))
	require.NoError(t, provider.Close())

	_, err := b.CreateKernel(info, node)
	require.ErrorContains(t, err, "has been closed")

	// Buffers are no longer recycled after Close.
	b.ReleaseTensor(released)
	fresh := b.AllocateTensor(shapes.Make(dtypes.Float32, 8))
	assert.NotSame(t, &values.MustFlatData[float32](released)[0],
		&values.MustFlatData[float32](fresh)[0])
}

func TestAllocatorRecyclesBuffers(t *testing.T) {
	b := newTestBackend(t)
	shape := shapes.Make(dtypes.Float32, 16)
	first := b.AllocateTensor(shape)
	require.Equal(t, b.ID(), first.Owner())
	b.ReleaseTensor(first)
	second := b.AllocateTensor(shape)
	// Same (dtype, size) pool, the flat buffer should come back.
	assert.Same(t, &values.MustFlatData[float32](first)[0], &values.MustFlatData[float32](second)[0])
}
