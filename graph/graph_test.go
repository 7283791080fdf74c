// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"testing"

	"github.com/OskarBun/onnxruntime/types/dtypes"
	"github.com/OskarBun/onnxruntime/types/shapes"
	"github.com/OskarBun/onnxruntime/values"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typedArg(name string, dims ...int) *NodeArg {
	return NewNodeArg(name, shapes.Make(dtypes.Float32, dims...))
}

func TestAddNodeDuplicateName(t *testing.T) {
	g := New("g", nil)
	must.M1(g.AddNode("n", "Relu", "", []*NodeArg{typedArg("a", 2)},
		[]*NodeArg{NewUntypedNodeArg("b")}, nil))
	_, err := g.AddNode("n", "Relu", "", []*NodeArg{NewUntypedNodeArg("b")},
		[]*NodeArg{NewUntypedNodeArg("c")}, nil)
	require.ErrorIs(t, err, ErrStructure)
	require.ErrorContains(t, err, "duplicate node name")
}

func TestAddNodeConflictingDeclarations(t *testing.T) {
	g := New("g", nil)
	must.M1(g.AddNode("n0", "Relu", "", []*NodeArg{typedArg("a", 2)},
		[]*NodeArg{NewUntypedNodeArg("b")}, nil))
	// Same edge name, different declared shape.
	_, err := g.AddNode("n1", "Relu", "", []*NodeArg{typedArg("a", 3)},
		[]*NodeArg{NewUntypedNodeArg("c")}, nil)
	require.ErrorIs(t, err, ErrTypeResolution)
}

func TestResolveDuplicateProducer(t *testing.T) {
	g := New("g", nil)
	must.M1(g.AddNode("n0", "Relu", "", []*NodeArg{typedArg("a", 2)},
		[]*NodeArg{NewUntypedNodeArg("b")}, nil))
	must.M1(g.AddNode("n1", "Neg", "", []*NodeArg{typedArg("a", 2)},
		[]*NodeArg{NewUntypedNodeArg("b")}, nil))
	err := g.Resolve()
	require.ErrorIs(t, err, ErrStructure)
	require.ErrorContains(t, err, `value "b" is produced by both`)
}

func TestResolveDanglingInput(t *testing.T) {
	g := New("g", nil)
	// "mystery" has no producer, no initializer and no declared type.
	must.M1(g.AddNode("n0", "Relu", "", []*NodeArg{NewUntypedNodeArg("mystery")},
		[]*NodeArg{NewUntypedNodeArg("b")}, nil))
	err := g.Resolve()
	require.ErrorIs(t, err, ErrStructure)
	require.ErrorContains(t, err, "mystery")
}

func TestResolveArity(t *testing.T) {
	g := New("g", nil)
	must.M1(g.AddNode("lonely", "Add", "", []*NodeArg{typedArg("a", 2)},
		[]*NodeArg{NewUntypedNodeArg("b")}, nil))
	err := g.Resolve()
	require.ErrorIs(t, err, ErrStructure)
	// The error names the offending node and the expected bounds.
	require.ErrorContains(t, err, `node "lonely"`)
	require.ErrorContains(t, err, "has 1 input(s), operator expects between 2 and 2")
}

func TestResolveUnknownOperator(t *testing.T) {
	g := New("g", nil)
	must.M1(g.AddNode("n0", "Frobnicate", "", []*NodeArg{typedArg("a", 2)},
		[]*NodeArg{NewUntypedNodeArg("b")}, nil))
	err := g.Resolve()
	require.ErrorIs(t, err, ErrStructure)
	require.ErrorContains(t, err, "no schema registered")
}

func TestResolveCycle(t *testing.T) {
	g := New("g", nil)
	must.M1(g.AddNode("n0", "Add", "",
		[]*NodeArg{typedArg("x", 2), NewUntypedNodeArg("b")},
		[]*NodeArg{NewUntypedNodeArg("a")}, nil))
	must.M1(g.AddNode("n1", "Neg", "", []*NodeArg{NewUntypedNodeArg("a")},
		[]*NodeArg{NewUntypedNodeArg("b")}, nil))
	err := g.Resolve()
	require.ErrorIs(t, err, ErrStructure)
	require.ErrorContains(t, err, "cycle")
}

func TestResolveTopologicalOrderIsDeterministic(t *testing.T) {
	// Nodes added in reverse dependency order; the sort must schedule producers
	// first and break ties by insertion order.
	g := New("g", nil)
	must.M1(g.AddNode("last", "Add", "",
		[]*NodeArg{NewUntypedNodeArg("r0"), NewUntypedNodeArg("r1")},
		[]*NodeArg{NewUntypedNodeArg("out")}, nil))
	must.M1(g.AddNode("relu1", "Relu", "", []*NodeArg{typedArg("x1", 2)},
		[]*NodeArg{NewUntypedNodeArg("r1")}, nil))
	must.M1(g.AddNode("relu0", "Relu", "", []*NodeArg{typedArg("x0", 2)},
		[]*NodeArg{NewUntypedNodeArg("r0")}, nil))
	require.NoError(t, g.Resolve())

	sorted := must.M1(g.SortedNodes())
	names := make([]string, len(sorted))
	for i, node := range sorted {
		names[i] = node.Name()
	}
	assert.Equal(t, []string{"relu1", "relu0", "last"}, names)
}

func TestResolveShapePropagation(t *testing.T) {
	g := New("g", nil)
	must.M1(g.AddNode("add0", "Add", "",
		[]*NodeArg{typedArg("x", 2, 3), typedArg("y", 3)},
		[]*NodeArg{NewUntypedNodeArg("s")}, nil))
	must.M1(g.AddNode("mm0", "MatMul", "",
		[]*NodeArg{NewUntypedNodeArg("s"), typedArg("w", 3, 4)},
		[]*NodeArg{NewUntypedNodeArg("out")}, nil))
	require.NoError(t, g.Resolve())

	// Broadcast (2,3)+(3) -> (2,3), then (2,3)x(3,4) -> (2,4).
	assert.Equal(t, []int{2, 3}, g.NodeArgByName("s").Shape().Dimensions)
	assert.Equal(t, []int{2, 4}, g.NodeArgByName("out").Shape().Dimensions)

	inputs := must.M1(g.Inputs())
	inputNames := make([]string, len(inputs))
	for i, arg := range inputs {
		inputNames[i] = arg.Name()
	}
	assert.Equal(t, []string{"x", "y", "w"}, inputNames)

	outputs := must.M1(g.Outputs())
	require.Len(t, outputs, 1)
	assert.Equal(t, "out", outputs[0].Name())
	assert.Equal(t, "mm0", g.Producer("out").Name())
}

func TestResolveDeclaredOutputMismatch(t *testing.T) {
	g := New("g", nil)
	must.M1(g.AddNode("relu0", "Relu", "", []*NodeArg{typedArg("x", 2)},
		[]*NodeArg{typedArg("y", 3)}, nil))
	err := g.Resolve()
	require.ErrorIs(t, err, ErrTypeResolution)
	require.ErrorContains(t, err, `output "y"`)
}

func TestResolveFailureLeavesGraphUnresolved(t *testing.T) {
	g := New("g", nil)
	must.M1(g.AddNode("mm0", "MatMul", "",
		[]*NodeArg{typedArg("a", 2, 3), typedArg("b", 5, 2)},
		[]*NodeArg{NewUntypedNodeArg("y")}, nil))
	require.Error(t, g.Resolve())

	assert.False(t, g.IsResolved())
	_, err := g.SortedNodes()
	require.ErrorIs(t, err, ErrNotResolved)
	// The failed inference must not have leaked a shape onto the output.
	assert.False(t, g.NodeArgByName("y").TypeKnown())
}

func TestResolveInitializerTyping(t *testing.T) {
	g := New("g", nil)
	must.M1(g.AddNode("add0", "Add", "",
		[]*NodeArg{typedArg("x", 2), NewUntypedNodeArg("bias")},
		[]*NodeArg{NewUntypedNodeArg("y")}, nil))
	g.SetInitializer("bias", values.NewTensorValue(
		values.FromFlatDataAndDimensions([]float32{1, 2}, 2)))
	require.NoError(t, g.Resolve())

	// Initializer-backed edges take their type from the constant and are not
	// graph inputs.
	assert.Equal(t, []int{2}, g.NodeArgByName("bias").Shape().Dimensions)
	inputs := must.M1(g.Inputs())
	require.Len(t, inputs, 1)
	assert.Equal(t, "x", inputs[0].Name())
}

func TestResolveInitializerShapeConflict(t *testing.T) {
	g := New("g", nil)
	must.M1(g.AddNode("add0", "Add", "",
		[]*NodeArg{typedArg("x", 2), typedArg("bias", 3)},
		[]*NodeArg{NewUntypedNodeArg("y")}, nil))
	g.SetInitializer("bias", values.NewTensorValue(
		values.FromFlatDataAndDimensions([]float32{1, 2}, 2)))
	err := g.Resolve()
	require.ErrorIs(t, err, ErrTypeResolution)
}

func TestMarkOutputValidation(t *testing.T) {
	g := New("g", nil)
	must.M1(g.AddNode("relu0", "Relu", "", []*NodeArg{typedArg("x", 2)},
		[]*NodeArg{NewUntypedNodeArg("y")}, nil))
	g.MarkOutput("nope")
	err := g.Resolve()
	require.ErrorIs(t, err, ErrStructure)
	require.ErrorContains(t, err, `"nope"`)
}

func TestMutationInvalidatesResolve(t *testing.T) {
	g := New("g", nil)
	must.M1(g.AddNode("relu0", "Relu", "", []*NodeArg{typedArg("x", 2)},
		[]*NodeArg{NewUntypedNodeArg("y")}, nil))
	require.NoError(t, g.Resolve())
	require.True(t, g.IsResolved())

	must.M1(g.AddNode("neg0", "Neg", "", []*NodeArg{NewUntypedNodeArg("y")},
		[]*NodeArg{NewUntypedNodeArg("z")}, nil))
	assert.False(t, g.IsResolved())
	require.NoError(t, g.Resolve())
	sorted := must.M1(g.SortedNodes())
	assert.Len(t, sorted, 2)
	outputs := must.M1(g.Outputs())
	require.Len(t, outputs, 1)
	assert.Equal(t, "z", outputs[0].Name())
}

func TestOpsetVersionPinning(t *testing.T) {
	g := New("g", map[string]int{"": 6})
	assert.Equal(t, 6, g.OpsetVersion(""))
	assert.Equal(t, DefaultOpsetVersion, g.OpsetVersion("custom"))

	// Add is only registered since opset 7: resolving under 6 must fail.
	must.M1(g.AddNode("add0", "Add", "",
		[]*NodeArg{typedArg("a", 2), typedArg("b", 2)},
		[]*NodeArg{NewUntypedNodeArg("y")}, nil))
	err := g.Resolve()
	require.ErrorIs(t, err, ErrStructure)
	require.ErrorContains(t, err, "no schema registered")
}
