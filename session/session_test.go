// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

package session_test

import (
	"testing"

	"github.com/OskarBun/onnxruntime/graph"
	"github.com/OskarBun/onnxruntime/providers"
	"github.com/OskarBun/onnxruntime/session"
	"github.com/OskarBun/onnxruntime/types/dtypes"
	"github.com/OskarBun/onnxruntime/types/shapes"
	"github.com/OskarBun/onnxruntime/values"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/OskarBun/onnxruntime/providers/cpu"
	_ "github.com/OskarBun/onnxruntime/providers/notimplemented"
	_ "github.com/OskarBun/onnxruntime/providers/parallel"
)

// addGraph builds x + bias -> y, with bias backed by an initializer.
func addGraph(t *testing.T) *graph.Graph {
	g := graph.New("add_model", nil)
	x := graph.NewNodeArg("x", shapes.Make(dtypes.Float32, 2))
	bias := graph.NewUntypedNodeArg("bias")
	y := graph.NewUntypedNodeArg("y")
	_, err := g.AddNode("add0", "Add", "", []*graph.NodeArg{x, bias}, []*graph.NodeArg{y}, nil)
	require.NoError(t, err)
	g.SetInitializer("bias", values.NewTensorValue(
		values.FromFlatDataAndDimensions([]float32{10, 20}, 2)))
	g.MarkOutput("y")
	return g
}

func readySession(t *testing.T, g *graph.Graph, providerIDs ...string) *session.InferenceSession {
	sess := session.New(session.Options{LogID: t.Name()})
	t.Cleanup(func() { _ = sess.Close() })
	for _, id := range providerIDs {
		sess.RegisterExecutionProvider(must.M1(providers.New(id, "")))
	}
	require.NoError(t, sess.Load(g))
	require.NoError(t, sess.Initialize())
	return sess
}

func TestLifecycle(t *testing.T) {
	sess := session.New(session.Options{LogID: t.Name()})
	defer func() { _ = sess.Close() }()
	assert.Equal(t, session.Created, sess.State())

	// Out-of-order calls are rejected without corrupting the state.
	require.ErrorIs(t, sess.Initialize(), session.ErrState)
	_, err := sess.Run(nil, nil, nil)
	require.ErrorIs(t, err, session.ErrState)
	assert.Equal(t, session.Created, sess.State())

	require.NoError(t, sess.Load(addGraph(t)))
	assert.Equal(t, session.Loaded, sess.State())
	require.ErrorIs(t, sess.Load(addGraph(t)), session.ErrState)

	require.NoError(t, sess.Initialize())
	assert.Equal(t, session.Ready, sess.State())

	// Providers are frozen once initialized.
	mock := must.M1(providers.New(providers.NotImplementedProviderID, ""))
	require.ErrorIs(t, sess.RegisterExecutionProvider(mock), session.ErrState)
	_ = mock.Close()
}

func TestRun(t *testing.T) {
	sess := readySession(t, addGraph(t), providers.CPUProviderID)
	feeds := map[string]*values.Value{
		"x": values.NewTensorValue(values.FromFlatDataAndDimensions([]float32{1, 2}, 2)),
	}
	fetches, err := sess.Run(feeds, nil, nil)
	require.NoError(t, err)
	require.Len(t, fetches, 1)
	assert.Equal(t, []float32{11, 22}, values.MustFlatData[float32](fetches[0].MustTensor()))

	// The session stays Ready and can be run again.
	assert.Equal(t, session.Ready, sess.State())
	fetches, err = sess.Run(feeds, []string{"y"}, &session.RunOptions{Tag: "second"})
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 22}, values.MustFlatData[float32](fetches[0].MustTensor()))
}

func TestRunFeedValidation(t *testing.T) {
	sess := readySession(t, addGraph(t), providers.CPUProviderID)

	_, err := sess.Run(map[string]*values.Value{}, nil, nil)
	require.ErrorContains(t, err, "requires 1 feed(s), got 0")

	_, err = sess.Run(map[string]*values.Value{
		"nope": values.NewTensorValue(values.FromFlatDataAndDimensions([]float32{1, 2}, 2)),
	}, nil, nil)
	require.ErrorContains(t, err, "missing required feed \"x\"")

	_, err = sess.Run(map[string]*values.Value{
		"x": values.NewTensorValue(values.FromFlatDataAndDimensions([]float32{1, 2, 3}, 3)),
	}, nil, nil)
	require.ErrorContains(t, err, "model expects")

	_, err = sess.Run(map[string]*values.Value{
		"x": values.NewTensorValue(values.FromFlatDataAndDimensions([]float32{1, 2}, 2)),
	}, []string{"x"}, nil)
	require.ErrorContains(t, err, "not a model output")

	// Failed runs don't poison the session.
	assert.Equal(t, session.Ready, sess.State())
}

func TestInitializeSkipsProvidersWithoutKernels(t *testing.T) {
	// The mock provider has no kernels at all: Initialize must fall through to the
	// cpu provider instead of failing.
	sess := readySession(t, addGraph(t),
		providers.NotImplementedProviderID, providers.CPUProviderID)
	require.Equal(t, providers.CPUProviderID, sess.Provider().ID())

	fetches, err := sess.Run(map[string]*values.Value{
		"x": values.NewTensorValue(values.FromFlatDataAndDimensions([]float32{1, 2}, 2)),
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 22}, values.MustFlatData[float32](fetches[0].MustTensor()))
}

func TestInitializeNoUsableProvider(t *testing.T) {
	sess := session.New(session.Options{LogID: t.Name()})
	defer func() { _ = sess.Close() }()
	require.NoError(t, sess.RegisterExecutionProvider(
		must.M1(providers.New(providers.NotImplementedProviderID, ""))))
	require.NoError(t, sess.Load(addGraph(t)))

	err := sess.Initialize()
	require.ErrorIs(t, err, session.ErrNoUsableProvider)
	_, err = sess.Run(nil, nil, nil)
	require.ErrorIs(t, err, session.ErrState)

	// The failure is soft: registering a capable provider and retrying works.
	assert.Equal(t, session.Loaded, sess.State())
	require.NoError(t, sess.RegisterExecutionProvider(
		must.M1(providers.New(providers.CPUProviderID, ""))))
	require.NoError(t, sess.Initialize())

	fetches, err := sess.Run(map[string]*values.Value{
		"x": values.NewTensorValue(values.FromFlatDataAndDimensions([]float32{1, 2}, 2)),
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 22}, values.MustFlatData[float32](fetches[0].MustTensor()))
}

func TestLoadRejectsBrokenGraph(t *testing.T) {
	g := graph.New("broken", nil)
	// MatMul with a single input violates the operator's arity.
	_, err := g.AddNode("mm", "MatMul", "",
		[]*graph.NodeArg{graph.NewNodeArg("x", shapes.Make(dtypes.Float32, 2, 2))},
		[]*graph.NodeArg{graph.NewUntypedNodeArg("y")}, nil)
	require.NoError(t, err)

	sess := session.New(session.Options{LogID: t.Name()})
	defer func() { _ = sess.Close() }()
	err = sess.Load(g)
	require.ErrorIs(t, err, graph.ErrStructure)
	require.ErrorContains(t, err, "mm")
	assert.Equal(t, session.Failed, sess.State())
}

func TestSessionMetadata(t *testing.T) {
	sess := readySession(t, addGraph(t), providers.CPUProviderID)
	inputs := must.M1(sess.Inputs())
	require.Len(t, inputs, 1)
	assert.Equal(t, "x", inputs[0].Name())
	assert.Equal(t, dtypes.Float32, inputs[0].DType())

	outputs := must.M1(sess.Outputs())
	require.Len(t, outputs, 1)
	assert.Equal(t, "y", outputs[0].Name())
	assert.Equal(t, []int{2}, outputs[0].Shape().Dimensions)
}

func TestRunMultiNodeChain(t *testing.T) {
	// x -> Relu -> Add(bias) -> Neg, checking intermediate values flow and get
	// released without disturbing the fetched output.
	g := graph.New("chain", nil)
	x := graph.NewNodeArg("x", shapes.Make(dtypes.Float32, 3))
	must.M1(g.AddNode("relu0", "Relu", "", []*graph.NodeArg{x},
		[]*graph.NodeArg{graph.NewUntypedNodeArg("r")}, nil))
	must.M1(g.AddNode("add0", "Add", "",
		[]*graph.NodeArg{graph.NewUntypedNodeArg("r"), graph.NewUntypedNodeArg("bias")},
		[]*graph.NodeArg{graph.NewUntypedNodeArg("a")}, nil))
	must.M1(g.AddNode("neg0", "Neg", "",
		[]*graph.NodeArg{graph.NewUntypedNodeArg("a")},
		[]*graph.NodeArg{graph.NewUntypedNodeArg("y")}, nil))
	g.SetInitializer("bias", values.NewTensorValue(
		values.FromFlatDataAndDimensions([]float32{1, 1, 1}, 3)))
	g.MarkOutput("y")

	for _, id := range []string{providers.CPUProviderID, providers.ParallelProviderID} {
		t.Run(id, func(t *testing.T) {
			sess := readySession(t, g, id)
			fetches, err := sess.Run(map[string]*values.Value{
				"x": values.NewTensorValue(values.FromFlatDataAndDimensions([]float32{-5, 0, 2}, 3)),
			}, nil, nil)
			require.NoError(t, err)
			require.Len(t, fetches, 1)
			if f := fetches[0].Fence(); f != nil {
				f.BeforeUsingAsInput(providers.CPUProviderID)
				require.NoError(t, values.FenceErr(f))
			}
			assert.Equal(t, []float32{-1, -1, -3},
				values.MustFlatData[float32](fetches[0].MustTensor()))
		})
	}
}

func TestRunWithAbsentOptionalOutput(t *testing.T) {
	// Dropout declares two outputs; the optional mask is omitted here. Only the
	// first output becomes a graph output and the run must not miss the absent
	// slot.
	g := graph.New("dropout_model", nil)
	x := graph.NewNodeArg("x", shapes.Make(dtypes.Float32, 2))
	must.M1(g.AddNode("d0", "Dropout", "", []*graph.NodeArg{x},
		[]*graph.NodeArg{graph.NewUntypedNodeArg("y"), graph.AbsentNodeArg()}, nil))

	sess := readySession(t, g, providers.CPUProviderID)
	outputs := must.M1(sess.Outputs())
	require.Len(t, outputs, 1)
	assert.Equal(t, "y", outputs[0].Name())

	fetches, err := sess.Run(map[string]*values.Value{
		"x": values.NewTensorValue(values.FromFlatDataAndDimensions([]float32{3, 4}, 2)),
	}, nil, nil)
	require.NoError(t, err)
	require.Len(t, fetches, 1)
	assert.Equal(t, []float32{3, 4}, values.MustFlatData[float32](fetches[0].MustTensor()))
}

func TestParallelProviderFallsBackForMatMul(t *testing.T) {
	// The parallel provider has no MatMul kernel; with it registered first, the
	// session must retry and land on cpu.
	g := graph.New("matmul_model", nil)
	a := graph.NewNodeArg("a", shapes.Make(dtypes.Float32, 2, 2))
	b := graph.NewNodeArg("b", shapes.Make(dtypes.Float32, 2, 2))
	must.M1(g.AddNode("mm0", "MatMul", "", []*graph.NodeArg{a, b},
		[]*graph.NodeArg{graph.NewUntypedNodeArg("y")}, nil))
	g.MarkOutput("y")

	sess := readySession(t, g, providers.ParallelProviderID, providers.CPUProviderID)
	require.Equal(t, providers.CPUProviderID, sess.Provider().ID())
}
