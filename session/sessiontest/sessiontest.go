// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

// Package sessiontest provides OpTester, a declarative harness for testing one
// operator across every registered execution provider: declare inputs, expected
// outputs and tolerances, and Run builds a single-node graph and executes it
// through a full session per provider.
package sessiontest

import (
	"fmt"
	"math"
	"testing"

	"github.com/OskarBun/onnxruntime/graph"
	"github.com/OskarBun/onnxruntime/providers"
	"github.com/OskarBun/onnxruntime/session"
	"github.com/OskarBun/onnxruntime/types"
	"github.com/OskarBun/onnxruntime/types/dtypes"
	"github.com/OskarBun/onnxruntime/values"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// DefaultAbsTolerance is the absolute tolerance used for float comparisons when
// the test doesn't set one.
const DefaultAbsTolerance = 0.001

type inputEntry struct {
	name   string
	tensor *values.Tensor
	absent bool
}

type outputEntry struct {
	name   string
	tensor *values.Tensor
	absTol float64
	relTol float64
	absent bool
}

// OpTester exercises a single operator node through the full session pipeline,
// once per registered provider. Providers without a kernel for the operator are
// skipped, not failed.
type OpTester struct {
	opType string
	domain string
	opset  int
	attrs  map[string]*graph.Attribute

	inputs  []inputEntry
	outputs []outputEntry

	excluded       types.Set[string]
	expectFailure  bool
	expectedErrSub string
}

// NewOpTester creates a tester for one operator at the given operator-set version.
func NewOpTester(opType string, opsetVersion int) *OpTester {
	return &OpTester{
		opType:   opType,
		opset:    opsetVersion,
		attrs:    make(map[string]*graph.Attribute),
		excluded: types.MakeSet[string](),
	}
}

// AddAttr attaches a node attribute.
func (o *OpTester) AddAttr(name string, attr *graph.Attribute) *OpTester {
	o.attrs[name] = attr
	return o
}

// AddInput declares the next input and its feed tensor.
func (o *OpTester) AddInput(name string, tensor *values.Tensor) *OpTester {
	o.inputs = append(o.inputs, inputEntry{name: name, tensor: tensor})
	return o
}

// AddAbsentInput declares the next input slot as an omitted optional input.
func (o *OpTester) AddAbsentInput() *OpTester {
	o.inputs = append(o.inputs, inputEntry{absent: true})
	return o
}

// AddOutput declares the next output and its expected tensor. Without an explicit
// tolerance, floats are compared with the default absolute tolerance.
func (o *OpTester) AddOutput(name string, expected *values.Tensor) *OpTester {
	o.outputs = append(o.outputs, outputEntry{name: name, tensor: expected})
	return o
}

// AddAbsentOutput declares the next output slot as an omitted optional output.
func (o *OpTester) AddAbsentOutput() *OpTester {
	o.outputs = append(o.outputs, outputEntry{absent: true})
	return o
}

// SetOutputAbsErr overrides the absolute tolerance of the last added output.
func (o *OpTester) SetOutputAbsErr(absTol float64) *OpTester {
	o.outputs[len(o.outputs)-1].absTol = absTol
	return o
}

// SetOutputRelErr sets a relative tolerance on the last added output: elements
// must come within relTol*|expected|. When it is the only tolerance set, it alone
// governs the comparison (the default absolute tolerance does not apply).
func (o *OpTester) SetOutputRelErr(relTol float64) *OpTester {
	o.outputs[len(o.outputs)-1].relTol = relTol
	return o
}

// ExcludeProviders skips the named providers entirely.
func (o *OpTester) ExcludeProviders(ids ...string) *OpTester {
	for _, id := range ids {
		o.excluded.Insert(id)
	}
	return o
}

// ExpectFailure makes Run require an error whose message contains substring
// (any substring when empty) instead of comparing outputs.
func (o *OpTester) ExpectFailure(substring string) *OpTester {
	o.expectFailure = true
	o.expectedErrSub = substring
	return o
}

// Run executes the operator under every registered, non-excluded provider that has
// a kernel for it, comparing fetches against the declared expectations.
func (o *OpTester) Run(t *testing.T) {
	ran := 0
	for _, id := range providers.KnownProviderIDs() {
		if o.excluded.Has(id) {
			continue
		}
		provider, err := providers.New(id, "")
		if err != nil {
			continue
		}
		node := o.probeNode(t)
		if _, err := provider.KernelRegistry().FindKernel(node, o.opset); err != nil {
			require.ErrorIs(t, err, providers.ErrNoKernel)
			_ = provider.Close()
			continue
		}
		t.Run(id, func(t *testing.T) {
			o.runWith(t, provider)
		})
		ran++
	}
	if !o.expectFailure {
		require.NotZero(t, ran, "no provider has a kernel for %s", o.opType)
	}
}

// probeNode builds a throwaway node to query kernel registries with.
func (o *OpTester) probeNode(t *testing.T) *graph.Node {
	g := graph.New("probe", nil)
	node, err := g.AddNode("probe", o.opType, o.domain, o.inputArgs(), o.outputArgs(), o.attrs)
	require.NoError(t, err)
	return node
}

func (o *OpTester) inputArgs() []*graph.NodeArg {
	args := make([]*graph.NodeArg, len(o.inputs))
	for i, in := range o.inputs {
		if in.absent {
			args[i] = graph.AbsentNodeArg()
		} else {
			args[i] = graph.NewNodeArg(in.name, in.tensor.Shape())
		}
	}
	return args
}

func (o *OpTester) outputArgs() []*graph.NodeArg {
	args := make([]*graph.NodeArg, len(o.outputs))
	for i, out := range o.outputs {
		if out.absent {
			args[i] = graph.AbsentNodeArg()
		} else {
			args[i] = graph.NewUntypedNodeArg(out.name)
		}
	}
	return args
}

func (o *OpTester) runWith(t *testing.T, provider providers.ExecutionProvider) {
	g := graph.New("optest_"+o.opType, map[string]int{o.domain: o.opset})
	_, err := g.AddNode("node1", o.opType, o.domain, o.inputArgs(), o.outputArgs(), o.attrs)
	if o.checkFailure(t, err) {
		return
	}
	require.NoError(t, err)

	sess := session.New(session.Options{LogID: t.Name()})
	defer func() { _ = sess.Close() }()
	require.NoError(t, sess.RegisterExecutionProvider(provider))
	if o.checkFailure(t, sess.Load(g)) {
		return
	}
	if o.checkFailure(t, sess.Initialize()) {
		return
	}

	feeds := make(map[string]*values.Value)
	for _, in := range o.inputs {
		if !in.absent {
			feeds[in.name] = values.NewTensorValue(in.tensor)
		}
	}
	var outputNames []string
	for _, out := range o.outputs {
		if !out.absent {
			outputNames = append(outputNames, out.name)
		}
	}
	fetches, err := sess.Run(feeds, outputNames, &session.RunOptions{Tag: t.Name()})
	if o.checkFailure(t, err) {
		return
	}
	if o.expectFailure {
		t.Fatalf("expected a failure containing %q, but the run succeeded", o.expectedErrSub)
	}
	require.NoError(t, err)
	require.Len(t, fetches, len(outputNames))

	i := 0
	for _, out := range o.outputs {
		if out.absent {
			continue
		}
		fetch := fetches[i]
		i++
		if f := fetch.Fence(); f != nil {
			f.BeforeUsingAsInput(providers.CPUProviderID)
			require.NoError(t, values.FenceErr(f))
		}
		CheckTensor(t, out.name, out.tensor, fetch.MustTensor(), out.absTol, out.relTol)
	}
}

// checkFailure consumes err when a failure is expected, reporting whether the
// caller should stop. An unexpected error fails the test.
func (o *OpTester) checkFailure(t *testing.T, err error) bool {
	if err == nil {
		return false
	}
	if !o.expectFailure {
		require.NoError(t, err)
	}
	assert.Contains(t, err.Error(), o.expectedErrSub)
	return true
}

// CheckTensor compares got against expected elementwise. Each configured float
// tolerance is an independent requirement: a positive absTol demands
// |got-expected| <= absTol, a positive relTol demands
// |got-expected| <= relTol*|expected|, and with neither set the default absolute
// tolerance applies. Infinities must match exactly; NaN expects NaN.
func CheckTensor(t *testing.T, name string, expected, got *values.Tensor, absTol, relTol float64) {
	require.True(t, expected.Shape().Equal(got.Shape()),
		"output %q: expected shape %s, got %s", name, expected.Shape(), got.Shape())
	switch expected.DType() {
	case dtypes.Float32:
		expFlat := values.MustFlatData[float32](expected)
		gotFlat := values.MustFlatData[float32](got)
		for i := range expFlat {
			checkFloat(t, name, i, float64(expFlat[i]), float64(gotFlat[i]), absTol, relTol)
		}
	case dtypes.Float64:
		expFlat := values.MustFlatData[float64](expected)
		gotFlat := values.MustFlatData[float64](got)
		for i := range expFlat {
			checkFloat(t, name, i, expFlat[i], gotFlat[i], absTol, relTol)
		}
	default:
		assert.Equal(t, expected.Flat(), got.Flat(), "output %q", name)
	}
}

func checkFloat(t *testing.T, name string, i int, expected, got, absTol, relTol float64) {
	if msg := toleranceViolation(expected, got, absTol, relTol); msg != "" {
		t.Errorf("output %q[%d]: %s", name, i, msg)
	}
}

// toleranceViolation describes how got misses expected under the configured
// tolerances, or returns "" when the element passes.
func toleranceViolation(expected, got, absTol, relTol float64) string {
	if math.IsNaN(expected) {
		if math.IsNaN(got) {
			return ""
		}
		return fmt.Sprintf("expected NaN, got %v", got)
	}
	if math.IsInf(expected, 0) {
		if expected == got {
			return ""
		}
		return fmt.Sprintf("expected %v exactly, got %v", expected, got)
	}
	diff := math.Abs(got - expected)
	if absTol == 0 && relTol == 0 {
		absTol = DefaultAbsTolerance
	}
	if absTol > 0 && diff > absTol {
		return fmt.Sprintf("got %v, expected %v (abs diff %v > absTol %v)",
			got, expected, diff, absTol)
	}
	if relTol > 0 && diff > relTol*math.Abs(expected) {
		return fmt.Sprintf("got %v, expected %v (abs diff %v > relTol %v * |expected|)",
			got, expected, diff, relTol)
	}
	return ""
}
