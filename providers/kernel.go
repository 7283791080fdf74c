// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

package providers

import (
	"github.com/OskarBun/onnxruntime/graph"
	"github.com/OskarBun/onnxruntime/types/shapes"
	"github.com/OskarBun/onnxruntime/values"
)

// Kernel is a concrete, provider-bound implementation of one operator.
//
// Compute may enqueue asynchronous device work and return before it completes; in
// that case every output Value it sets must carry a Fence. The engine guarantees
// that every fenced input has been gated with BeforeUsingAsInput before Compute is
// invoked.
type Kernel interface {
	Compute(kctx *KernelContext) error
}

// Allocator hands out and takes back the flat tensor buffers a provider's kernels
// produce. Buffers stay valid until every fence-gated consumer has synchronized
// and the engine releases them.
type Allocator interface {
	// AllocateTensor returns a zeroed (or recycled, contents undefined) tensor of
	// the given shape, owned by this allocator.
	AllocateTensor(shape shapes.Shape) *values.Tensor

	// ReleaseTensor returns a tensor previously obtained from AllocateTensor.
	// Releasing a tensor owned by another allocator is a no-op.
	ReleaseTensor(t *values.Tensor)
}

// KernelContext carries one node invocation's inputs and collects its outputs.
// It is scoped to a single Run call and must not be retained by the kernel.
type KernelContext struct {
	node    *graph.Node
	alloc   Allocator
	inputs  []*values.Value
	outputs []*values.Value
}

// NewKernelContext assembles the invocation context for node. inputs must be
// ordered as the node's input NodeArgs; entries for absent optional inputs are nil.
func NewKernelContext(node *graph.Node, alloc Allocator, inputs []*values.Value) *KernelContext {
	return &KernelContext{
		node:    node,
		alloc:   alloc,
		inputs:  inputs,
		outputs: make([]*values.Value, len(node.Outputs())),
	}
}

// Node being executed.
func (k *KernelContext) Node() *graph.Node { return k.node }

// Allocator of the provider executing the node.
func (k *KernelContext) Allocator() Allocator { return k.alloc }

// NumInputs returns the number of input slots (present or absent).
func (k *KernelContext) NumInputs() int { return len(k.inputs) }

// Input i, or nil for an absent optional input.
func (k *KernelContext) Input(i int) *values.Value { return k.inputs[i] }

// NumOutputs returns the number of output slots.
func (k *KernelContext) NumOutputs() int { return len(k.outputs) }

// SetOutput stores the value produced for output slot i.
func (k *KernelContext) SetOutput(i int, v *values.Value) { k.outputs[i] = v }

// Output i, or nil if not (or not yet) produced.
func (k *KernelContext) Output(i int) *values.Value { return k.outputs[i] }

// Outputs returns the output slice, ordered as the node's output NodeArgs.
func (k *KernelContext) Outputs() []*values.Value { return k.outputs }
