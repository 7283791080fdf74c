// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

// Package cpu implements the portable, synchronous host execution provider.
//
// It implements the most popular dtypes and operators of the default domain. All
// kernels run on the calling goroutine and complete before Compute returns, so the
// values it produces never carry fences.
package cpu

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/OskarBun/onnxruntime/graph"
	"github.com/OskarBun/onnxruntime/providers"
	"github.com/OskarBun/onnxruntime/types/shapes"
	"github.com/OskarBun/onnxruntime/values"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Registers New() as the constructor for the "cpu" provider.
func init() {
	providers.Register(providers.CPUProviderID, New)
}

// Backend implements the providers.ExecutionProvider interface for the host CPU.
type Backend struct {
	registry *providers.KernelRegistry

	// bufferPools recycles flat buffers, keyed by (dtype, size).
	// The underlying type is map[poolKey]*sync.Pool.
	bufferPools sync.Map

	// Set by Close, read by concurrent Runs.
	closed atomic.Bool
}

// Compile-time check that cpu.Backend implements providers.ExecutionProvider.
var _ providers.ExecutionProvider = &Backend{}

type poolKey struct {
	dtype reflect.Type
	size  int
}

// New constructs the CPU provider. The CPU backend is always available; there are
// no configurations, the string is simply ignored.
func New(_ string) (providers.ExecutionProvider, error) {
	b := &Backend{}
	b.registry = buildRegistry()
	return b, nil
}

// ID returns "cpu".
func (b *Backend) ID() string { return providers.CPUProviderID }

// Description is a longer description of the provider.
func (b *Backend) Description() string {
	return "Portable synchronous host (CPU) execution provider"
}

// KernelRegistry returns the catalog of operators this provider can execute.
func (b *Backend) KernelRegistry() *providers.KernelRegistry { return b.registry }

// Allocator returns the provider's pooled host allocator.
func (b *Backend) Allocator() providers.Allocator { return b }

// CreateKernel instantiates the kernel described by info for the given node.
func (b *Backend) CreateKernel(info *providers.KernelCreateInfo, node *graph.Node) (providers.Kernel, error) {
	if b.closed.Load() {
		return nil, errors.Errorf("cpu provider has been closed")
	}
	return info.Builder(info, node)
}

// Close marks the provider closed. Pooled buffers stop being recycled and are
// collected with the backend.
func (b *Backend) Close() error {
	b.closed.Store(true)
	return nil
}

// AllocateTensor returns a tensor of the given shape backed by a pooled flat
// buffer. Contents are undefined: kernels are expected to write every element.
func (b *Backend) AllocateTensor(shape shapes.Shape) *values.Tensor {
	key := poolKey{dtype: shape.DType.GoType(), size: shape.Size()}
	poolAny, _ := b.bufferPools.LoadOrStore(key, &sync.Pool{})
	pool := poolAny.(*sync.Pool)
	flat := pool.Get()
	if flat == nil {
		flat = reflect.MakeSlice(reflect.SliceOf(key.dtype), key.size, key.size).Interface()
	}
	tensor, err := values.FromFlatAndShape(flat, shape, b.ID())
	if err != nil {
		// Pools are keyed by (dtype, size), a mismatch is a bug.
		exceptions.Panicf("cpu allocator buffer pool returned an incompatible buffer: %+v", err)
	}
	return tensor
}

// ReleaseTensor returns the tensor's flat buffer to the pool. Tensors owned by the
// caller or another provider are left alone.
func (b *Backend) ReleaseTensor(t *values.Tensor) {
	if t == nil || t.Owner() != b.ID() || b.closed.Load() {
		return
	}
	key := poolKey{dtype: t.DType().GoType(), size: t.Size()}
	poolAny, _ := b.bufferPools.LoadOrStore(key, &sync.Pool{})
	poolAny.(*sync.Pool).Put(t.Flat())
}

// def creates an open-ended default-domain KernelDef starting at the operator-set
// version the op was introduced in.
func def(opType string, since int) *providers.KernelDef {
	return &providers.KernelDef{OpType: opType, SinceVersion: since}
}

func buildRegistry() *providers.KernelRegistry {
	r := providers.NewKernelRegistry(providers.CPUProviderID)

	r.MustRegister(def("Identity", 1), newIdentityKernel)

	for opType, op := range unaryOps {
		r.MustRegister(def(opType, 1), newUnaryKernel(op))
	}
	for opType, op := range binaryOps {
		r.MustRegister(def(opType, 7), newBinaryKernel(op))
	}

	r.MustRegister(def("Sum", 1), newSumKernel)
	r.MustRegister(def("Dropout", 1), newDropoutKernel)
	r.MustRegister(def("MatMul", 1), newMatMulKernel)
	r.MustRegister(def("Cast", 6), newCastKernel)
	r.MustRegister(def("Concat", 4), newConcatKernel)
	return r
}
