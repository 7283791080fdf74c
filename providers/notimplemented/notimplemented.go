// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

// Package notimplemented implements a mock execution provider with an empty kernel
// registry: FindKernel fails for every node, so sessions probing it always fall
// through to the next candidate.
//
// This can help bootstrap any provider implementation, and exercises the
// provider-retry path in tests.
package notimplemented

import (
	"github.com/OskarBun/onnxruntime/graph"
	"github.com/OskarBun/onnxruntime/providers"
	"github.com/OskarBun/onnxruntime/types/shapes"
	"github.com/OskarBun/onnxruntime/values"
	"github.com/pkg/errors"
)

func init() {
	providers.Register(providers.NotImplementedProviderID, New)
}

// Backend is a dummy provider that can be imported to create mock providers.
type Backend struct {
	registry *providers.KernelRegistry
}

var _ providers.ExecutionProvider = &Backend{}

// New constructs the mock provider. It is always "available"; it just cannot
// execute anything.
func New(_ string) (providers.ExecutionProvider, error) {
	return &Backend{
		registry: providers.NewKernelRegistry(providers.NotImplementedProviderID),
	}, nil
}

// ID returns "notimplemented".
func (b *Backend) ID() string { return providers.NotImplementedProviderID }

// Description is a longer description of the provider.
func (b *Backend) Description() string {
	return "Not Implemented Provider (mock provider for testing)"
}

// KernelRegistry returns the empty registry.
func (b *Backend) KernelRegistry() *providers.KernelRegistry { return b.registry }

// Allocator returns the mock allocator.
func (b *Backend) Allocator() providers.Allocator { return b }

// AllocateTensor allocates a plain caller-owned tensor; nothing is pooled.
func (b *Backend) AllocateTensor(shape shapes.Shape) *values.Tensor {
	return values.FromShape(shape)
}

// ReleaseTensor is a no-op.
func (b *Backend) ReleaseTensor(_ *values.Tensor) {}

// CreateKernel always fails: the registry is empty, so this is unreachable through
// normal session initialization.
func (b *Backend) CreateKernel(_ *providers.KernelCreateInfo, node *graph.Node) (providers.Kernel, error) {
	return nil, errors.Wrapf(providers.ErrNoKernel, "node %q", node.Name())
}

// Close is a no-op.
func (b *Backend) Close() error { return nil }
