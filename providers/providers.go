// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

// Package providers defines the execution-provider abstraction: a hardware (or
// software) backend that advertises a KernelRegistry of the operators it can
// execute and supplies the device context kernels run against.
//
// Providers register a Constructor at package-initialization time (usually from
// their package's init function), forming a process-wide, read-only enumeration of
// the well-known provider identities. A session binds to one active provider per
// initialization attempt; "this provider has no kernel for a node" is a soft
// outcome that callers handle by retrying with the next candidate.
package providers

import (
	"sync"

	"github.com/OskarBun/onnxruntime/graph"
	"github.com/pkg/errors"
)

// Well-known provider identities, in the order sessions try them by default.
const (
	// CPUProviderID is the portable, synchronous host provider.
	CPUProviderID = "cpu"

	// ParallelProviderID executes kernels asynchronously on a worker pool;
	// its outputs carry fences.
	ParallelProviderID = "parallel"

	// NotImplementedProviderID is a mock provider with an empty kernel registry.
	NotImplementedProviderID = "notimplemented"
)

// EnvProviders is the environment variable listing the provider identities to
// consider, comma-separated and in priority order. Used by the CLI; the library
// itself only consults the explicit registration order.
const EnvProviders = "ONNXRT_PROVIDERS"

// ExecutionProvider is a backend offering kernel implementations for a subset of
// operators, plus the allocator kernels draw output buffers from.
type ExecutionProvider interface {
	// ID returns the provider identity tag, e.g. "cpu".
	ID() string

	// Description is a longer description that can be used to pretty-print.
	Description() string

	// KernelRegistry returns the provider's catalog of supported operators.
	// The registry is owned by the provider and read-only after construction.
	KernelRegistry() *KernelRegistry

	// Allocator returns the allocator owning the buffers this provider's kernels
	// produce.
	Allocator() Allocator

	// CreateKernel instantiates the kernel described by info, bound to this
	// provider's device context, for the given node.
	CreateKernel(info *KernelCreateInfo, node *graph.Node) (Kernel, error)

	// Close releases the provider's resources. The provider is invalid afterwards.
	Close() error
}

// ErrUnavailable indicates a provider cannot be constructed in this process (e.g.
// missing hardware). Such a provider is omitted from the candidate set; it is
// never by itself a session-fatal error.
var ErrUnavailable = errors.New("execution provider unavailable")

// Constructor builds a provider from a provider-specific config string
// (optionally empty). It returns an error wrapping ErrUnavailable when the
// backend cannot run in this process.
type Constructor func(config string) (ExecutionProvider, error)

var (
	registryMu             sync.RWMutex
	registeredConstructors = make(map[string]Constructor)
	registrationOrder      []string
)

// Register a provider constructor under the given identity. To be safe, call
// Register during initialization of the provider's package.
func Register(id string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, found := registeredConstructors[id]; !found {
		registrationOrder = append(registrationOrder, id)
	}
	registeredConstructors[id] = constructor
}

// KnownProviderIDs returns the registered provider identities in registration
// order -- the order sessions try them by default.
func KnownProviderIDs() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ids := make([]string, len(registrationOrder))
	copy(ids, registrationOrder)
	return ids
}

// New constructs the provider registered under id. It returns an error wrapping
// ErrUnavailable when no such provider is registered or its constructor reports
// the backend unusable.
func New(id, config string) (ExecutionProvider, error) {
	registryMu.RLock()
	constructor, found := registeredConstructors[id]
	registryMu.RUnlock()
	if !found {
		return nil, errors.Wrapf(ErrUnavailable, "no execution provider registered under %q", id)
	}
	provider, err := constructor(config)
	if err != nil {
		return nil, errors.WithMessagef(err, "constructing execution provider %q", id)
	}
	return provider, nil
}
